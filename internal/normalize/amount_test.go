package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmountsRange(t *testing.T) {
	t.Parallel()

	lo, hi := ParseAmounts("Grants of $10,000 - $50,000 are available")
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	require.True(t, lo.Equal(decimal.NewFromInt(10000)), "got %s", lo)
	require.True(t, hi.Equal(decimal.NewFromInt(50000)), "got %s", hi)
}

func TestParseAmountsUpTo(t *testing.T) {
	t.Parallel()

	lo, hi := ParseAmounts("Funding of up to $500,000")
	require.Nil(t, lo)
	require.NotNil(t, hi)
	require.True(t, hi.Equal(decimal.NewFromInt(500000)), "got %s", hi)
}

func TestParseAmountsFrom(t *testing.T) {
	t.Parallel()

	lo, hi := ParseAmounts("Grants from $5,000")
	require.NotNil(t, lo)
	require.Nil(t, hi)
	require.True(t, lo.Equal(decimal.NewFromInt(5000)), "got %s", lo)
}

func TestParseAmountsMultiplierSuffixes(t *testing.T) {
	t.Parallel()

	lo, hi := ParseAmounts("up to $50k per project")
	require.Nil(t, lo)
	require.NotNil(t, hi)
	require.True(t, hi.Equal(decimal.NewFromInt(50000)), "got %s", hi)

	lo, hi = ParseAmounts("$2.5m available")
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	require.True(t, lo.Equal(decimal.NewFromInt(2500000)), "got %s", lo)
	require.True(t, hi.Equal(*lo))
}

func TestParseAmountsSingleFigureBoundsBothSides(t *testing.T) {
	t.Parallel()

	lo, hi := ParseAmounts("$10,000 grants")
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	require.True(t, lo.Equal(*hi))
}

func TestParseAmountsUnparsable(t *testing.T) {
	t.Parallel()

	lo, hi := ParseAmounts("funding amounts vary by project")
	require.Nil(t, lo)
	require.Nil(t, hi)

	lo, hi = ParseAmounts("")
	require.Nil(t, lo)
	require.Nil(t, hi)
}
