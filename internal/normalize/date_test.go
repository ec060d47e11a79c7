package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDateFormats(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"iso":            "2025-12-31",
		"day month year": "31 Dec 2025",
		"ordinal day":    "31st December 2025",
		"month day year": "December 31, 2025",
		"slash day first": "31/12/2025",
		"embedded":       "Applications close 31 Dec 2025 at midnight",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := ParseDate(input)
			require.NotNil(t, got, "input %q", input)
			require.True(t, got.Equal(want), "input %q parsed as %s", input, got)
		})
	}
}

func TestParseDateRejectsRollover(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParseDate("31/02/2025"))
	require.Nil(t, ParseDate("30 Feb 2025"))
}

func TestParseDateUnparsable(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParseDate(""))
	require.Nil(t, ParseDate("ongoing"))
	require.Nil(t, ParseDate("closes soon"))
}

func TestClassifyDateText(t *testing.T) {
	t.Parallel()

	require.Equal(t, RoleClosing, ClassifyDateText("Applications close 31 Dec 2025"))
	require.Equal(t, RoleClosing, ClassifyDateText("Deadline: 2025-12-31"))
	require.Equal(t, RoleOpening, ClassifyDateText("Opening 1 July 2025"))
	require.Equal(t, RoleOpening, ClassifyDateText("Round starts 1 Jan 2026"))
	require.Equal(t, RoleUnknown, ClassifyDateText("31 Dec 2025"))
}
