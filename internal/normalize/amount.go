package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var moneyToken = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmM])?\b`)

// ParseAmounts extracts (min, max) bounds from heterogeneous currency
// text such as "$10,000 - $50,000", "up to $500,000" or "from $5,000".
// Unparsable text yields (nil, nil); amount is optional, never a
// rejection reason.
func ParseAmounts(text string) (*decimal.Decimal, *decimal.Decimal) {
	matches := moneyToken.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	values := make([]decimal.Decimal, 0, len(matches))
	for _, m := range matches {
		raw := strings.ReplaceAll(m[1], ",", "")
		v, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "k":
			v = v.Mul(decimal.NewFromInt(1000))
		case "m":
			v = v.Mul(decimal.NewFromInt(1000000))
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil
	}

	if len(values) >= 2 {
		lo, hi := values[0], values[1]
		return &lo, &hi
	}

	v := values[0]
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "up to", "maximum", "max ", "no more than"):
		return nil, &v
	case containsAny(lower, "from", "minimum", "min ", "at least", "starting at"):
		return &v, nil
	default:
		// A single fixed figure bounds the grant on both sides.
		w := v
		return &v, &w
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
