package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var (
	hundred = decimal.NewFromInt(100)
	// maxPrice bounds parsed values so additions never overflow int64.
	maxPrice = decimal.NewFromInt(1_000_000_000_000)
)

// ParsePrice reads a storefront price value, either a JSON number or a
// formatted string such as "₩12,000". ok is false when missing or unparseable.
func ParsePrice(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		return parseDecimal(v.Raw)
	case gjson.String:
		return ParseRawPrice(v.Str)
	default:
		return 0, false
	}
}

// ParseRawPrice parses a stored raw price string.
func ParseRawPrice(raw string) (int64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, raw)
	if cleaned == "" {
		return 0, false
	}
	return parseDecimal(cleaned)
}

func parseDecimal(s string) (int64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.Abs().GreaterThan(maxPrice) {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}

// DiscountPercent is round((1 - price/original) * 100), halves rounded away
// from zero. It is 0 unless original > price > 0.
func DiscountPercent(price int64, original *int64) int {
	if original == nil || price <= 0 || *original <= price {
		return 0
	}
	ratio := decimal.NewFromInt(price).Div(decimal.NewFromInt(*original))
	return int(decimal.NewFromInt(1).Sub(ratio).Mul(hundred).Round(0).IntPart())
}
