package platform

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ExtractDecimal converts a decoded JSON value into a decimal.
// JSON numbers decode to float64 or json.Number depending on the decoder;
// numeric strings are accepted too. ok is false for nil and anything else.
func ExtractDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case int32:
		return decimal.NewFromInt(int64(val)), true
	case string:
		d, err := decimal.NewFromString(val)
		return d, err == nil
	case decimal.Decimal:
		return val, true
	}
	return decimal.Zero, false
}

// ExtractValues converts every numeric entry of raw. Non-numeric entries are dropped.
func ExtractValues(raw map[string]any) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		if d, ok := ExtractDecimal(v); ok {
			out[k] = d
		}
	}
	return out
}
