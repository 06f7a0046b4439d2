package schemes

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	x402 "github.com/x402-labs/x402-go"
)

// ParseDollarString converts a "$X.YZ" string to atomic units at the given
// decimal precision. Bare numeric strings (no leading "$") are treated as
// already-atomic and returned unchanged via ParseAtomicString.
func ParseDollarString(s string, decimals int) (string, error) {
	if !strings.HasPrefix(s, "$") {
		return "", fmt.Errorf("%w: missing '$' prefix: %q", errInvalidMoneyFormat, s)
	}
	dollars, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidMoneyFormat, err)
	}
	if dollars < 0 {
		return "", fmt.Errorf("%w: negative amount", errInvalidMoneyFormat)
	}
	atomic := math.Round(dollars * math.Pow10(decimals))
	return strconv.FormatInt(int64(atomic), 10), nil
}

var errInvalidMoneyFormat = fmt.Errorf("invalid money format")

// ParsePriceAtDecimals is the common ParsePrice body shared by every
// scheme's ServerScheme: dollar strings convert via decimals, numeric
// strings/floats are atomic units, AssetAmount passes through unchanged.
func ParsePriceAtDecimals(price x402.Price, asset string, decimals int) (x402.AssetAmount, error) {
	switch v := price.(type) {
	case x402.AssetAmount:
		return v, nil
	case *x402.AssetAmount:
		return *v, nil
	case string:
		if strings.HasPrefix(v, "$") {
			amount, err := ParseDollarString(v, decimals)
			if err != nil {
				return x402.AssetAmount{}, &x402.Error{Code: x402.InvalidPrice, Message: err.Error()}
			}
			return x402.AssetAmount{Asset: asset, Amount: amount}, nil
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return x402.AssetAmount{}, &x402.Error{Code: x402.InvalidPrice, Message: fmt.Sprintf("invalid numeric amount %q", v)}
		}
		return x402.AssetAmount{Asset: asset, Amount: v}, nil
	case float64:
		atomic := int64(math.Round(v * math.Pow10(decimals)))
		return x402.AssetAmount{Asset: asset, Amount: strconv.FormatInt(atomic, 10)}, nil
	default:
		return x402.AssetAmount{}, &x402.Error{Code: x402.InvalidPrice, Message: fmt.Sprintf("unsupported price type %T", price)}
	}
}
