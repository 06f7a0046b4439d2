package hypercore

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	x402 "github.com/x402-labs/x402-go"
)

// ServerScheme implements schemes.ServerScheme for Hypercore-exact.
type ServerScheme struct{}

func (ServerScheme) Scheme() string { return "exact" }

// ParsePrice converts price against the network's default asset (USDH,
// 8 decimals). Unlike the EVM/Solana schemes, bare numeric strings here
// are dollar-denominated too (a leading "$" is optional), matching the
// original Python mechanism's parse_price fixtures.
func (ServerScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	cfg, ok := NetworkConfigs[string(network)]
	if !ok {
		return x402.AssetAmount{}, &x402.Error{Code: x402.UnsupportedNetwork, Message: ErrInvalidNetwork}
	}
	asset := cfg.DefaultAsset.Token
	decimals := cfg.DefaultAsset.Decimals

	switch v := price.(type) {
	case x402.AssetAmount:
		return v, nil
	case *x402.AssetAmount:
		return *v, nil
	case string:
		dollars, err := strconv.ParseFloat(strings.TrimPrefix(v, "$"), 64)
		if err != nil || dollars < 0 {
			return x402.AssetAmount{}, &x402.Error{Code: x402.InvalidPrice, Message: fmt.Sprintf("Invalid money format: %q", v)}
		}
		atomic := int64(math.Round(dollars * math.Pow10(decimals)))
		return x402.AssetAmount{Asset: asset, Amount: strconv.FormatInt(atomic, 10)}, nil
	case float64:
		atomic := int64(math.Round(v * math.Pow10(decimals)))
		return x402.AssetAmount{Asset: asset, Amount: strconv.FormatInt(atomic, 10)}, nil
	default:
		return x402.AssetAmount{}, &x402.Error{Code: x402.InvalidPrice, Message: fmt.Sprintf("unsupported price type %T", price)}
	}
}

// BuildRequirement assembles a PaymentRequirements for a priced asset.
func (ServerScheme) BuildRequirement(payTo string, amount x402.AssetAmount, network x402.Network, maxTimeoutSeconds int) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           network,
		Asset:             amount.Asset,
		Amount:            amount.Amount,
		PayTo:             payTo,
		MaxTimeoutSeconds: maxTimeoutSeconds,
	}
}

// EnhanceRequirement attaches signatureChainId (999, Hyperliquid's fixed
// numeric chain ID) and isMainnet, matching the Python server's
// enhance_payment_requirements fixtures exactly.
func (ServerScheme) EnhanceRequirement(req x402.PaymentRequirements, supported x402.SupportedKind) x402.PaymentRequirements {
	cfg, ok := NetworkConfigs[string(req.Network)]
	if !ok {
		return req
	}
	if req.Extra == nil {
		req.Extra = map[string]interface{}{}
	}
	req.Extra["signatureChainId"] = 999
	req.Extra["isMainnet"] = cfg.IsMainnet
	return req
}
