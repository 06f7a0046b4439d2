package solana

import (
	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/schemes"
)

// ServerScheme implements schemes.ServerScheme for Solana-exact.
type ServerScheme struct{}

func (ServerScheme) Scheme() string { return "exact" }

// ParsePrice converts price to atomic units against the default token
// registered for the network (conventionally USDC, 6 decimals).
func (ServerScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	token, ok := Default(string(network), "usdc")
	if !ok {
		return x402.AssetAmount{}, &x402.Error{Code: x402.UnsupportedNetwork, Message: "no default asset for network " + string(network)}
	}
	return schemes.ParsePriceAtDecimals(price, token.Mint, token.Decimals)
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

// EnhanceRequirement attaches the decimals and fee payer a client needs to
// build a TransferChecked instruction. The fee payer comes from
// supported.Extra["feePayer"], which the server caches from the
// facilitator's GET /supported response (teacher's SetSupportedPayments
// pattern) since the facilitator, not the payer, fronts transaction fees.
func (ServerScheme) EnhanceRequirement(req x402.PaymentRequirements, supported x402.SupportedKind) x402.PaymentRequirements {
	if req.Extra == nil {
		req.Extra = map[string]interface{}{}
	}
	if t, ok := Lookup(string(req.Network), req.Asset); ok {
		req.Extra["decimals"] = float64(t.Decimals)
	}
	if feePayer, ok := supported.Extra["feePayer"]; ok {
		req.Extra["feePayer"] = feePayer
	}
	return req
}
