package evm

import (
	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/schemes"
	"github.com/x402-labs/x402-go/schemes/chains"
)

// ServerScheme implements schemes.ServerScheme for EVM-exact, translating
// human-friendly price input into a canonical PaymentRequirements with the
// EIP-712 domain attached as Extra.
type ServerScheme struct{}

func (ServerScheme) Scheme() string { return "exact" }

// ParsePrice converts price to atomic units against the default token
// registered for the network's chain (conventionally USDC, 6 decimals).
func (ServerScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	chainID, err := chainIDForNetwork(network)
	if err != nil {
		return x402.AssetAmount{}, &x402.Error{Code: x402.UnsupportedNetwork, Message: err.Error()}
	}
	token, ok := chains.Default(chainID, "usdc")
	if !ok {
		return x402.AssetAmount{}, &x402.Error{Code: x402.UnsupportedNetwork, Message: "no default asset for chain " + chainID}
	}
	return schemes.ParsePriceAtDecimals(price, token.Address, token.Decimals)
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

// EnhanceRequirement attaches the EIP-712 domain (name, version) the
// client needs to reconstruct the typed-data struct, looked up from the
// chain catalog by (chainID, asset address).
func (ServerScheme) EnhanceRequirement(req x402.PaymentRequirements, supported x402.SupportedKind) x402.PaymentRequirements {
	chainID, err := chainIDForNetwork(req.Network)
	if err != nil {
		return req
	}
	token, ok := chains.Lookup(chainID, req.Asset)
	if !ok {
		return req
	}
	if req.Extra == nil {
		req.Extra = map[string]interface{}{}
	}
	req.Extra["name"] = token.Name
	req.Extra["version"] = token.Version
	return req
}

func chainIDForNetwork(network x402.Network) (string, error) {
	_, ref, err := network.Parse()
	if err != nil {
		return "", err
	}
	return chains.GetChainID(ref)
}
