// Package chains is the chain/asset catalog spec.md §6 describes as "an
// input to the core, not a fixed part of it": a static default table of
// CAIP-2 network -> chain ID and (chain ID, token symbol) -> contract
// metadata. Callers may substitute their own table; this one ships
// sensible defaults for the networks the examples exercise.
package chains

import "fmt"

// Token describes an ERC-20/SPL token's on-chain identity for EIP-712
// domain construction and decimal conversion.
type Token struct {
	Symbol  string
	Address string
	Name    string // must match the contract's name() return exactly
	Version string // EIP-712 domain version
	Decimals int
}

// networkToChainID mirrors original_source/python/x402/src/x402/chains.py's
// NETWORK_TO_ID, extended with the mainnets listed in the coinbase x402 Go
// SDK's handler.go chainIDToNetwork table.
var networkToChainID = map[string]string{
	"ethereum":       "1",
	"polygon":        "137",
	"optimism":       "10",
	"arbitrum":       "42161",
	"bsc":            "56",
	"base-sepolia":   "84532",
	"base":           "8453",
	"avalanche-fuji": "43113",
	"avalanche":      "43114",
}

// knownTokens mirrors chains.py's KNOWN_TOKENS, keyed by chain ID.
var knownTokens = map[string][]Token{
	"1": {
		{Symbol: "usdc", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Name: "USD Coin", Version: "2", Decimals: 6},
	},
	"8453": {
		{Symbol: "usdc", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Name: "USD Coin", Version: "2", Decimals: 6},
	},
	"84532": {
		{Symbol: "usdc", Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Name: "USDC", Version: "2", Decimals: 6},
	},
	"43113": {
		{Symbol: "usdc", Address: "0x5425890298aed601595a70AB815c96711a31Bc65", Name: "USD Coin", Version: "2", Decimals: 6},
	},
	"43114": {
		{Symbol: "usdc", Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Name: "USDC", Version: "2", Decimals: 6},
	},
}

// GetChainID returns the chain ID for a human-readable network name, or
// passes a numeric-string chain ID through unchanged.
func GetChainID(network string) (string, error) {
	if _, err := fmt.Sscanf(network, "%d", new(int)); err == nil {
		return network, nil
	}
	id, ok := networkToChainID[network]
	if !ok {
		return "", fmt.Errorf("unsupported network: %s", network)
	}
	return id, nil
}

// Lookup returns the token metadata for (chainID, address), case-sensitive
// on address as stored.
func Lookup(chainID, address string) (Token, bool) {
	for _, t := range knownTokens[chainID] {
		if t.Address == address {
			return t, true
		}
	}
	return Token{}, false
}

// Default returns the default token (conventionally "usdc") for a chain.
func Default(chainID, symbol string) (Token, bool) {
	for _, t := range knownTokens[chainID] {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// Register adds or overrides a token entry, letting callers extend the
// default catalog without forking the package.
func Register(chainID string, t Token) {
	knownTokens[chainID] = append(knownTokens[chainID], t)
}

// RegisterNetwork adds or overrides a network name -> chain ID mapping.
func RegisterNetwork(name, chainID string) {
	networkToChainID[name] = chainID
}
