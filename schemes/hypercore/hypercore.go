// Package hypercore implements the Hypercore-exact x402 payment scheme: a
// Hyperliquid "sendAsset" action signed with the exchange's own EIP-712
// wrapper, settled by submitting the signed action to the Hyperliquid
// exchange API rather than to a smart contract. No Go SDK for Hyperliquid
// exists anywhere in the retrieval pack, so this package is authored
// fresh, in the idiom schemes/evm and schemes/solana already establish
// (Signer interface, ClientScheme/ServerScheme/FacilitatorScheme trio),
// from the wire-format fixtures in the original Python implementation's
// mechanisms/hypercore test suite.
package hypercore

// CAIP-2 network identifiers for the two Hyperliquid environments.
const (
	NetworkMainnet = "hypercore:mainnet"
	NetworkTestnet = "hypercore:testnet"
)

// Hyperliquid exchange API base URLs.
const (
	APIMainnet = "https://api.hyperliquid.xyz"
	APITestnet = "https://api.hyperliquid-testnet.xyz"
)

// MaxNonceAgeSeconds bounds how far in the past a sendAsset action's
// millisecond nonce may be before a facilitator rejects it as stale.
const MaxNonceAgeSeconds = 3600

// signatureChainID is the fixed EIP-712 chain ID Hyperliquid's exchange
// signing scheme uses for every action, independent of the underlying
// network (999 decimal, "0x3e7" hex).
const signatureChainID = "0x3e7"

// AssetInfo describes a Hypercore spot-market asset identifier.
type AssetInfo struct {
	Token    string // "<symbol>:<32-hex address>" identifier, e.g. "USDH:0x54e0..."
	Name     string
	Decimals int
}

// NetworkConfig binds a network's default asset and API endpoint.
type NetworkConfig struct {
	DefaultAsset AssetInfo
	APIURL       string
	IsMainnet    bool
}

// NetworkConfigs is the default per-network catalog, grounded on the
// Python test fixtures' NETWORK_CONFIGS table.
var NetworkConfigs = map[string]NetworkConfig{
	NetworkMainnet: {
		DefaultAsset: AssetInfo{Token: "USDH:0x54e00a5988577cb0b0c9ab0cb6ef7f4b", Name: "USDH", Decimals: 8},
		APIURL:       APIMainnet,
		IsMainnet:    true,
	},
	NetworkTestnet: {
		DefaultAsset: AssetInfo{Token: "USDH:0x471fd4480bb9943a1fe080ab0d4ff36c", Name: "USDH", Decimals: 8},
		APIURL:       APITestnet,
		IsMainnet:    false,
	},
}

// Error reason strings surfaced in x402.VerifyResponse.InvalidReason /
// x402.SettleResponse.ErrorReason, mirroring the Python package's
// ERR_* constants so logs read the same across implementations.
const (
	ErrInvalidNetwork      = "invalid_network"
	ErrInvalidActionType   = "invalid_action_type"
	ErrDestinationMismatch = "destination_mismatch"
	ErrInsufficientAmount  = "insufficient_amount"
	ErrTokenMismatch       = "token_mismatch"
	ErrNonceTooOld         = "nonce_too_old"
	ErrInvalidSignature    = "invalid_signature_structure"
	ErrSettlementFailed    = "settlement_failed"
)
