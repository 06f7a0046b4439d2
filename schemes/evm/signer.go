// Package evm implements the EVM-exact scheme: EIP-3009
// TransferWithAuthorization payments signed with EIP-712 typed data,
// verified with ecrecover and an ERC-6492 counterfactual-signature
// fallback, and settled by submitting the authorization on-chain.
package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/schemes/chains"
)

// Signer signs EIP-3009 authorizations. Mirrors the teacher's
// PaymentSigner but narrowed to the one operation the EVM-exact scheme
// needs: SignTypedData.
type Signer interface {
	// SignTypedData signs the given EIP-712 typed data and returns the
	// 65-byte r||s||v signature hex-encoded with a 0x prefix.
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error)
	GetAddress() string
}

// PrivateKeySigner signs with a raw secp256k1 private key.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewPrivateKeySigner creates a signer from a hex-encoded private key.
func NewPrivateKeySigner(privateKeyHex string) (*PrivateKeySigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKeyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPrivateKey, err)
	}
	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPrivateKey, err)
	}
	return &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

func (s *PrivateKeySigner) GetAddress() string { return s.address.Hex() }

func (s *PrivateKeySigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error) {
	sigHash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errSigningFailed, err)
	}
	signature, err := crypto.Sign(sigHash, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errSigningFailed, err)
	}
	// Ethereum signature convention: v is 27/28, not the raw recovery id.
	signature[64] += 27
	return "0x" + hex.EncodeToString(signature), nil
}

// derivePrivateKey derives a BIP-32 child key along path from a seed.
func derivePrivateKey(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	for _, n := range path {
		key, err = key.NewChildKey(n)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}
	return crypto.ToECDSA(key.Key)
}

// MnemonicSigner signs with a key derived from a BIP-39 mnemonic.
type MnemonicSigner struct {
	*PrivateKeySigner
}

// NewMnemonicSigner creates a signer from a mnemonic and derivation path
// (defaults to the standard Ethereum path m/44'/60'/0'/0/0).
func NewMnemonicSigner(mnemonic, derivationPath string) (*MnemonicSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errInvalidMnemonic
	}
	if derivationPath == "" {
		derivationPath = "m/44'/60'/0'/0/0"
	}
	path, err := accounts.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	privateKey, err := derivePrivateKey(seed, path)
	if err != nil {
		return nil, fmt.Errorf("failed to derive private key: %w", err)
	}
	return &MnemonicSigner{PrivateKeySigner: &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}}, nil
}

// KeystoreSigner signs with a key unlocked from an encrypted keystore JSON.
type KeystoreSigner struct {
	*PrivateKeySigner
}

// NewKeystoreSigner decrypts keystoreJSON with password and returns a
// signer bound to the recovered key.
func NewKeystoreSigner(keystoreJSON []byte, password string) (*KeystoreSigner, error) {
	key, err := keystore.DecryptKey(keystoreJSON, password)
	if err != nil {
		if err == keystore.ErrDecrypt {
			return nil, errWrongPassword
		}
		return nil, fmt.Errorf("%w: %v", errInvalidKeystore, err)
	}
	return &KeystoreSigner{PrivateKeySigner: &PrivateKeySigner{
		privateKey: key.PrivateKey,
		address:    key.Address,
	}}, nil
}

// MockSigner produces a deterministic fake signature, for tests.
type MockSigner struct {
	address string
}

// NewMockSigner creates a mock signer bound to address (0x-prefixed if not
// already).
func NewMockSigner(address string) *MockSigner {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return &MockSigner{address: address}
}

func (m *MockSigner) GetAddress() string { return m.address }

func (m *MockSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error) {
	return "0x" + strings.Repeat("00", 65), nil
}

// buildAuthorizationTypedData constructs the EIP-712 TypedData struct for
// an EIP-3009 TransferWithAuthorization: domain {name, version, chainId,
// verifyingContract}, message {from, to, value, validAfter, validBefore,
// nonce}.
func buildAuthorizationTypedData(chainID *big.Int, verifyingContract, name, version string, from, to common.Address, value *big.Int, validAfter, validBefore int64, nonce [32]byte) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: verifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        from.Hex(),
			"to":          to.Hex(),
			"value":       (*math.HexOrDecimal256)(value),
			"validAfter":  (*math.HexOrDecimal256)(big.NewInt(validAfter)),
			"validBefore": (*math.HexOrDecimal256)(big.NewInt(validBefore)),
			"nonce":       "0x" + hex.EncodeToString(nonce[:]),
		},
	}
}

// chainIDFor resolves a PaymentRequirements' network to its numeric chain
// ID via the chain catalog, falling back to the CAIP-2 reference when it's
// already numeric (eip155:8453 -> 8453).
func chainIDFor(req x402.PaymentRequirements) (*big.Int, error) {
	_, ref, err := req.Network.Parse()
	if err == nil && ref != "" {
		if id, ok := new(big.Int).SetString(ref, 10); ok {
			return id, nil
		}
	}
	id, err := chains.GetChainID(string(req.Network))
	if err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", id)
	}
	return n, nil
}
