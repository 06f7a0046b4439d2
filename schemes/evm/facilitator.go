package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	x402 "github.com/x402-labs/x402-go"
)

// Pre-computed EIP-712 type hashes, constant across every instance.
var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	authTypeHash = crypto.Keccak256Hash([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)",
	))
	transferWithAuthSig = crypto.Keccak256([]byte(
		"transferWithAuthorization(address,address,uint256,uint256,uint256,bytes32,uint8,bytes32,bytes32)",
	))[:4]
)

// FacilitatorScheme implements schemes.FacilitatorScheme for EVM-exact: it
// verifies EIP-3009 authorizations locally (with ERC-6492 fallback for
// undeployed smart accounts) and settles by submitting
// transferWithAuthorization directly to the token contract.
type FacilitatorScheme struct {
	client         *ethclient.Client
	relayerKey     *ecdsa.PrivateKey
	relayerAddress common.Address
	allowUndeployed bool
	validatorAddr  common.Address
	logger         *slog.Logger
}

// FacilitatorOption configures a FacilitatorScheme.
type FacilitatorOption func(*FacilitatorScheme)

// WithAllowUndeployed enables accepting ERC-6492-wrapped signatures from
// counterfactual (not-yet-deployed) smart accounts.
func WithAllowUndeployed(addr common.Address) FacilitatorOption {
	return func(f *FacilitatorScheme) {
		f.allowUndeployed = true
		f.validatorAddr = addr
	}
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) FacilitatorOption {
	return func(f *FacilitatorScheme) { f.logger = l }
}

// NewFacilitatorScheme creates a facilitator that submits settlement
// transactions via ethClient, paying gas from relayerKeyHex.
func NewFacilitatorScheme(ethClient *ethclient.Client, relayerKeyHex string, opts ...FacilitatorOption) (*FacilitatorScheme, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(relayerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}
	f := &FacilitatorScheme{
		client:         ethClient,
		relayerKey:     key,
		relayerAddress: crypto.PubkeyToAddress(key.PublicKey),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FacilitatorScheme) Scheme() string { return "exact" }

type authFields struct {
	from, to                 common.Address
	value, validAfter, validBefore *big.Int
	nonce                     [32]byte
	signature                 []byte
}

func parseAuthPayload(payload map[string]interface{}) (*authFields, error) {
	auth, ok := payload["authorization"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing authorization")
	}
	sigStr, _ := payload["signature"].(string)
	sig, err := hex.DecodeString(strings.TrimPrefix(sigStr, "0x"))
	if err != nil || len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature structure")
	}
	get := func(k string) string { s, _ := auth[k].(string); return s }
	af := &authFields{
		from:        common.HexToAddress(get("from")),
		to:          common.HexToAddress(get("to")),
		value:       mustBig(get("value")),
		validAfter:  mustBig(get("validAfter")),
		validBefore: mustBig(get("validBefore")),
		signature:   sig,
	}
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(get("nonce"), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid nonce")
	}
	copy(af.nonce[32-len(nonceBytes):], nonceBytes)
	return af, nil
}

func mustBig(s string) *big.Int {
	n := new(big.Int)
	n.SetString(s, 10)
	return n
}

func pad32(n *big.Int) []byte {
	b := n.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func addrPad(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}

func domainSeparator(name, version string, chainID *big.Int, contract common.Address) common.Hash {
	enc := make([]byte, 5*32)
	copy(enc[0:32], domainTypeHash.Bytes())
	copy(enc[32:64], crypto.Keccak256([]byte(name)))
	copy(enc[64:96], crypto.Keccak256([]byte(version)))
	copy(enc[96:128], pad32(chainID))
	copy(enc[128:160], addrPad(contract))
	return crypto.Keccak256Hash(enc)
}

func authHash(from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte) common.Hash {
	enc := make([]byte, 7*32)
	copy(enc[0:32], authTypeHash.Bytes())
	copy(enc[32:64], addrPad(from))
	copy(enc[64:96], addrPad(to))
	copy(enc[96:128], pad32(value))
	copy(enc[128:160], pad32(validAfter))
	copy(enc[160:192], pad32(validBefore))
	copy(enc[192:224], nonce[:])
	return crypto.Keccak256Hash(enc)
}

func eip712Digest(chainID *big.Int, verifyingContract common.Address, name, version string, af *authFields) common.Hash {
	ds := domainSeparator(name, version, chainID, verifyingContract)
	ah := authHash(af.from, af.to, af.value, af.validAfter, af.validBefore, af.nonce)
	return crypto.Keccak256Hash(append([]byte{0x19, 0x01}, append(ds.Bytes(), ah.Bytes()...)...))
}

// Verify checks the EIP-3009 signature without touching the chain. If
// ecrecover does not match the claimed signer, and the signature carries
// the ERC-6492 magic suffix, it falls back to a UniversalSigValidator
// eth_call for counterfactual smart-account signatures.
func (f *FacilitatorScheme) Verify(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (x402.VerifyResponse, error) {
	af, err := parseAuthPayload(payload.Payload)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}

	if af.validBefore.Int64() < time.Now().Unix() {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "authorization expired"}, nil
	}

	chainID, err := chainIDFor(req)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}
	name, _ := req.Extra["name"].(string)
	version, _ := req.Extra["version"].(string)
	verifyingContract := common.HexToAddress(req.Asset)
	digest := eip712Digest(chainID, verifyingContract, name, version, af)

	valid, recovered := recoverSigner(digest, af.signature)
	if !valid {
		if _, ok := unwrapERC6492(af.signature); ok && f.allowUndeployed {
			valid, err := f.validateERC6492(ctx, f.validatorAddr, af.from, [32]byte(digest), af.signature)
			if err != nil || !valid {
				return x402.VerifyResponse{IsValid: false, InvalidReason: "ERC-6492 validation failed"}, nil
			}
			recovered = af.from
		} else {
			return x402.VerifyResponse{IsValid: false, InvalidReason: "signature does not recover to claimed signer"}, nil
		}
	}
	if recovered != af.from {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "signature mismatch"}, nil
	}
	if af.to != common.HexToAddress(req.PayTo) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "payTo mismatch"}, nil
	}
	reqAmount := mustBig(req.GetAmount())
	if af.value.Cmp(reqAmount) < 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "amount below required"}, nil
	}

	f.logger.Info("evm verify OK", "payer", recovered.Hex(), "amount", af.value.String(), "network", req.Network)
	return x402.VerifyResponse{IsValid: true, Payer: recovered.Hex()}, nil
}

// recoverSigner attempts ecrecover against a standard 65-byte signature.
// It never returns an error: an unrecoverable signature is reported as a
// non-match, not propagated, so callers can fall through to ERC-6492.
func recoverSigner(digest common.Hash, sig []byte) (bool, common.Address) {
	if len(sig) != 65 {
		return false, common.Address{}
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pubBytes, err := crypto.Ecrecover(digest.Bytes(), normalized)
	if err != nil {
		return false, common.Address{}
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return false, common.Address{}
	}
	return true, crypto.PubkeyToAddress(*pub)
}

// Settle submits transferWithAuthorization to the token contract, paying
// gas from the relayer key, and reports the transaction hash.
func (f *FacilitatorScheme) Settle(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (x402.SettleResponse, error) {
	af, err := parseAuthPayload(payload.Payload)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error()}, nil
	}
	tokenAddr := common.HexToAddress(req.Asset)

	var r, s [32]byte
	copy(r[:], af.signature[:32])
	copy(s[:], af.signature[32:64])
	v := af.signature[64]
	if v < 27 {
		v += 27
	}
	callData := packTransferWithAuth(af.from, af.to, af.value, af.validAfter, af.validBefore, af.nonce, v, r, s)

	chainID, err := chainIDFor(req)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error()}, nil
	}

	nonce, err := f.client.PendingNonceAt(ctx, f.relayerAddress)
	if err != nil {
		return x402.SettleResponse{}, &x402.Error{Code: x402.SettlementFailed, Message: "pending nonce", Wrapped: err}
	}

	gasLimit := uint64(100_000)
	if est, err := f.client.EstimateGas(ctx, ethereum.CallMsg{From: f.relayerAddress, To: &tokenAddr, Data: callData}); err == nil {
		gasLimit = est * 12 / 10
	}

	header, err := f.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return x402.SettleResponse{}, &x402.Error{Code: x402.SettlementFailed, Message: "latest header", Wrapped: err}
	}
	tip := big.NewInt(1e9)
	feeCap := new(big.Int).Add(header.BaseFee, tip)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &tokenAddr,
		Value:     new(big.Int),
		Data:      callData,
	})
	signed, err := types.SignTx(tx, types.NewLondonSigner(chainID), f.relayerKey)
	if err != nil {
		return x402.SettleResponse{}, &x402.Error{Code: x402.SettlementFailed, Message: "sign settlement tx", Wrapped: err}
	}
	if err := f.client.SendTransaction(ctx, signed); err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error()}, nil
	}

	f.logger.Info("settlement tx submitted", "hash", signed.Hash().Hex(), "from", af.from.Hex(), "to", af.to.Hex())
	return x402.SettleResponse{
		Success:     true,
		Transaction: signed.Hash().Hex(),
		Network:     req.Network,
		Payer:       af.from.Hex(),
	}, nil
}

// packTransferWithAuth manually ABI-encodes the transferWithAuthorization
// call, avoiding a runtime abi.JSON parse for a fixed, well-known selector.
func packTransferWithAuth(from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte, v uint8, r, s [32]byte) []byte {
	data := make([]byte, 4+9*32)
	copy(data[:4], transferWithAuthSig)
	offset := 4
	copy(data[offset+12:offset+32], from.Bytes())
	offset += 32
	copy(data[offset+12:offset+32], to.Bytes())
	offset += 32
	copy(data[offset:offset+32], pad32(value))
	offset += 32
	copy(data[offset:offset+32], pad32(validAfter))
	offset += 32
	copy(data[offset:offset+32], pad32(validBefore))
	offset += 32
	copy(data[offset:offset+32], nonce[:])
	offset += 32
	data[offset+31] = v
	offset += 32
	copy(data[offset:offset+32], r[:])
	offset += 32
	copy(data[offset:offset+32], s[:])
	return data
}
