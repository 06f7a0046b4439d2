package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-labs/x402-go"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedAuthPayload(t *testing.T, key *ecdsa.PrivateKey, from, to common.Address, value *big.Int, chainID *big.Int, asset common.Address) map[string]interface{} {
	t.Helper()
	validAfter := big.NewInt(0)
	validBefore := big.NewInt(time.Now().Add(time.Hour).Unix())
	var nonce [32]byte
	nonce[0] = 0x01

	af := &authFields{from: from, to: to, value: value, validAfter: validAfter, validBefore: validBefore, nonce: nonce}
	digest := eip712Digest(chainID, asset, "USD Coin", "2", af)

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27

	return map[string]interface{}{
		"authorization": map[string]interface{}{
			"from":        from.Hex(),
			"to":          to.Hex(),
			"value":       value.String(),
			"validAfter":  validAfter.String(),
			"validBefore": validBefore.String(),
			"nonce":       "0x" + hex.EncodeToString(nonce[:]),
		},
		"signature": "0x" + hex.EncodeToString(sig),
	}
}

func testEVMRequirements(asset, payTo string) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:8453",
		Asset:   asset,
		Amount:  "1000000",
		PayTo:   payTo,
		Extra:   map[string]interface{}{"name": "USD Coin", "version": "2"},
	}
}

func TestFacilitatorVerifyValidSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey)
	merchant := common.HexToAddress("0xMerchant0000000000000000000000000000000")
	asset := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	payload := signedAuthPayload(t, key, payer, merchant, big.NewInt(1000000), big.NewInt(8453), asset)

	f := &FacilitatorScheme{logger: noopLogger()}
	resp, err := f.Verify(context.Background(), &x402.PaymentPayload{Payload: payload}, testEVMRequirements(asset.Hex(), merchant.Hex()))
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, payer.Hex(), resp.Payer)
}

func TestFacilitatorVerifyRejectsTamperedAmount(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey)
	merchant := common.HexToAddress("0xMerchant0000000000000000000000000000000")
	asset := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	payload := signedAuthPayload(t, key, payer, merchant, big.NewInt(1000000), big.NewInt(8453), asset)
	// Tamper with the signed value after signing: recompute digest would differ, so
	// ecrecover yields an unrelated address, not the claimed payer.
	payload["authorization"].(map[string]interface{})["value"] = "999999999"

	f := &FacilitatorScheme{logger: noopLogger()}
	resp, err := f.Verify(context.Background(), &x402.PaymentPayload{Payload: payload}, testEVMRequirements(asset.Hex(), merchant.Hex()))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
}

func TestFacilitatorVerifyRejectsUnwrappedInvalidSignatureWithoutERC6492(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey)
	merchant := common.HexToAddress("0xMerchant0000000000000000000000000000000")
	asset := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	payload := signedAuthPayload(t, key, payer, merchant, big.NewInt(1000000), big.NewInt(8453), asset)
	// Corrupt the signature bytes so ecrecover cannot match, and it carries
	// no ERC-6492 suffix: verification must reject without any chain call.
	sigHex := payload["signature"].(string)
	corrupted := "0x" + sigHex[4:]
	payload["signature"] = corrupted

	f := &FacilitatorScheme{logger: noopLogger(), allowUndeployed: false}
	resp, err := f.Verify(context.Background(), &x402.PaymentPayload{Payload: payload}, testEVMRequirements(asset.Hex(), merchant.Hex()))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
}

func TestFacilitatorVerifyExpiredAuthorization(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey)
	merchant := common.HexToAddress("0xMerchant0000000000000000000000000000000")
	asset := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	af := &authFields{
		from: payer, to: merchant, value: big.NewInt(1000000),
		validAfter: big.NewInt(0), validBefore: big.NewInt(time.Now().Add(-time.Hour).Unix()),
	}
	digest := eip712Digest(big.NewInt(8453), asset, "USD Coin", "2", af)
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27

	payload := map[string]interface{}{
		"authorization": map[string]interface{}{
			"from": payer.Hex(), "to": merchant.Hex(), "value": "1000000",
			"validAfter": "0", "validBefore": af.validBefore.String(), "nonce": "0x00",
		},
		"signature": "0x" + hex.EncodeToString(sig),
	}

	f := &FacilitatorScheme{logger: noopLogger()}
	resp, err := f.Verify(context.Background(), &x402.PaymentPayload{Payload: payload}, testEVMRequirements(asset.Hex(), merchant.Hex()))
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, "authorization expired", resp.InvalidReason)
}
