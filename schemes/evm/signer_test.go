package evm

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-labs/x402-go"
)

func TestNewPrivateKeySignerRejectsInvalidHex(t *testing.T) {
	_, err := NewPrivateKeySigner("not-hex")
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidPrivateKey)
}

func TestNewPrivateKeySignerStripsHexPrefix(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := crypto.FromECDSA(key)

	s, err := NewPrivateKeySigner("0x" + hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), s.GetAddress())
}

func TestPrivateKeySignerSignTypedDataRecoversAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := NewPrivateKeySigner(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	from := crypto.PubkeyToAddress(key.PublicKey)
	typedData := buildAuthorizationTypedData(big.NewInt(8453), "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "USD Coin", "2", from, from, big.NewInt(1000000), 0, 9999999999, [32]byte{})

	sigHex, err := s.SignTypedData(context.Background(), typedData)
	require.NoError(t, err)
	assert.Len(t, sigHex, 132) // 0x + 130 hex chars
}

func TestNewMnemonicSignerRejectsInvalidMnemonic(t *testing.T) {
	_, err := NewMnemonicSigner("not a valid bip39 mnemonic at all", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidMnemonic)
}

func TestNewMnemonicSignerDefaultsDerivationPath(t *testing.T) {
	mnemonic := "test test test test test test test test test test test junk"
	s, err := NewMnemonicSigner(mnemonic, "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.GetAddress())
}

func TestNewKeystoreSignerRejectsMalformedJSON(t *testing.T) {
	_, err := NewKeystoreSigner([]byte("not json"), "password")
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidKeystore)
}

func TestChainIDForPrefersCAIP2Reference(t *testing.T) {
	id, err := chainIDFor(x402.PaymentRequirements{Network: "eip155:8453"})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(8453), id)
}

func TestChainIDForFallsBackToChainCatalog(t *testing.T) {
	id, err := chainIDFor(x402.PaymentRequirements{Network: "base"})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(8453), id)
}

func TestChainIDForUnknownNetworkErrors(t *testing.T) {
	_, err := chainIDFor(x402.PaymentRequirements{Network: "not-a-real-network"})
	assert.Error(t, err)
}

func TestMockSignerSignTypedDataIsDeterministic(t *testing.T) {
	m := NewMockSigner("833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", m.GetAddress())

	zero := common.HexToAddress("0x0")
	sig, err := m.SignTypedData(context.Background(), buildAuthorizationTypedData(big.NewInt(1), "0x0", "n", "1", zero, zero, big.NewInt(0), 0, 0, [32]byte{}))
	require.NoError(t, err)

	want := "0x" + ""
	for i := 0; i < 65; i++ {
		want += "00"
	}
	assert.Equal(t, want, sig)
}
