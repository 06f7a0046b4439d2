package solana

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-labs/x402-go"
)

func TestCreatePaymentPayloadMissingFeePayer(t *testing.T) {
	c := &ClientScheme{}
	_, err := c.CreatePaymentPayload(context.Background(), x402.PaymentRequirements{
		Network: "solana",
		Asset:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		PayTo:   "11111111111111111111111111111111",
		Amount:  "1000000",
	})
	require.Error(t, err)
	var xerr *x402.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, x402.InvalidSignatureStructure, xerr.Code)
}

func TestCreatePaymentPayloadUnsupportedNetwork(t *testing.T) {
	c := &ClientScheme{}
	_, err := c.CreatePaymentPayload(context.Background(), x402.PaymentRequirements{
		Network: "solana-testnet",
		Extra:   map[string]interface{}{"feePayer": "11111111111111111111111111111111"},
	})
	require.Error(t, err)
	var xerr *x402.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, x402.UnsupportedNetwork, xerr.Code)
}

func TestCreatePaymentPayloadInvalidMintAddress(t *testing.T) {
	c := &ClientScheme{}
	_, err := c.CreatePaymentPayload(context.Background(), x402.PaymentRequirements{
		Network: "solana",
		Asset:   "not-a-valid-base58-mint!!",
		Extra:   map[string]interface{}{"feePayer": "11111111111111111111111111111111"},
	})
	require.Error(t, err)
	var xerr *x402.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, x402.InvalidPrice, xerr.Code)
}
