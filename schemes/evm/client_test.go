package evm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-labs/x402-go"
)

func testRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           "eip155:8453",
		Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Amount:            "1000000",
		PayTo:             "0xMerchant0000000000000000000000000000000",
		MaxTimeoutSeconds: 120,
		Extra:             map[string]interface{}{"name": "USD Coin", "version": "2"},
	}
}

const mockPayerAddress = "1111111111111111111111111111111111111111"

func TestClientSchemeCreatePaymentPayload(t *testing.T) {
	c := NewClientScheme(NewMockSigner(mockPayerAddress))
	payload, err := c.CreatePaymentPayload(context.Background(), testRequirements())
	require.NoError(t, err)

	auth := payload["authorization"].(map[string]interface{})
	assert.Equal(t, "0x"+mockPayerAddress, auth["from"])
	assert.Equal(t, "1000000", auth["value"])
	assert.NotEmpty(t, payload["signature"])
}

func TestClientSchemeCreatePaymentPayloadClampsShortTimeout(t *testing.T) {
	c := NewClientScheme(NewMockSigner(mockPayerAddress))
	req := testRequirements()
	req.MaxTimeoutSeconds = 1

	payload, err := c.CreatePaymentPayload(context.Background(), req)
	require.NoError(t, err)
	auth := payload["authorization"].(map[string]interface{})
	assert.NotEqual(t, "0", auth["validBefore"])
}

func TestClientSchemeCreatePaymentPayloadRejectsInvalidAmount(t *testing.T) {
	c := NewClientScheme(NewMockSigner(mockPayerAddress))
	req := testRequirements()
	req.Amount = "not-a-number"

	_, err := c.CreatePaymentPayload(context.Background(), req)
	require.Error(t, err)
	var xerr *x402.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, x402.InvalidPrice, xerr.Code)
}

func TestClientSchemeCreatePaymentPayloadRejectsZeroAmount(t *testing.T) {
	c := NewClientScheme(NewMockSigner(mockPayerAddress))
	req := testRequirements()
	req.Amount = "0"

	_, err := c.CreatePaymentPayload(context.Background(), req)
	require.Error(t, err)
	var xerr *x402.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, x402.InvalidPrice, xerr.Code)
}

func TestClientSchemeCreatePaymentPayloadRejectsUnsupportedNetwork(t *testing.T) {
	c := NewClientScheme(NewMockSigner(mockPayerAddress))
	req := testRequirements()
	req.Network = "not-a-real-network"

	_, err := c.CreatePaymentPayload(context.Background(), req)
	require.Error(t, err)
	var xerr *x402.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, x402.UnsupportedNetwork, xerr.Code)
}
