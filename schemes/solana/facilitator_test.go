package solana

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-labs/x402-go"
)

func TestFacilitatorVerifyMissingTransactionField(t *testing.T) {
	f := &FacilitatorScheme{}
	resp, err := f.Verify(context.Background(), &x402.PaymentPayload{Payload: map[string]interface{}{}}, x402.PaymentRequirements{})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
}

func TestFacilitatorVerifyInvalidBase64(t *testing.T) {
	f := &FacilitatorScheme{}
	payload := &x402.PaymentPayload{Payload: map[string]interface{}{"transaction": "not-valid-base64!!"}}
	resp, err := f.Verify(context.Background(), payload, x402.PaymentRequirements{})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
}

func TestFacilitatorVerifyMalformedTransactionBytes(t *testing.T) {
	f := &FacilitatorScheme{}
	// Valid base64, but not a deserializable Solana transaction.
	payload := &x402.PaymentPayload{Payload: map[string]interface{}{"transaction": "AAAAAAAAAAAAAAAAAAAAAA=="}}
	resp, err := f.Verify(context.Background(), payload, x402.PaymentRequirements{})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
}

func TestNewFacilitatorSchemeRejectsInvalidKey(t *testing.T) {
	_, err := NewFacilitatorScheme("not-a-valid-base58-private-key")
	assert.Error(t, err)
}
