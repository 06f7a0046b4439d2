package x402

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequiredRoundTrip(t *testing.T) {
	t.Run("V2RoundTrip", func(t *testing.T) {
		pr := &PaymentRequired{
			X402Version: 2,
			Resource:    &ResourceInfo{URL: "https://api.example.com/widgets", MimeType: "application/json"},
			Accepts: []PaymentRequirements{
				{Scheme: "exact", Network: "eip155:8453", Asset: "0xUSDC", Amount: "1000000", PayTo: "0xPayTo", MaxTimeoutSeconds: 60},
			},
		}
		body, err := EncodePaymentRequired(pr)
		require.NoError(t, err)

		decoded, err := DecodePaymentRequired(body)
		require.NoError(t, err)
		assert.Equal(t, 2, decoded.X402Version)
		require.Len(t, decoded.Accepts, 1)
		assert.Equal(t, "1000000", decoded.Accepts[0].GetAmount())
		assert.Equal(t, Network("eip155:8453"), decoded.Accepts[0].Network)
	})

	t.Run("V1RoundTrip", func(t *testing.T) {
		pr := &PaymentRequired{
			X402Version: 1,
			Resource:    &ResourceInfo{URL: "https://api.example.com/widgets", Description: "widgets", MimeType: "application/json"},
			Accepts: []PaymentRequirements{
				{Scheme: "exact", Network: "base", Asset: "0xUSDC", Amount: "1000000", PayTo: "0xPayTo", MaxTimeoutSeconds: 60},
			},
		}
		body, err := EncodePaymentRequired(pr)
		require.NoError(t, err)
		assert.Contains(t, string(body), "maxAmountRequired")
		assert.NotContains(t, string(body), `"amount"`)

		decoded, err := DecodePaymentRequired(body)
		require.NoError(t, err)
		assert.Equal(t, 1, decoded.X402Version)
		require.Len(t, decoded.Accepts, 1)
		assert.Equal(t, "1000000", decoded.Accepts[0].GetAmount())
		require.NotNil(t, decoded.Resource)
		assert.Equal(t, "widgets", decoded.Resource.Description)
	})

	t.Run("UnknownVersionIsRejected", func(t *testing.T) {
		_, err := DecodePaymentRequired([]byte(`{"x402Version":99,"accepts":[]}`))
		require.Error(t, err)
		var xerr *Error
		require.ErrorAs(t, err, &xerr)
		assert.Equal(t, VersionMismatch, xerr.Code)
	})
}

func TestParsePaymentRequiredHeaderWinsOverBody(t *testing.T) {
	headerPR := &PaymentRequired{X402Version: 2, Accepts: []PaymentRequirements{{Scheme: "exact", Network: "eip155:8453", Asset: "0xFromHeader", Amount: "1", PayTo: "0xA"}}}
	headerValue, err := EncodePaymentRequiredHeader(headerPR)
	require.NoError(t, err)

	bodyPR := &PaymentRequired{X402Version: 2, Accepts: []PaymentRequirements{{Scheme: "exact", Network: "eip155:8453", Asset: "0xFromBody", Amount: "1", PayTo: "0xA"}}}
	bodyBytes, err := EncodePaymentRequired(bodyPR)
	require.NoError(t, err)

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(HeaderPaymentRequired, headerValue)

	decoded, err := ParsePaymentRequired(resp, bodyBytes)
	require.NoError(t, err)
	require.Len(t, decoded.Accepts, 1)
	assert.Equal(t, "0xFromHeader", decoded.Accepts[0].Asset, "header must win over body per the x402 disambiguation policy")
}

func TestParsePaymentRequiredFallsBackToBody(t *testing.T) {
	bodyPR := &PaymentRequired{X402Version: 2, Accepts: []PaymentRequirements{{Scheme: "exact", Network: "eip155:8453", Asset: "0xFromBody", Amount: "1", PayTo: "0xA"}}}
	bodyBytes, err := EncodePaymentRequired(bodyPR)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	resp := rec.Result()

	decoded, err := ParsePaymentRequired(resp, bodyBytes)
	require.NoError(t, err)
	require.Len(t, decoded.Accepts, 1)
	assert.Equal(t, "0xFromBody", decoded.Accepts[0].Asset)
}

func TestPaymentPayloadRoundTrip(t *testing.T) {
	t.Run("V2", func(t *testing.T) {
		p := &PaymentPayload{
			X402Version: 2,
			Payload:     map[string]interface{}{"signature": "0xabc"},
			Accepted:    PaymentRequirements{Scheme: "exact", Network: "eip155:8453"},
		}
		header, err := EncodePaymentPayload(p)
		require.NoError(t, err)
		decoded, err := DecodePaymentPayload(header)
		require.NoError(t, err)
		assert.Equal(t, "exact", decoded.Accepted.Scheme)
		assert.Equal(t, Network("eip155:8453"), decoded.Accepted.Network)
		assert.Equal(t, "0xabc", decoded.Payload["signature"])
	})

	t.Run("V1", func(t *testing.T) {
		p := &PaymentPayload{
			X402Version: 1,
			Payload:     map[string]interface{}{"signature": "0xabc"},
			Accepted:    PaymentRequirements{Scheme: "exact", Network: "base"},
		}
		header, err := EncodePaymentPayload(p)
		require.NoError(t, err)
		decoded, err := DecodePaymentPayload(header)
		require.NoError(t, err)
		assert.Equal(t, "exact", decoded.Accepted.Scheme)
		assert.Equal(t, Network("base"), decoded.Accepted.Network)
	})
}

func TestSettleResponseRoundTrip(t *testing.T) {
	s := &SettleResponse{Success: true, Transaction: "0xhash", Network: "eip155:8453", Payer: "0xPayer"}
	header, err := EncodeSettleResponse(s)
	require.NoError(t, err)
	decoded, err := DecodeSettleResponse(header)
	require.NoError(t, err)
	assert.Equal(t, *s, *decoded)
}

func TestNetworkMatch(t *testing.T) {
	assert.True(t, Network("eip155:8453").Match("eip155:8453"))
	assert.True(t, Network("eip155:8453").Match("eip155:*"))
	assert.False(t, Network("solana:mainnet").Match("eip155:*"))
	assert.False(t, Network("eip155:8453").Match("eip155:84532"))
}
