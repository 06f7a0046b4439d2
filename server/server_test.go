package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/extensions/paymentidentifier"
	"github.com/x402-labs/x402-go/schemes"
)

const testNetwork = x402.Network("eip155:8453")

// fakeScheme implements schemes.ServerScheme and schemes.FacilitatorScheme
// with scripted verify/settle outcomes, for exercising the Gate pipeline
// without a real chain.
type fakeScheme struct {
	verifyResp x402.VerifyResponse
	verifyErr  error
	settleResp x402.SettleResponse
	settleErr  error

	verifyCalls  int
	settleCalls  int
	handlerCalls int
}

func (f *fakeScheme) Scheme() string { return "exact" }

func (f *fakeScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	return x402.AssetAmount{Asset: "0xUSDC", Amount: "1000000"}, nil
}

func (f *fakeScheme) BuildRequirement(payTo string, amount x402.AssetAmount, network x402.Network, maxTimeoutSeconds int) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme: "exact", Network: network, Asset: amount.Asset, Amount: amount.Amount,
		PayTo: payTo, MaxTimeoutSeconds: maxTimeoutSeconds,
	}
}

func (f *fakeScheme) EnhanceRequirement(req x402.PaymentRequirements, supported x402.SupportedKind) x402.PaymentRequirements {
	return req
}

func (f *fakeScheme) Verify(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	f.verifyCalls++
	return f.verifyResp, f.verifyErr
}

func (f *fakeScheme) Settle(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	f.settleCalls++
	return f.settleResp, f.settleErr
}

func newTestRegistry(fs *fakeScheme) *schemes.Registry {
	r := schemes.NewRegistry()
	r.RegisterServer(testNetwork, fs)
	r.RegisterFacilitator(testNetwork, fs)
	return r
}

func signedRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	payload := &x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0xsig"},
		Accepted:    x402.PaymentRequirements{Scheme: "exact", Network: testNetwork},
	}
	header, err := x402.EncodePaymentPayload(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(x402.HeaderPaymentSignature, header)
	return req
}

func routeTable() RouteTable {
	return RouteTable{
		{
			Methods:  []string{"GET"},
			Patterns: []string{"/paid"},
			Config: RouteConfig{
				Accepts: []PaymentOption{{Scheme: "exact", Network: testNetwork, Price: "$0.01", PayTo: "0xMerchant"}},
			},
		},
	}
}

func TestGateBypassesUnmatchedRoutes(t *testing.T) {
	fs := &fakeScheme{}
	g := New(newTestRegistry(fs))
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/unprotected", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, fs.verifyCalls)
}

func TestGateReturns402WithoutPaymentHeader(t *testing.T) {
	fs := &fakeScheme{}
	g := New(newTestRegistry(fs))
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a payment header")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/paid", nil))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	pr, err := x402.DecodePaymentRequired(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, pr.Accepts, 1)
	assert.Equal(t, "0xMerchant", pr.Accepts[0].PayTo)
}

func TestGateSucceedsAndFlushesSettlementReceipt(t *testing.T) {
	fs := &fakeScheme{
		verifyResp: x402.VerifyResponse{IsValid: true, Payer: "0xPayer"},
		settleResp: x402.SettleResponse{Success: true, Transaction: "0xhash", Network: testNetwork, Payer: "0xPayer"},
	}
	g := New(newTestRegistry(fs))
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.handlerCalls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("paid content"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "GET", "/paid"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid content", rec.Body.String())
	assert.Equal(t, 1, fs.handlerCalls)
	assert.Equal(t, 1, fs.verifyCalls)
	assert.Equal(t, 1, fs.settleCalls)
	assert.NotEmpty(t, rec.Header().Get(x402.HeaderPaymentResponse))
}

func TestGateInvalidPaymentNever402sWithoutBody(t *testing.T) {
	fs := &fakeScheme{verifyResp: x402.VerifyResponse{IsValid: false, InvalidReason: "bad signature"}}
	g := New(newTestRegistry(fs))
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.handlerCalls++
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "GET", "/paid"))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 0, fs.handlerCalls, "handler must never run when verification fails")
	assert.Equal(t, 0, fs.settleCalls)
}

// TestGateDiscardsHandlerOutputOnSettleFailure is the critical-invariant
// test: a handler that already wrote a 200 body must never reach the
// client if settlement subsequently fails.
func TestGateDiscardsHandlerOutputOnSettleFailure(t *testing.T) {
	fs := &fakeScheme{
		verifyResp: x402.VerifyResponse{IsValid: true, Payer: "0xPayer"},
		settleResp: x402.SettleResponse{Success: false, ErrorReason: "insufficient funds"},
	}
	g := New(newTestRegistry(fs))
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.handlerCalls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("secret content the payer must not receive for free"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "GET", "/paid"))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 1, fs.handlerCalls, "handler does run (buffered) before settlement")
	assert.NotContains(t, rec.Body.String(), "secret content", "buffered handler output must be discarded on settle failure")
}

func TestGateBeforeVerifyHookAbort(t *testing.T) {
	fs := &fakeScheme{verifyResp: x402.VerifyResponse{IsValid: true}}
	g := New(newTestRegistry(fs), WithHooks(Hooks{
		BeforeVerify: []x402.BeforeVerifyHook{
			func(ctx context.Context, c *x402.VerifyContext) (*x402.Outcome, error) {
				return x402.AbortOutcome("policy violation"), nil
			},
		},
	}))
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run when before-verify hook aborts")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "GET", "/paid"))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 0, fs.verifyCalls, "verify must not run once before-verify hook aborts")

	pr, err := x402.DecodePaymentRequired(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "policy violation", pr.Error)
}

func TestGateOnVerifyFailureHookRecovers(t *testing.T) {
	fs := &fakeScheme{
		verifyResp: x402.VerifyResponse{IsValid: false, InvalidReason: "stale timestamp"},
		settleResp: x402.SettleResponse{Success: true},
	}
	g := New(newTestRegistry(fs), WithHooks(Hooks{
		OnVerifyFailure: []x402.OnVerifyFailureHook{
			func(ctx context.Context, c *x402.VerifyFailureContext) (*x402.Outcome, error) {
				return x402.RecoverOutcome(x402.VerifyResponse{IsValid: true, Payer: "0xRecovered"}), nil
			},
		},
	}))
	ran := false
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "GET", "/paid"))

	assert.True(t, ran, "handler runs once on-verify-failure hook recovers validity")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateBeforeSettleHookAbortDiscardsOutput(t *testing.T) {
	fs := &fakeScheme{verifyResp: x402.VerifyResponse{IsValid: true, Payer: "0xPayer"}}
	g := New(newTestRegistry(fs), WithHooks(Hooks{
		BeforeSettle: []x402.BeforeSettleHook{
			func(ctx context.Context, c *x402.SettleContext) (*x402.Outcome, error) {
				return x402.AbortOutcome("fraud check failed"), nil
			},
		},
	}))
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("paid content"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "GET", "/paid"))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 0, fs.settleCalls, "settle must not run once before-settle hook aborts")
	assert.NotContains(t, rec.Body.String(), "paid content")
}

func TestGatePaymentIdentifierReplay(t *testing.T) {
	fs := &fakeScheme{
		verifyResp: x402.VerifyResponse{IsValid: true, Payer: "0xPayer"},
		settleResp: x402.SettleResponse{Success: true, Transaction: "0xhash"},
	}
	cache := paymentidentifier.NewReplayCache()
	g := New(newTestRegistry(fs), WithReplayStore(cache))

	calls := 0
	handler := g.Gate(routeTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("generated content"))
	}))

	req := func() *http.Request {
		r := signedRequest(t, "GET", "/paid")
		payload, _ := x402.DecodePaymentPayload(r.Header.Get(x402.HeaderPaymentSignature))
		payload.Extensions = map[string]interface{}{
			paymentidentifier.Key: map[string]interface{}{"info": map[string]interface{}{"id": "abcdefghijklmnop"}},
		}
		header, _ := x402.EncodePaymentPayload(payload)
		r.Header.Set(x402.HeaderPaymentSignature, header)
		return r
	}

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req())
	assert.Equal(t, http.StatusOK, rec1.Code)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, fs.verifyCalls)
	assert.Equal(t, 1, fs.settleCalls)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req())
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, rec1.Body.String(), rec2.Body.String())
	assert.Equal(t, 1, calls, "handler must not re-run for a replayed payment id")
	assert.Equal(t, 1, fs.verifyCalls, "verification must not re-run for a replayed payment id")
	assert.Equal(t, 1, fs.settleCalls, "settlement must not re-run for a replayed payment id")
}
