// Package server implements the x402 Server Engine: Gate wraps an
// http.Handler with a route-matching payment gate, buffering the
// handler's response until verification and settlement both succeed
// (spec.md §4.4). Grounded in shape on the teacher's
// server/middleware.go, rebuilt around a standard http.Handler
// middleware instead of an MCP tool-name dispatch, and restructured to
// fix its settle-before-handler ordering (spec.md §4.4's critical
// invariant).
package server

import (
	"context"
	"log/slog"
	"net/http"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/extensions/paymentidentifier"
	"github.com/x402-labs/x402-go/schemes"
)

// Hooks groups every server-side lifecycle hook category, in
// registration order within each category (spec.md §4.4 steps 6-11).
type Hooks struct {
	BeforeVerify    []x402.BeforeVerifyHook
	OnVerifyFailure []x402.OnVerifyFailureHook
	AfterVerify     []x402.AfterVerifyHook
	BeforeSettle    []x402.BeforeSettleHook
	OnSettleFailure []x402.OnSettleFailureHook
}

// Gateway builds the http.Handler middleware Gate returns. The zero
// value is not usable; construct via New.
type Gateway struct {
	registry    *schemes.Registry
	facilitator Facilitator
	hooks       Hooks
	logger      *slog.Logger
	version     int
	replayStore paymentidentifier.ReplayStore
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithFacilitator overrides the default registry-backed Facilitator with
// e.g. an HTTPFacilitator talking to a remote service.
func WithFacilitator(f Facilitator) Option {
	return func(g *Gateway) { g.facilitator = f }
}

// WithHooks registers lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(g *Gateway) { g.hooks = h }
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithVersion sets the x402Version this server advertises in 402
// responses (default 2).
func WithVersion(v int) Option {
	return func(g *Gateway) { g.version = v }
}

// WithReplayStore enables payment-identifier idempotent replay: a
// request carrying a recognized id whose signed payload was already
// cached short-circuits straight to the cached response without
// re-verifying or re-settling (spec.md §4.5).
func WithReplayStore(store paymentidentifier.ReplayStore) Option {
	return func(g *Gateway) { g.replayStore = store }
}

// New creates a Gateway backed by registry, which must already have
// every ServerScheme and FacilitatorScheme the caller wants to accept
// registered.
func New(registry *schemes.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		logger:   slog.Default(),
		version:  2,
	}
	g.facilitator = NewRegistryFacilitator(registry)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Gate returns the middleware constructor for table: requests matching a
// route are gated through the payment pipeline; everything else passes
// through untouched (spec.md §4.4 step 1: "If no match, bypass gating").
func (g *Gateway) Gate(table RouteTable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := table.Match(r.Method, r.URL.Path)
			if route == nil {
				next.ServeHTTP(w, r)
				return
			}
			g.gateRoute(w, r, route, next)
		})
	}
}

func (g *Gateway) gateRoute(w http.ResponseWriter, r *http.Request, route *Route, next http.Handler) {
	ctx := r.Context()
	resourceURL := r.URL.String()

	// Step 2: build PaymentRequired for this route.
	paymentRequired := g.buildPaymentRequired(ctx, route, r.Method, resourceURL)

	// Step 3: read the version-appropriate header; v2 is tried first,
	// falling back to v1 so an older client is still served.
	header := r.Header.Get(x402.HeaderPaymentSignature)
	if header == "" {
		header = r.Header.Get(x402.HeaderXPayment)
	}
	if header == "" {
		g.respond402(w, paymentRequired)
		return
	}

	// Step 4: decode.
	payload, err := x402.DecodePaymentPayload(header)
	if err != nil {
		paymentRequired.Error = "invalid payment payload: " + err.Error()
		g.respond402(w, paymentRequired)
		return
	}

	// Step 5: select the matching requirement.
	selected, ok := matchRequirement(payload, paymentRequired.Accepts)
	if !ok {
		paymentRequired.Error = "no accepted payment requirement matches the supplied (scheme, network)"
		g.respond402(w, paymentRequired)
		return
	}

	// Replay short-circuit: a recognized payment id whose signed payload
	// was already fully settled skips straight to the cached response,
	// without running Verify, Settle, or any hook in between (spec.md
	// §4.5: "without re-verifying or re-settling"). The binding key is
	// derived from the payload itself, so the lookup needs no
	// facilitator round trip and can happen ahead of Verify.
	paymentID, hasPaymentID := "", false
	var bindingKey string
	if g.replayStore != nil && payload.Extensions != nil {
		if raw, present := payload.Extensions[paymentidentifier.Key]; present {
			paymentID, hasPaymentID = paymentidentifier.ExtractPaymentID(raw)
		}
		if hasPaymentID {
			if key, err := paymentidentifier.PayloadBindingKey(payload); err == nil {
				bindingKey = key
				if cached, ok := g.replayStore.Load(bindingKey, paymentID); ok {
					flushCached(w, cached)
					return
				}
			} else {
				g.logger.Error("computing payment-identifier binding key", "error", err)
			}
		}
	}

	// Step 6: before-verify hooks.
	verifyCtx := &x402.VerifyContext{Payload: payload, Requirements: selected}
	if outcome, err := runVerifyHooks(ctx, g.hooks.BeforeVerify, verifyCtx); err != nil {
		g.logger.Error("before-verify hook error", "error", err)
		paymentRequired.Error = err.Error()
		g.respond402(w, paymentRequired)
		return
	} else if outcome != nil && outcome.Kind == x402.OutcomeAbort {
		paymentRequired.Error = outcome.Reason
		g.respond402(w, paymentRequired)
		return
	}

	// Step 7: verify.
	verifyResp, err := g.facilitator.Verify(ctx, payload, selected)
	if err != nil {
		paymentRequired.Error = "verification error: " + err.Error()
		g.respond402(w, paymentRequired)
		return
	}
	if !verifyResp.IsValid {
		failureCtx := &x402.VerifyFailureContext{Payload: payload, Requirements: selected, Result: verifyResp}
		outcome, hookErr := runVerifyFailureHooks(ctx, g.hooks.OnVerifyFailure, failureCtx)
		if hookErr != nil {
			g.logger.Error("on-verify-failure hook error", "error", hookErr)
		}
		if outcome != nil && outcome.Kind == x402.OutcomeRecover {
			if recovered, ok := outcome.Value.(x402.VerifyResponse); ok {
				verifyResp = recovered
			}
		}
		if !verifyResp.IsValid {
			paymentRequired.Error = verifyResp.InvalidReason
			g.respond402(w, paymentRequired)
			return
		}
	}

	// Step 8: after-verify hooks (advisory; aborting here is not in the
	// spec's contract since verification already succeeded).
	resultCtx := &x402.VerifyResultContext{Payload: payload, Requirements: selected, Result: verifyResp}
	if _, err := runVerifyResultHooks(ctx, g.hooks.AfterVerify, resultCtx); err != nil {
		g.logger.Error("after-verify hook error", "error", err)
	}

	// Step 9: run the downstream handler into a buffer; nothing reaches
	// the client yet.
	buffered := newBufferedResponseWriter()
	next.ServeHTTP(buffered, r)

	// Step 10: before-settle hooks; abort discards the buffered output.
	settleCtx := &x402.SettleContext{Payload: payload, Requirements: selected}
	if outcome, err := runSettleHooks(ctx, g.hooks.BeforeSettle, settleCtx); err != nil {
		g.logger.Error("before-settle hook error", "error", err)
		buffered.discard()
		paymentRequired.Error = err.Error()
		g.respond402(w, paymentRequired)
		return
	} else if outcome != nil && outcome.Kind == x402.OutcomeAbort {
		buffered.discard()
		paymentRequired.Error = outcome.Reason
		g.respond402(w, paymentRequired)
		return
	}

	// Step 11: settle.
	settleResp, settleErr := g.facilitator.Settle(ctx, payload, selected)
	if settleErr != nil || !settleResp.Success {
		failureCtx := &x402.SettleFailureContext{Payload: payload, Requirements: selected, Result: settleResp, Err: settleErr}
		outcome, hookErr := runSettleFailureHooks(ctx, g.hooks.OnSettleFailure, failureCtx)
		if hookErr != nil {
			g.logger.Error("on-settle-failure hook error", "error", hookErr)
		}
		if outcome != nil && outcome.Kind == x402.OutcomeRecover {
			if recovered, ok := outcome.Value.(x402.SettleResponse); ok {
				settleResp = recovered
			}
		}
		if !settleResp.Success {
			buffered.discard()
			paymentRequired.Error = settleResp.ErrorReason
			if paymentRequired.Error == "" && settleErr != nil {
				paymentRequired.Error = settleErr.Error()
			}
			g.respond402(w, paymentRequired)
			return
		}
	}

	// Step 12: attach the settlement receipt and flush.
	receiptHeader, err := x402.EncodeSettleResponse(&settleResp)
	if err != nil {
		g.logger.Error("encoding settle response", "error", err)
	} else {
		buffered.Header().Set(x402.ResponseHeaderName(payload.X402Version), receiptHeader)
	}

	if g.replayStore != nil && hasPaymentID {
		g.replayStore.Store(bindingKey, paymentID, paymentidentifier.CachedResponse{
			StatusCode: buffered.statusCode,
			Header:     buffered.header.Clone(),
			Body:       append([]byte(nil), buffered.body.Bytes()...),
			Settlement: &settleResp,
		})
	}

	buffered.flush(w)
}

func flushCached(w http.ResponseWriter, cached paymentidentifier.CachedResponse) {
	for k, values := range cached.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(cached.StatusCode)
	w.Write(cached.Body)
}

func (g *Gateway) respond402(w http.ResponseWriter, pr *x402.PaymentRequired) {
	body, err := x402.EncodePaymentRequired(pr)
	if err != nil {
		http.Error(w, "failed to encode payment required", http.StatusInternalServerError)
		return
	}
	if pr.X402Version != 1 {
		if headerValue, err := x402.EncodePaymentRequiredHeader(pr); err == nil {
			w.Header().Set(x402.HeaderPaymentRequired, headerValue)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	w.Write(body)
}

func runVerifyHooks(ctx context.Context, hooks []x402.BeforeVerifyHook, hctx *x402.VerifyContext) (*x402.Outcome, error) {
	for _, hook := range hooks {
		outcome, err := hook(ctx, hctx)
		if err != nil {
			return nil, err
		}
		if outcome != nil && outcome.Kind != x402.OutcomeNone {
			return outcome, nil
		}
	}
	return nil, nil
}

func runVerifyFailureHooks(ctx context.Context, hooks []x402.OnVerifyFailureHook, hctx *x402.VerifyFailureContext) (*x402.Outcome, error) {
	for _, hook := range hooks {
		outcome, err := hook(ctx, hctx)
		if err != nil {
			return nil, err
		}
		if outcome != nil && outcome.Kind != x402.OutcomeNone {
			return outcome, nil
		}
	}
	return nil, nil
}

func runVerifyResultHooks(ctx context.Context, hooks []x402.AfterVerifyHook, hctx *x402.VerifyResultContext) (*x402.Outcome, error) {
	for _, hook := range hooks {
		outcome, err := hook(ctx, hctx)
		if err != nil {
			return nil, err
		}
		if outcome != nil && outcome.Kind != x402.OutcomeNone {
			return outcome, nil
		}
	}
	return nil, nil
}

func runSettleHooks(ctx context.Context, hooks []x402.BeforeSettleHook, hctx *x402.SettleContext) (*x402.Outcome, error) {
	for _, hook := range hooks {
		outcome, err := hook(ctx, hctx)
		if err != nil {
			return nil, err
		}
		if outcome != nil && outcome.Kind != x402.OutcomeNone {
			return outcome, nil
		}
	}
	return nil, nil
}

func runSettleFailureHooks(ctx context.Context, hooks []x402.OnSettleFailureHook, hctx *x402.SettleFailureContext) (*x402.Outcome, error) {
	for _, hook := range hooks {
		outcome, err := hook(ctx, hctx)
		if err != nil {
			return nil, err
		}
		if outcome != nil && outcome.Kind != x402.OutcomeNone {
			return outcome, nil
		}
	}
	return nil, nil
}
