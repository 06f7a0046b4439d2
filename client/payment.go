package client

import (
	"context"
	"io"
	"net/http"

	x402 "github.com/x402-labs/x402-go"
)

// payAndRetry executes lifecycle steps 3-12 against a 402 response and
// returns the retried response. When payment cannot proceed at all (empty
// candidate set, or a second 402 on retry) the relevant response is still
// returned alongside a structured error rather than silently swallowed
// (spec.md §4.3 step 4, §7).
func (c *Client) payAndRetry(origReq *http.Request, origBody []byte, resp402 *http.Response) (*http.Response, error) {
	ctx := origReq.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := io.ReadAll(resp402.Body)
	resp402.Body.Close()
	if err != nil {
		return nil, err
	}

	// Step 3: decode, header wins over body.
	paymentRequired, err := x402.ParsePaymentRequired(resp402, body)
	if err != nil {
		return nil, err
	}

	// Step 4: candidate set = accepts ∩ registeredSchemes.
	var candidates []x402.PaymentRequirements
	for _, req := range paymentRequired.Accepts {
		if c.registry.Supports(req.Scheme, req.Network) {
			candidates = append(candidates, req)
		}
	}
	if len(candidates) == 0 {
		c.logger.Warn("no mutually-supported payment requirements", "accepts", len(paymentRequired.Accepts))
		return resp402, &x402.Error{Code: x402.NoMatchingRequirements, Message: "no accepted payment requirement matches a registered scheme"}
	}

	// Step 5: selector.
	selected, err := c.selector(paymentRequired.X402Version, candidates)
	if err != nil {
		return nil, err
	}

	if paymentRequired.Extensions == nil {
		paymentRequired.Extensions = map[string]interface{}{}
	}

	// Step 6: before-payment-creation hooks, abort short-circuits.
	creationCtx := &x402.PaymentCreationContext{
		PaymentRequired: paymentRequired,
		Requirements:    selected,
		Extensions:      paymentRequired.Extensions,
	}
	if outcome, err := runHooks(ctx, c.hooks.BeforePaymentCreation, creationCtx); err != nil {
		return nil, err
	} else if outcome != nil && outcome.Kind == x402.OutcomeAbort {
		return nil, &x402.Error{Code: x402.PaymentAborted, Message: outcome.Reason}
	}

	// Step 7: invoke the client scheme.
	clientScheme, err := c.registry.RequireClient(selected.Scheme, selected.Network)
	if err != nil {
		return nil, err
	}
	innerPayload, signErr := clientScheme.CreatePaymentPayload(ctx, selected)

	var payload *x402.PaymentPayload
	if signErr != nil {
		// Step 8: on-failure hooks may recover with a replacement payload.
		failureCtx := &x402.PaymentCreationFailureContext{Requirements: selected, Err: signErr}
		outcome, hookErr := runFailureHooks(ctx, c.hooks.OnPaymentFailure, failureCtx)
		if hookErr != nil {
			return nil, hookErr
		}
		if outcome == nil || outcome.Kind != x402.OutcomeRecover {
			return nil, signErr
		}
		recovered, ok := outcome.Value.(*x402.PaymentPayload)
		if !ok {
			return nil, signErr
		}
		payload = recovered
	} else {
		payload = &x402.PaymentPayload{
			X402Version: paymentRequired.X402Version,
			Payload:     innerPayload,
			Accepted:    selected,
			Scheme:      selected.Scheme,
			Network:     string(selected.Network),
			Resource:    paymentRequired.Resource,
			Extensions:  paymentRequired.Extensions,
		}
	}

	// Step 9: after-payment-creation hooks.
	createdCtx := &x402.PaymentCreatedContext{Requirements: selected, Payload: payload}
	if outcome, err := runCreatedHooks(ctx, c.hooks.AfterPaymentCreation, createdCtx); err != nil {
		return nil, err
	} else if outcome != nil && outcome.Kind == x402.OutcomeAbort {
		return nil, &x402.Error{Code: x402.PaymentAborted, Message: outcome.Reason}
	}

	// Step 10: encode and attach header, resend the exact same request.
	headerValue, err := x402.EncodePaymentPayload(payload)
	if err != nil {
		return nil, err
	}
	retryReq := cloneWithBody(origReq, origBody)
	retryReq.Header.Set(x402.RequestHeaderName(payload.X402Version), headerValue)

	retryResp, err := c.transport.RoundTrip(retryReq)
	if err != nil {
		return nil, err
	}

	// Step 11: exactly one retry; a second 402 is terminal, but the
	// response itself is still handed back alongside the error so the
	// caller can inspect the rejection (spec.md §7).
	if retryResp.StatusCode == http.StatusPaymentRequired {
		return retryResp, &x402.Error{Code: x402.PaymentAlreadyAttempted, Message: "payment rejected on retry"}
	}

	// Step 12: receipt is available via the response header for callers
	// that want it; DecodeSettleResponse(resp.Header.Get(...)) on demand.
	return retryResp, nil
}

// runHooks runs before-payment-creation hooks in registration order,
// returning the first non-nil outcome of kind Abort or Recover. Outcomes
// of kind None are advisory and do not stop iteration.
func runHooks(ctx context.Context, hooks []x402.BeforePaymentCreationHook, hctx *x402.PaymentCreationContext) (*x402.Outcome, error) {
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

// runFailureHooks runs on-payment-failure hooks in registration order.
func runFailureHooks(ctx context.Context, hooks []x402.OnPaymentFailureHook, hctx *x402.PaymentCreationFailureContext) (*x402.Outcome, error) {
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

// runCreatedHooks runs after-payment-creation hooks in registration order.
func runCreatedHooks(ctx context.Context, hooks []x402.AfterPaymentCreationHook, hctx *x402.PaymentCreatedContext) (*x402.Outcome, error) {
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
