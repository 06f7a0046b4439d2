package x402

import "context"

// OutcomeKind is the verdict a hook returns.
type OutcomeKind int

const (
	// OutcomeNone means the hook observed but did not intervene; any
	// return value besides Abort/Recover is purely advisory (logging).
	OutcomeNone OutcomeKind = iota
	// OutcomeAbort short-circuits the pipeline with Reason.
	OutcomeAbort
	// OutcomeRecover substitutes Value for whatever failed and lets the
	// pipeline continue. The meaning of Value is category-specific:
	// a replacement *PaymentPayload for client on-failure hooks, a
	// replacement VerifyResponse/SettleResponse for server hooks.
	OutcomeRecover
)

// Outcome is returned by a hook to steer the pipeline.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Value  interface{}
}

// AbortOutcome builds an aborting Outcome.
func AbortOutcome(reason string) *Outcome {
	return &Outcome{Kind: OutcomeAbort, Reason: reason}
}

// RecoverOutcome builds a recovering Outcome carrying a replacement value.
func RecoverOutcome(value interface{}) *Outcome {
	return &Outcome{Kind: OutcomeRecover, Value: value}
}

// Hook contexts (spec.md §3 "Hook contexts"). A hook is any function of
// shape func(context.Context, *XContext) (*Outcome, error); both
// synchronous hooks (return immediately) and hooks performing their own
// blocking I/O (network calls, on-chain reads) satisfy this signature
// uniformly — the caller always awaits via a plain Go call, so there is
// no separate "async" registration path the way the source's
// coroutine-autodetecting dispatcher needed one.

// PaymentCreationContext is passed to before-payment-creation hooks.
// Extensions is the same map later attached to the outgoing PaymentPayload;
// hooks may mutate it in place.
type PaymentCreationContext struct {
	PaymentRequired *PaymentRequired
	Requirements    PaymentRequirements
	Extensions      map[string]interface{}
}

// PaymentCreatedContext is passed to after-payment-creation hooks.
type PaymentCreatedContext struct {
	Requirements PaymentRequirements
	Payload      *PaymentPayload
}

// PaymentCreationFailureContext is passed to on-failure hooks when scheme
// signing errors.
type PaymentCreationFailureContext struct {
	Requirements PaymentRequirements
	Err          error
}

// VerifyContext is passed to before-verify hooks.
type VerifyContext struct {
	Payload      *PaymentPayload
	Requirements PaymentRequirements
}

// VerifyResultContext is passed to after-verify hooks.
type VerifyResultContext struct {
	Payload      *PaymentPayload
	Requirements PaymentRequirements
	Result       VerifyResponse
}

// VerifyFailureContext is passed to on-verify-failure hooks.
type VerifyFailureContext struct {
	Payload      *PaymentPayload
	Requirements PaymentRequirements
	Result       VerifyResponse
}

// SettleContext is passed to before-settle hooks.
type SettleContext struct {
	Payload      *PaymentPayload
	Requirements PaymentRequirements
}

// SettleFailureContext is passed to on-settle-failure hooks.
type SettleFailureContext struct {
	Payload      *PaymentPayload
	Requirements PaymentRequirements
	Result       SettleResponse
	Err          error
}

// Hook function shapes, named for registration-site readability.
type (
	BeforePaymentCreationHook func(ctx context.Context, hctx *PaymentCreationContext) (*Outcome, error)
	OnPaymentFailureHook      func(ctx context.Context, hctx *PaymentCreationFailureContext) (*Outcome, error)
	AfterPaymentCreationHook  func(ctx context.Context, hctx *PaymentCreatedContext) (*Outcome, error)

	BeforeVerifyHook     func(ctx context.Context, hctx *VerifyContext) (*Outcome, error)
	OnVerifyFailureHook  func(ctx context.Context, hctx *VerifyFailureContext) (*Outcome, error)
	AfterVerifyHook      func(ctx context.Context, hctx *VerifyResultContext) (*Outcome, error)
	BeforeSettleHook     func(ctx context.Context, hctx *SettleContext) (*Outcome, error)
	OnSettleFailureHook  func(ctx context.Context, hctx *SettleFailureContext) (*Outcome, error)
)
