// Package schemes implements the x402 scheme registry: a dispatch layer
// keyed by (scheme, network) that plugs in per-mechanism client, server,
// and facilitator capabilities.
package schemes

import (
	"context"
	"fmt"

	x402 "github.com/x402-labs/x402-go"
)

// Key identifies a registered mechanism.
type Key struct {
	Scheme  string
	Network x402.Network
}

func (k Key) String() string { return k.Scheme + "@" + string(k.Network) }

// ClientScheme is implemented by client-side payment mechanisms: it signs
// a payload for a chosen requirement.
type ClientScheme interface {
	Scheme() string
	// CreatePaymentPayload produces the scheme-specific inner payload map
	// and signature. Must be deterministic given (requirements,
	// signer-state, wall clock); validBefore-style fields derive from
	// MaxTimeoutSeconds plus current time.
	CreatePaymentPayload(ctx context.Context, requirements x402.PaymentRequirements) (map[string]interface{}, error)
}

// ServerScheme is implemented by server-side payment mechanisms: it turns
// human-friendly price input into canonical requirements.
type ServerScheme interface {
	Scheme() string
	ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error)
	BuildRequirement(payTo string, amount x402.AssetAmount, network x402.Network, maxTimeoutSeconds int) x402.PaymentRequirements
	EnhanceRequirement(req x402.PaymentRequirements, supported x402.SupportedKind) x402.PaymentRequirements
}

// FacilitatorScheme is implemented by facilitator-side payment mechanisms:
// pure verification plus on-chain submission.
type FacilitatorScheme interface {
	Scheme() string
	Verify(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error)
	Settle(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error)
}

// Registry maps (scheme, network) to the capabilities registered for it.
// Populated at startup and read-only thereafter, per the concurrency
// model: no runtime metaprogramming, no mutation after initialization.
type Registry struct {
	clients      map[Key]ClientScheme
	servers      map[Key]ServerScheme
	facilitators map[Key]FacilitatorScheme
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:      make(map[Key]ClientScheme),
		servers:      make(map[Key]ServerScheme),
		facilitators: make(map[Key]FacilitatorScheme),
	}
}

// RegisterClient binds a ClientScheme to (scheme, network). network may use
// the "namespace:*" wildcard form to match an entire chain family.
func (r *Registry) RegisterClient(network x402.Network, c ClientScheme) {
	r.clients[Key{Scheme: c.Scheme(), Network: network}] = c
}

// RegisterServer binds a ServerScheme to (scheme, network).
func (r *Registry) RegisterServer(network x402.Network, s ServerScheme) {
	r.servers[Key{Scheme: s.Scheme(), Network: network}] = s
}

// RegisterFacilitator binds a FacilitatorScheme to (scheme, network).
func (r *Registry) RegisterFacilitator(network x402.Network, f FacilitatorScheme) {
	r.facilitators[Key{Scheme: f.Scheme(), Network: network}] = f
}

// Client looks up a registered ClientScheme, honoring wildcard network
// registrations.
func (r *Registry) Client(scheme string, network x402.Network) (ClientScheme, bool) {
	for k, c := range r.clients {
		if k.Scheme == scheme && network.Match(k.Network) {
			return c, true
		}
	}
	return nil, false
}

// Server looks up a registered ServerScheme.
func (r *Registry) Server(scheme string, network x402.Network) (ServerScheme, bool) {
	for k, s := range r.servers {
		if k.Scheme == scheme && network.Match(k.Network) {
			return s, true
		}
	}
	return nil, false
}

// Facilitator looks up a registered FacilitatorScheme.
func (r *Registry) Facilitator(scheme string, network x402.Network) (FacilitatorScheme, bool) {
	for k, f := range r.facilitators {
		if k.Scheme == scheme && network.Match(k.Network) {
			return f, true
		}
	}
	return nil, false
}

// ClientKeys returns every (scheme, network) pair with a registered
// ClientScheme, used by the client engine to compute the candidate set
// intersected against a server's accepts.
func (r *Registry) ClientKeys() []Key {
	keys := make([]Key, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	return keys
}

// Supports reports whether a (scheme, network) pair has a registered
// client capability, honoring wildcards.
func (r *Registry) Supports(scheme string, network x402.Network) bool {
	_, ok := r.Client(scheme, network)
	return ok
}

// FacilitatorKeys returns every (scheme, network) pair with a registered
// FacilitatorScheme, used to answer GET /supported without an external
// facilitator service.
func (r *Registry) FacilitatorKeys() []Key {
	keys := make([]Key, 0, len(r.facilitators))
	for k := range r.facilitators {
		keys = append(keys, k)
	}
	return keys
}

// errUnregistered is returned by callers that need a typed sentinel for a
// missing registration.
func errUnregistered(scheme string, network x402.Network) error {
	return &x402.Error{
		Code:    x402.UnsupportedNetwork,
		Message: fmt.Sprintf("no scheme registered for %s@%s", scheme, network),
	}
}

// RequireClient is a convenience wrapper returning errUnregistered.
func (r *Registry) RequireClient(scheme string, network x402.Network) (ClientScheme, error) {
	c, ok := r.Client(scheme, network)
	if !ok {
		return nil, errUnregistered(scheme, network)
	}
	return c, nil
}

// RequireFacilitator is a convenience wrapper returning errUnregistered.
func (r *Registry) RequireFacilitator(scheme string, network x402.Network) (FacilitatorScheme, error) {
	f, ok := r.Facilitator(scheme, network)
	if !ok {
		return nil, errUnregistered(scheme, network)
	}
	return f, nil
}
