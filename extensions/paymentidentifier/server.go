package paymentidentifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/extensions"
)

// Extension is the server-side payment-identifier extension: Declare
// advertises whether an id is required, Enrich is a no-op since the
// declaration carries no per-request data.
type Extension struct {
	required bool
}

// New creates a server-side extension; required marks the id mandatory.
func New(required bool) *Extension {
	return &Extension{required: required}
}

func (e *Extension) Key() string { return Key }

func (e *Extension) Declare(required bool) *extensions.Declaration {
	return &extensions.Declaration{Info: Info{Required: required || e.required}}
}

func (e *Extension) Enrich(decl *extensions.Declaration, reqCtx extensions.RequestContext) *extensions.Declaration {
	return decl
}

// CachedResponse is a complete prior response, stored so a retried
// request carrying the same payment id can be replayed without
// re-verifying or re-settling (spec.md §4.5: "MUST return the cached
// response of the first fully-settled request").
type CachedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Settlement *x402.SettleResponse
}

// ReplayStore is the persistence boundary for idempotent replay. bindingKey
// ties a paymentID to the signed payload it was first seen with (see
// PayloadBindingKey) so the lookup can happen before Verify runs, rather
// than a payer address Verify would have to produce first. TTL and
// durability are deliberately left to the implementation: spec.md §4.5
// only requires cross-payer collision safety, not a specific eviction or
// storage policy (see DESIGN.md's Open Question decision).
type ReplayStore interface {
	Load(bindingKey, paymentID string) (CachedResponse, bool)
	Store(bindingKey, paymentID string, resp CachedResponse)
}

// ReplayCache is the default in-memory ReplayStore, keyed by
// (bindingKey, paymentID). bindingKey is a hash of the signed payload
// (PayloadBindingKey), not the verified payer address: computing it needs
// no facilitator round trip, so a cache hit short-circuits entirely before
// Verify or Settle run. It still satisfies spec.md §4.5's collision-safety
// requirement — a payload an attacker cannot themselves have signed hashes
// to a different key, so reusing a stranger's id alone produces no hit.
type ReplayCache struct {
	entries sync.Map
}

// NewReplayCache creates an empty in-memory ReplayCache.
func NewReplayCache() *ReplayCache {
	return &ReplayCache{}
}

func cacheKey(bindingKey, paymentID string) string { return bindingKey + "\x00" + paymentID }

func (c *ReplayCache) Load(bindingKey, paymentID string) (CachedResponse, bool) {
	v, ok := c.entries.Load(cacheKey(bindingKey, paymentID))
	if !ok {
		return CachedResponse{}, false
	}
	return v.(CachedResponse), true
}

// PayloadBindingKey hashes the scheme-specific signed fields of payload
// (the signature plus whatever it covers), so two requests hash the same
// only if one is a literal replay of the other's signed bytes. Computing
// it requires no facilitator call, which is what lets a replay short-
// circuit happen ahead of Verify.
func PayloadBindingKey(payload *x402.PaymentPayload) (string, error) {
	b, err := json.Marshal(payload.Payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
