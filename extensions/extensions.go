// Package extensions implements the x402 extension mechanism: a map from
// a stable string key to an object advertised on PaymentRequired and
// optionally echoed back on PaymentPayload, per spec.md §4.5.
package extensions

// Declaration is the object a server emits under
// PaymentRequired.Extensions[key], and a client may mirror under
// PaymentPayload.Extensions[key]. Info and Schema are extension-specific;
// a nil Declaration means the extension is not offered for that route.
type Declaration struct {
	Info   interface{} `json:"info,omitempty"`
	Schema interface{} `json:"schema,omitempty"`
}

// RequestContext carries the per-request data an extension's Enrich step
// may use to tailor its Declaration (spec.md §4.5: "URL, method, declared
// query/body shapes").
type RequestContext struct {
	Method string
	URL    string
}

// ServerExtension is a server-side extension's lifecycle: Declare
// produces the initial object emitted in 402 responses (nil means the
// extension is not offered for this invocation, e.g. required=true but
// the route opted out); Enrich is called during 402 construction to
// inject per-request data.
type ServerExtension interface {
	Key() string
	Declare(required bool) *Declaration
	Enrich(decl *Declaration, reqCtx RequestContext) *Declaration
}
