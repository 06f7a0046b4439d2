// Package bazaar implements the "bazaar" discovery extension: it
// advertises a route's input shape so aggregators can index paid
// endpoints without a human reading documentation. Grounded on
// coinbase/x402's OutputSchema{Input:{Type, Discoverable,
// DiscoveryInput}, DiscoveryOutput, Metadata} shape.
package bazaar

import "github.com/x402-labs/x402-go/extensions"

// Key is the extensions-map key servers and clients use for this
// extension ("bazaar" per spec.md §4.5).
const Key = "bazaar"

// InputSchema describes the shape of the request a route expects,
// query-style ({input, inputSchema}) or body-style (adds bodyType).
type InputSchema struct {
	Type        string                 `json:"type,omitempty"`
	Method      string                 `json:"method,omitempty"`
	QueryParams map[string]interface{} `json:"queryParams,omitempty"`
	BodyFields  map[string]interface{} `json:"bodyFields,omitempty"`
}

// Info is the declaration body for a discoverable route.
type Info struct {
	Input       interface{}            `json:"input,omitempty"`
	InputSchema *InputSchema           `json:"inputSchema,omitempty"`
	BodyType    string                 `json:"bodyType,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Extension advertises a fixed Info for every route it is attached to.
type Extension struct {
	info Info
}

// New creates a bazaar extension advertising info for its route.
func New(info Info) *Extension {
	return &Extension{info: info}
}

func (e *Extension) Key() string { return Key }

func (e *Extension) Declare(required bool) *extensions.Declaration {
	return &extensions.Declaration{Info: e.info}
}

// Enrich stamps the current request's method into the declared
// InputSchema, so aggregators see the verb the route actually expects
// rather than whatever the route author wrote by hand.
func (e *Extension) Enrich(decl *extensions.Declaration, reqCtx extensions.RequestContext) *extensions.Declaration {
	if decl == nil {
		return nil
	}
	info, ok := decl.Info.(Info)
	if !ok {
		return decl
	}
	if info.InputSchema == nil {
		info.InputSchema = &InputSchema{}
	}
	enriched := *info.InputSchema
	enriched.Method = reqCtx.Method
	info.InputSchema = &enriched
	decl.Info = info
	return decl
}
