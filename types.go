// Package x402 implements the x402 HTTP micropayment protocol: a resource
// server advertises payment terms with a 402 response, a client attaches a
// signed payment authorization on retry, and an optional facilitator
// verifies and settles the authorization against a blockchain.
package x402

import (
	"fmt"
	"strings"
)

// Network is a CAIP-2 chain identifier, "<namespace>:<reference>", e.g.
// "eip155:8453" (Base mainnet) or "solana:mainnet".
type Network string

// Parse splits the network into its namespace and reference components.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.SplitN(string(n), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid network format: %q", n)
	}
	return parts[0], parts[1], nil
}

// Match reports whether n satisfies pattern, which may end in ":*" to
// match every reference within a namespace.
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	ns, ps := string(n), string(pattern)
	if strings.HasSuffix(ps, ":*") {
		return strings.HasPrefix(ns, strings.TrimSuffix(ps, "*"))
	}
	if strings.HasSuffix(ns, ":*") {
		return strings.HasPrefix(ps, strings.TrimSuffix(ns, "*"))
	}
	return false
}

// Price is either a dollar string ("$0.01"), a bare numeric string/float
// interpreted as atomic units, or a structured AssetAmount passed through
// unchanged. Scheme ParsePrice implementations type-switch on it.
type Price interface{}

// AssetAmount is an amount of a specific scheme-defined asset.
type AssetAmount struct {
	Asset  string                 `json:"asset"`
	Amount string                 `json:"amount"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// ResourceInfo describes the resource being paid for.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequirements is one payment option advertised by a server.
//
// Amount carries the v2 wire name; MaxAmountRequired is populated only
// when decoding/encoding a v1 payload (see codec.go) and should otherwise
// be left empty — callers read Amount.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount,omitempty"`
	MaxAmountRequired string                 `json:"maxAmountRequired,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// GetAmount returns Amount if set, else falls back to the v1 field name.
func (r *PaymentRequirements) GetAmount() string {
	if r.Amount != "" {
		return r.Amount
	}
	return r.MaxAmountRequired
}

// PaymentRequired is the 402 response body.
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentPayload is the client's signed authorization attached to a retry.
//
// Scheme/Network are populated only for v1 wire compatibility (top-level
// fields); v2 carries them nested inside Accepted.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted,omitempty"`
	Scheme      string                 `json:"scheme,omitempty"`
	Network     string                 `json:"network,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// VerifyResponse is the facilitator's pre-handler verdict.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's settlement receipt.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction,omitempty"`
	Network     Network `json:"network,omitempty"`
}

// SupportedKind is one scheme/network combination a facilitator supports.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the facilitator's GET /supported body.
type SupportedResponse struct {
	Kinds      []SupportedKind `json:"kinds"`
	Extensions []string        `json:"extensions,omitempty"`
}
