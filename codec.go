package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// Header names, grounded on the real x402 wire protocol: v1 used generic
// X-prefixed names, v2 renamed them to scheme-specific PAYMENT-* names and
// added a PAYMENT-REQUIRED header that mirrors the 402 body so a client
// doesn't have to parse a JSON body to retry.
const (
	HeaderXPayment         = "X-Payment"
	HeaderXPaymentResponse = "X-Payment-Response"

	HeaderPaymentSignature = "Payment-Signature"
	HeaderPaymentResponse  = "Payment-Response"
	HeaderPaymentRequired  = "Payment-Required"
)

// RequestHeaderName returns the header a client attaches a signed payload
// to, for the given protocol version.
func RequestHeaderName(version int) string {
	if version == 1 {
		return HeaderXPayment
	}
	return HeaderPaymentSignature
}

// ResponseHeaderName returns the header a server attaches a settlement
// receipt to, for the given protocol version.
func ResponseHeaderName(version int) string {
	if version == 1 {
		return HeaderXPaymentResponse
	}
	return HeaderPaymentResponse
}

// EncodeBase64JSON is the canonical header encoding: JSON then standard
// base64 with padding.
func EncodeBase64JSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBase64JSON reverses EncodeBase64JSON into v.
func DecodeBase64JSON(s string, v interface{}) error {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return &Error{Code: InvalidHeaderEncoding, Message: "invalid base64", Wrapped: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Code: SchemaViolation, Message: "invalid JSON", Wrapped: err}
	}
	return nil
}

// EncodePaymentRequired encodes a PaymentRequired for the header/body wire
// forms, applying v1/v2 field-shape differences on the way out. v1 emits
// maxAmountRequired and a flat per-requirement resource/description/
// mimeType; v2 emits amount and a single top-level resource object plus
// extensions.
func EncodePaymentRequired(pr *PaymentRequired) ([]byte, error) {
	if pr.X402Version == 1 {
		return json.Marshal(toWireV1(pr))
	}
	return json.Marshal(toWireV2(pr))
}

// EncodePaymentRequiredHeader base64-wraps EncodePaymentRequired's output.
func EncodePaymentRequiredHeader(pr *PaymentRequired) (string, error) {
	body, err := EncodePaymentRequired(pr)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// DecodePaymentRequired accepts either wire shape (v1 or v2) and
// normalizes into the v2 in-memory model, per spec's "bilingual on
// parse" policy (SPEC_FULL.md §9 Open Question 1).
func DecodePaymentRequired(data []byte) (*PaymentRequired, error) {
	var probe struct {
		X402Version int `json:"x402Version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &Error{Code: SchemaViolation, Message: "invalid PaymentRequired JSON", Wrapped: err}
	}
	switch probe.X402Version {
	case 1:
		var w wireV1PaymentRequired
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, &Error{Code: SchemaViolation, Message: "invalid v1 PaymentRequired", Wrapped: err}
		}
		return fromWireV1(&w), nil
	case 2:
		var pr PaymentRequired
		if err := json.Unmarshal(data, &pr); err != nil {
			return nil, &Error{Code: SchemaViolation, Message: "invalid v2 PaymentRequired", Wrapped: err}
		}
		return &pr, nil
	default:
		return nil, &Error{Code: VersionMismatch, Message: fmt.Sprintf("unknown x402Version %d", probe.X402Version)}
	}
}

// ParsePaymentRequired extracts a PaymentRequired from an HTTP response: if
// the v2 PAYMENT-REQUIRED header is present it wins over the body (this
// disambiguates non-JSON 402 bodies served by frameworks that rewrite
// Content-Type); otherwise the body is decoded directly.
func ParsePaymentRequired(resp *http.Response, body []byte) (*PaymentRequired, error) {
	if header := resp.Header.Get(HeaderPaymentRequired); header != "" {
		data, err := base64.StdEncoding.DecodeString(header)
		if err != nil {
			return nil, &Error{Code: InvalidHeaderEncoding, Message: "invalid PAYMENT-REQUIRED header", Wrapped: err}
		}
		return DecodePaymentRequired(data)
	}
	return DecodePaymentRequired(body)
}

// wireV1PaymentRequired is the v1 402 body shape: flat per-requirement
// resource/description/mimeType, maxAmountRequired instead of amount.
type wireV1PaymentRequired struct {
	X402Version int                 `json:"x402Version"`
	Error       string              `json:"error,omitempty"`
	Accepts     []wireV1Requirement `json:"accepts"`
}

type wireV1Requirement struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	PayTo             string                 `json:"payTo"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

func toWireV1(pr *PaymentRequired) *wireV1PaymentRequired {
	w := &wireV1PaymentRequired{X402Version: 1, Error: pr.Error}
	var url, desc, mime string
	if pr.Resource != nil {
		url, desc, mime = pr.Resource.URL, pr.Resource.Description, pr.Resource.MimeType
	}
	for _, r := range pr.Accepts {
		w.Accepts = append(w.Accepts, wireV1Requirement{
			Scheme:            r.Scheme,
			Network:           r.Network,
			Asset:             r.Asset,
			MaxAmountRequired: r.GetAmount(),
			PayTo:             r.PayTo,
			Resource:          url,
			Description:       desc,
			MimeType:          mime,
			MaxTimeoutSeconds: r.MaxTimeoutSeconds,
			Extra:             r.Extra,
		})
	}
	return w
}

func fromWireV1(w *wireV1PaymentRequired) *PaymentRequired {
	pr := &PaymentRequired{X402Version: 1, Error: w.Error}
	for i, r := range w.Accepts {
		if i == 0 && r.Resource != "" {
			pr.Resource = &ResourceInfo{URL: r.Resource, Description: r.Description, MimeType: r.MimeType}
		}
		pr.Accepts = append(pr.Accepts, PaymentRequirements{
			Scheme:            r.Scheme,
			Network:           r.Network,
			Asset:             r.Asset,
			Amount:            r.MaxAmountRequired,
			PayTo:             r.PayTo,
			MaxTimeoutSeconds: r.MaxTimeoutSeconds,
			Extra:             r.Extra,
		})
	}
	return pr
}

func toWireV2(pr *PaymentRequired) *PaymentRequired {
	// v2 is the native in-memory shape; just ensure Amount is populated
	// (never MaxAmountRequired) before marshaling.
	out := *pr
	out.Accepts = make([]PaymentRequirements, len(pr.Accepts))
	for i, r := range pr.Accepts {
		r.Amount = r.GetAmount()
		r.MaxAmountRequired = ""
		out.Accepts[i] = r
	}
	return &out
}

// EncodePaymentPayload encodes a PaymentPayload for its version's wire
// shape: v1 puts scheme/network at the top level, v2 nests them in
// Accepted.
func EncodePaymentPayload(p *PaymentPayload) (string, error) {
	if p.X402Version == 1 {
		w := struct {
			X402Version int                    `json:"x402Version"`
			Scheme      string                 `json:"scheme"`
			Network     string                 `json:"network"`
			Payload     map[string]interface{} `json:"payload"`
		}{p.X402Version, p.Accepted.Scheme, string(p.Accepted.Network), p.Payload}
		if w.Scheme == "" {
			w.Scheme = p.Scheme
		}
		if w.Network == "" {
			w.Network = p.Network
		}
		return EncodeBase64JSON(w)
	}
	return EncodeBase64JSON(p)
}

// DecodePaymentPayload reverses EncodePaymentPayload, accepting either
// wire shape.
func DecodePaymentPayload(header string) (*PaymentPayload, error) {
	var probe struct {
		X402Version int `json:"x402Version"`
	}
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, &Error{Code: InvalidHeaderEncoding, Message: "invalid base64 payload header", Wrapped: err}
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &Error{Code: SchemaViolation, Message: "invalid PaymentPayload JSON", Wrapped: err}
	}
	if probe.X402Version == 1 {
		var w struct {
			X402Version int                    `json:"x402Version"`
			Scheme      string                 `json:"scheme"`
			Network     string                 `json:"network"`
			Payload     map[string]interface{} `json:"payload"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, &Error{Code: SchemaViolation, Message: "invalid v1 PaymentPayload", Wrapped: err}
		}
		return &PaymentPayload{
			X402Version: 1,
			Scheme:      w.Scheme,
			Network:     w.Network,
			Payload:     w.Payload,
			Accepted:    PaymentRequirements{Scheme: w.Scheme, Network: Network(w.Network)},
		}, nil
	}
	var p PaymentPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &Error{Code: SchemaViolation, Message: "invalid v2 PaymentPayload", Wrapped: err}
	}
	return &p, nil
}

// EncodeSettleResponse base64-wraps a SettleResponse for the
// PAYMENT-RESPONSE/X-Payment-Response header.
func EncodeSettleResponse(s *SettleResponse) (string, error) {
	return EncodeBase64JSON(s)
}

// DecodeSettleResponse reverses EncodeSettleResponse.
func DecodeSettleResponse(header string) (*SettleResponse, error) {
	var s SettleResponse
	if err := DecodeBase64JSON(header, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
