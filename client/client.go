// Package client implements the x402 Client Engine: a plain
// http.RoundTripper decorator that intercepts a 402 response, selects a
// mutually-supported payment requirement, signs it through the scheme
// registry, and retries the request exactly once with the signed header
// attached. Grounded in shape on
// other_examples/67663693_coinbase-x402__examples-go-clients-payment-
// identifier-main.go.go's PaymentIdentifierTransport (a RoundTripper
// wrapping http.DefaultTransport) and on the teacher's handler.go for
// hook events and multi-candidate selection.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/schemes"
)

// Hooks groups every lifecycle hook category the Client Engine runs, in
// registration order within each category.
type Hooks struct {
	BeforePaymentCreation []x402.BeforePaymentCreationHook
	OnPaymentFailure      []x402.OnPaymentFailureHook
	AfterPaymentCreation  []x402.AfterPaymentCreationHook
}

// Selector picks one PaymentRequirements from the mutually-supported
// candidate set. version is the PaymentRequired.X402Version.
type Selector func(version int, candidates []x402.PaymentRequirements) (x402.PaymentRequirements, error)

// Client is an http.RoundTripper implementing the x402 payment lifecycle.
// The zero value is not usable; construct via New.
type Client struct {
	transport http.RoundTripper
	registry  *schemes.Registry
	selector  Selector
	hooks     Hooks
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport overrides the underlying http.RoundTripper (default
// http.DefaultTransport).
func WithTransport(t http.RoundTripper) Option {
	return func(c *Client) { c.transport = t }
}

// WithSelector overrides the default first-mutually-supported-candidate
// selector.
func WithSelector(s Selector) Option {
	return func(c *Client) { c.selector = s }
}

// WithHooks registers lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client backed by registry, which must already have every
// ClientScheme the caller wants to pay with registered.
func New(registry *schemes.Registry, opts ...Option) *Client {
	c := &Client{
		transport: http.DefaultTransport,
		registry:  registry,
		selector:  DefaultSelector,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultSelector preserves server preference order and returns the first
// candidate, per spec.md §4.3's "defaultSelector" description.
func DefaultSelector(version int, candidates []x402.PaymentRequirements) (x402.PaymentRequirements, error) {
	if len(candidates) == 0 {
		return x402.PaymentRequirements{}, &x402.Error{Code: x402.NoMatchingRequirements, Message: "no mutually-supported payment requirements"}
	}
	return candidates[0], nil
}

// RoundTrip implements http.RoundTripper: step 1-2 of the lifecycle plus
// dispatch into the payment flow on a 402.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	bodyBytes, err := drainBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	return c.payAndRetry(req, bodyBytes, resp)
}

// Request is the package's named single operation per spec.md §4.3:
// "request(method, url, body) -> Response". It calls RoundTrip directly
// rather than going through a plain *http.Client, because a terminal
// failure (no mutually-supported scheme, a second 402 on retry) must
// still hand back the response alongside the error (spec.md §7) —
// http.Client.Do discards the response whenever its RoundTripper
// returns a non-nil error.
func (c *Client) Request(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	return c.RoundTrip(req)
}

// drainBody reads req.Body into memory (if present) and restores it, so
// the body can be replayed verbatim on retry (lifecycle step 10: "same
// method, body, URL").
func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	return data, nil
}

func cloneWithBody(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
	}
	return clone
}
