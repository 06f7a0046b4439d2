package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/schemes"
)

// Facilitator is the gate's dependency for verification and settlement,
// per spec.md §6's Facilitator interface.
type Facilitator interface {
	Verify(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error)
	Settle(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error)
	GetSupported(ctx context.Context) ([]x402.SupportedKind, error)
}

// HTTPFacilitator delegates verification and settlement to a remote
// facilitator service over HTTP, carried over from the teacher's
// server/facilitator.go nearly verbatim in shape.
type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFacilitator creates a facilitator client talking to baseURL
// (expected to expose POST /verify, POST /settle, GET /supported).
func NewHTTPFacilitator(baseURL string) *HTTPFacilitator {
	return &HTTPFacilitator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type verifyRequest struct {
	X402Version int                    `json:"x402Version"`
	Payload     *x402.PaymentPayload   `json:"paymentPayload"`
	Requirements x402.PaymentRequirements `json:"paymentRequirements"`
}

func (f *HTTPFacilitator) Verify(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	body, err := json.Marshal(verifyRequest{X402Version: payload.X402Version, Payload: payload, Requirements: requirements})
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("marshal verify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("create verify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return x402.VerifyResponse{}, &x402.Error{Code: x402.FacilitatorUnavailable, Message: "verify request failed", Wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return x402.VerifyResponse{}, &x402.Error{Code: x402.FacilitatorUnavailable, Message: fmt.Sprintf("verify failed with status %d: %s", resp.StatusCode, string(bodyBytes))}
	}

	var verifyResp x402.VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("decode verify response: %w", err)
	}
	return verifyResp, nil
}

func (f *HTTPFacilitator) Settle(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	body, err := json.Marshal(verifyRequest{X402Version: payload.X402Version, Payload: payload, Requirements: requirements})
	if err != nil {
		return x402.SettleResponse{}, fmt.Errorf("marshal settle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return x402.SettleResponse{}, fmt.Errorf("create settle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return x402.SettleResponse{}, &x402.Error{Code: x402.FacilitatorUnavailable, Message: "settle request failed", Wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return x402.SettleResponse{}, &x402.Error{Code: x402.SettlementFailed, Message: fmt.Sprintf("settle failed with status %d: %s", resp.StatusCode, string(bodyBytes))}
	}

	var settleResp x402.SettleResponse
	if err := json.NewDecoder(resp.Body).Decode(&settleResp); err != nil {
		return x402.SettleResponse{}, fmt.Errorf("decode settle response: %w", err)
	}
	return settleResp, nil
}

func (f *HTTPFacilitator) GetSupported(ctx context.Context) ([]x402.SupportedKind, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("create supported request: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &x402.Error{Code: x402.FacilitatorUnavailable, Message: "supported request failed", Wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &x402.Error{Code: x402.FacilitatorUnavailable, Message: fmt.Sprintf("supported failed with status %d", resp.StatusCode)}
	}

	var result x402.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode supported response: %w", err)
	}
	return result.Kinds, nil
}

// RegistryFacilitator answers verify/settle directly from the process's
// own scheme registry, with no remote facilitator dependency — the same
// "no external service" goal as kshinn-umbra-gateway's LocalFacilitator,
// generalized here across every registered scheme (EVM, Solana,
// Hypercore) instead of being hardwired to one chain's settlement client.
type RegistryFacilitator struct {
	registry *schemes.Registry
}

// NewRegistryFacilitator wraps registry as a Facilitator.
func NewRegistryFacilitator(registry *schemes.Registry) *RegistryFacilitator {
	return &RegistryFacilitator{registry: registry}
}

func (f *RegistryFacilitator) Verify(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	fs, err := f.registry.RequireFacilitator(requirements.Scheme, requirements.Network)
	if err != nil {
		return x402.VerifyResponse{}, err
	}
	return fs.Verify(ctx, payload, requirements)
}

func (f *RegistryFacilitator) Settle(ctx context.Context, payload *x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	fs, err := f.registry.RequireFacilitator(requirements.Scheme, requirements.Network)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	return fs.Settle(ctx, payload, requirements)
}

func (f *RegistryFacilitator) GetSupported(ctx context.Context) ([]x402.SupportedKind, error) {
	keys := f.registry.FacilitatorKeys()
	kinds := make([]x402.SupportedKind, 0, len(keys))
	for _, k := range keys {
		kinds = append(kinds, x402.SupportedKind{X402Version: 2, Scheme: k.Scheme, Network: k.Network})
	}
	return kinds, nil
}
