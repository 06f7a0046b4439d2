package hypercore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	x402 "github.com/x402-labs/x402-go"
)

// FacilitatorScheme implements schemes.FacilitatorScheme for
// Hypercore-exact: Verify statically inspects the signed action against
// requirements, Settle submits it to Hyperliquid's exchange API.
type FacilitatorScheme struct {
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// FacilitatorOption configures a FacilitatorScheme.
type FacilitatorOption func(*FacilitatorScheme)

// WithHTTPClient overrides the default *http.Client (tests substitute a
// client routed at a local test server).
func WithHTTPClient(c *http.Client) FacilitatorOption {
	return func(f *FacilitatorScheme) { f.httpClient = c }
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) FacilitatorOption {
	return func(f *FacilitatorScheme) { f.logger = l }
}

// NewFacilitatorScheme creates a Hypercore-exact facilitator talking to
// apiURL (APIMainnet or APITestnet, or a test double).
func NewFacilitatorScheme(apiURL string, opts ...FacilitatorOption) *FacilitatorScheme {
	f := &FacilitatorScheme{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FacilitatorScheme) Scheme() string { return "exact" }

func decodePayload(payload *x402.PaymentPayload) (action map[string]interface{}, sig Signature, nonce int64, err error) {
	rawAction, ok := payload.Payload["action"].(map[string]interface{})
	if !ok {
		return nil, Signature{}, 0, &x402.Error{Code: x402.InvalidSignatureStructure, Message: ErrInvalidSignature}
	}
	sigData, err := json.Marshal(payload.Payload["signature"])
	if err != nil {
		return nil, Signature{}, 0, &x402.Error{Code: x402.InvalidSignatureStructure, Message: ErrInvalidSignature, Wrapped: err}
	}
	if err := json.Unmarshal(sigData, &sig); err != nil {
		return nil, Signature{}, 0, &x402.Error{Code: x402.InvalidSignatureStructure, Message: ErrInvalidSignature, Wrapped: err}
	}
	switch n := payload.Payload["nonce"].(type) {
	case float64:
		nonce = int64(n)
	case int64:
		nonce = n
	default:
		return nil, Signature{}, 0, &x402.Error{Code: x402.InvalidSignatureStructure, Message: ErrInvalidSignature}
	}
	return rawAction, sig, nonce, nil
}

// Verify checks the sendAsset action's type, destination, token, amount,
// and nonce freshness against requirements. It does not re-derive the
// EIP-712 digest independently (no Hyperliquid Go verifier exists to
// cross-check against); a structurally valid, fresh, matching action is
// accepted and the actual cryptographic check happens at Settle time when
// Hyperliquid's own exchange API validates the signature.
func (f *FacilitatorScheme) Verify(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (x402.VerifyResponse, error) {
	action, sig, nonce, err := decodePayload(payload)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidSignature}, nil
	}

	if sig.R == "" || sig.S == "" {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidSignature}, nil
	}

	if t, _ := action["type"].(string); t != "sendAsset" {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidActionType}, nil
	}

	dest, _ := action["destination"].(string)
	if !strings.EqualFold(dest, req.PayTo) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrDestinationMismatch}, nil
	}

	token, _ := action["token"].(string)
	if token != req.Asset {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrTokenMismatch}, nil
	}

	cfg, ok := NetworkConfigs[string(req.Network)]
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidNetwork}, nil
	}
	actionAmount, _ := action["amount"].(string)
	amount, err := parseFixedDecimal(actionAmount, cfg.DefaultAsset.Decimals)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInsufficientAmount}, nil
	}
	required := new(big.Int)
	if _, ok := required.SetString(req.GetAmount(), 10); !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInsufficientAmount}, nil
	}
	if amount.Cmp(required) < 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInsufficientAmount}, nil
	}

	ageSeconds := time.Now().UnixMilli()/1000 - nonce/1000
	if ageSeconds > MaxNonceAgeSeconds {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrNonceTooOld}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: dest}, nil
}

// parseFixedDecimal is the inverse of client.go's formatFixedDecimal,
// recovering the atomic-unit big.Int from a fixed-point decimal string.
func parseFixedDecimal(s string, decimals int) (*big.Int, error) {
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	for len(fracPart) < decimals {
		fracPart += "0"
	}
	fracPart = fracPart[:decimals]
	n := new(big.Int)
	if _, ok := n.SetString(intPart+fracPart, 10); !ok {
		return nil, fmt.Errorf("invalid fixed-point amount %q", s)
	}
	return n, nil
}

// settleRequest is the body Hyperliquid's /exchange endpoint expects.
type settleRequest struct {
	Action       map[string]interface{} `json:"action"`
	Nonce        int64                  `json:"nonce"`
	Signature    Signature              `json:"signature"`
	VaultAddress *string                `json:"vaultAddress,omitempty"`
}

type settleResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Settle submits the signed sendAsset action to Hyperliquid's exchange
// API and reports success based on its status field.
func (f *FacilitatorScheme) Settle(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (x402.SettleResponse, error) {
	action, sig, nonce, err := decodePayload(payload)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: ErrInvalidSignature, Network: req.Network}, nil
	}

	body, err := json.Marshal(settleRequest{Action: action, Nonce: nonce, Signature: sig})
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: ErrSettlementFailed, Network: req.Network}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.apiURL+"/exchange", bytes.NewReader(body))
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: ErrSettlementFailed, Network: req.Network}, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		f.logger.Error("hypercore settlement request failed", "error", err, "network", req.Network)
		return x402.SettleResponse{Success: false, ErrorReason: ErrSettlementFailed, Network: req.Network}, nil
	}
	defer resp.Body.Close()

	var parsed settleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Status != "ok" {
		f.logger.Error("hypercore settlement rejected", "status_code", resp.StatusCode, "network", req.Network)
		return x402.SettleResponse{Success: false, ErrorReason: ErrSettlementFailed, Network: req.Network}, nil
	}

	return x402.SettleResponse{Success: true, Network: req.Network}, nil
}
