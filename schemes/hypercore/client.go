package hypercore

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/x402-labs/x402-go"
)

// ClientScheme implements schemes.ClientScheme for Hypercore-exact.
type ClientScheme struct {
	signer Signer
}

// NewClientScheme wraps a Signer as the "exact" Hypercore client mechanism.
func NewClientScheme(signer Signer) *ClientScheme {
	return &ClientScheme{signer: signer}
}

func (c *ClientScheme) Scheme() string { return "exact" }

// CreatePaymentPayload builds and signs a Hyperliquid sendAsset action for
// req, returning {action, signature, nonce}. The nonce is the current
// millisecond timestamp, matching the Python client's
// int(time.time() * 1000) and doubling as the Agent wrapper's replay
// guard the facilitator checks against MaxNonceAgeSeconds.
func (c *ClientScheme) CreatePaymentPayload(ctx context.Context, req x402.PaymentRequirements) (map[string]interface{}, error) {
	cfg, ok := NetworkConfigs[string(req.Network)]
	if !ok {
		return nil, &x402.Error{Code: x402.UnsupportedNetwork, Message: ErrInvalidNetwork}
	}

	isMainnet := cfg.IsMainnet
	if v, present := req.Extra["isMainnet"]; present {
		if b, ok := v.(bool); ok {
			isMainnet = b
		}
	}
	hyperliquidChain := "Testnet"
	if isMainnet {
		hyperliquidChain = "Mainnet"
	}

	amountStr, err := formatFixedDecimal(req.GetAmount(), cfg.DefaultAsset.Decimals)
	if err != nil {
		return nil, &x402.Error{Code: x402.InvalidPrice, Message: err.Error(), Wrapped: err}
	}

	nonce := time.Now().UnixMilli()

	action := map[string]interface{}{
		"type":             "sendAsset",
		"destination":      strings.ToLower(req.PayTo),
		"token":            req.Asset,
		"amount":           amountStr,
		"sourceDex":        "spot",
		"destinationDex":   "spot",
		"fromSubAccount":   "",
		"hyperliquidChain": hyperliquidChain,
		"signatureChainId": signatureChainID,
		"nonce":            nonce,
	}

	sig, err := c.signer.SignSendAsset(ctx, action)
	if err != nil {
		return nil, &x402.Error{Code: x402.SignatureFailure, Message: "sendAsset signing failed", Wrapped: err}
	}

	return map[string]interface{}{
		"action":    action,
		"signature": sig,
		"nonce":     nonce,
	}, nil
}

// formatFixedDecimal renders an atomic-unit decimal string (e.g. "1000000"
// at 8 decimals) as a fixed-point string with exactly decimals digits
// after the point (e.g. "0.01000000"), matching the Python client's
// amount formatting for Hypercore's 8-decimal USDH.
func formatFixedDecimal(atomic string, decimals int) (string, error) {
	n := new(big.Int)
	if _, ok := n.SetString(atomic, 10); !ok {
		return "", fmt.Errorf("invalid amount %q", atomic)
	}
	if n.Sign() < 0 {
		return "", fmt.Errorf("amount must be non-negative: %q", atomic)
	}
	digits := n.String()
	for len(digits) <= decimals {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-decimals]
	fracPart := digits[len(digits)-decimals:]
	return intPart + "." + fracPart, nil
}
