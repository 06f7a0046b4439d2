package client

import (
	"net/http"

	x402 "github.com/x402-labs/x402-go"
)

// DecodeReceipt extracts the settlement receipt a server attaches to a
// successful payment response, trying both the v2 and v1 header names
// (lifecycle step 12).
func DecodeReceipt(resp *http.Response) (*x402.SettleResponse, error) {
	if header := resp.Header.Get(x402.HeaderPaymentResponse); header != "" {
		return x402.DecodeSettleResponse(header)
	}
	if header := resp.Header.Get(x402.HeaderXPaymentResponse); header != "" {
		return x402.DecodeSettleResponse(header)
	}
	return nil, &x402.Error{Code: x402.SchemaViolation, Message: "no settlement receipt header present"}
}
