package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/x402-labs/x402-go"
)

// ClientScheme implements schemes.ClientScheme for EVM-exact.
type ClientScheme struct {
	signer Signer
}

// NewClientScheme wraps a Signer as the "exact" EVM client mechanism.
func NewClientScheme(signer Signer) *ClientScheme {
	return &ClientScheme{signer: signer}
}

func (c *ClientScheme) Scheme() string { return "exact" }

// CreatePaymentPayload signs an EIP-3009 TransferWithAuthorization for the
// given requirements and returns the inner payload map
// {signature, authorization: {from,to,value,validAfter,validBefore,nonce}}.
//
// validAfter is always 0 per spec.md §4.2; validBefore is derived from
// MaxTimeoutSeconds clamped to [60s, 3600s].
func (c *ClientScheme) CreatePaymentPayload(ctx context.Context, req x402.PaymentRequirements) (map[string]interface{}, error) {
	value := new(big.Int)
	amount := req.GetAmount()
	if _, ok := value.SetString(amount, 10); !ok {
		return nil, &x402.Error{Code: x402.InvalidPrice, Message: fmt.Sprintf("invalid amount %q", amount)}
	}
	if value.Sign() <= 0 {
		return nil, &x402.Error{Code: x402.InvalidPrice, Message: "amount must be positive"}
	}

	chainID, err := chainIDFor(req)
	if err != nil {
		return nil, &x402.Error{Code: x402.UnsupportedNetwork, Message: err.Error(), Wrapped: err}
	}

	name, _ := req.Extra["name"].(string)
	version, _ := req.Extra["version"].(string)

	from := common.HexToAddress(c.signer.GetAddress())
	to := common.HexToAddress(req.PayTo)

	validAfter := int64(0)
	timeout := req.MaxTimeoutSeconds
	if timeout < 60 {
		timeout = 60
	} else if timeout > 3600 {
		timeout = 3600
	}
	validBefore := time.Now().Add(time.Duration(timeout) * time.Second).Unix()

	var nonce [32]byte
	nonceSrc := crypto.Keccak256([]byte(fmt.Sprintf("%d-%s-%s", time.Now().UnixNano(), req.Asset, from.Hex())))
	copy(nonce[:], nonceSrc)

	typedData := buildAuthorizationTypedData(chainID, req.Asset, name, version, from, to, value, validAfter, validBefore, nonce)

	sig, err := c.signer.SignTypedData(ctx, typedData)
	if err != nil {
		return nil, &x402.Error{Code: x402.SignatureFailure, Message: "EIP-712 signing failed", Wrapped: err}
	}

	return map[string]interface{}{
		"signature": sig,
		"authorization": map[string]interface{}{
			"from":        from.Hex(),
			"to":          to.Hex(),
			"value":       amount,
			"validAfter":  fmt.Sprintf("%d", validAfter),
			"validBefore": fmt.Sprintf("%d", validBefore),
			"nonce":       "0x" + fmt.Sprintf("%x", nonce),
		},
	}, nil
}
