package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402-labs/x402-go"
)

// computeUnitLimit and computeUnitPrice are the fixed ComputeBudget
// parameters x402's Solana-exact scheme requires on every transfer, per
// teacher's signer_solana.go (200,000 units at 10,000 microlamports).
var (
	setComputeUnitLimitData = []byte{2, 0x40, 0x0d, 0x03, 0x00}
	setComputeUnitPriceData = []byte{3, 0x10, 0x27, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
)

var computeBudgetProgram = solanago.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// ClientScheme implements schemes.ClientScheme for Solana-exact.
type ClientScheme struct {
	signer Signer
}

// NewClientScheme wraps a Signer as the "exact" Solana client mechanism.
func NewClientScheme(signer Signer) *ClientScheme {
	return &ClientScheme{signer: signer}
}

func (c *ClientScheme) Scheme() string { return "exact" }

// CreatePaymentPayload builds a versioned-compatible legacy transaction
// transferring req's amount via SPL TransferChecked, partially signs it
// with the owner key, and returns {transaction: base64(serialized)}. The
// fee payer (req.Extra["feePayer"]) signs later at settlement time, so the
// transaction this produces is intentionally incomplete until then.
func (c *ClientScheme) CreatePaymentPayload(ctx context.Context, req x402.PaymentRequirements) (map[string]interface{}, error) {
	network := string(req.Network)
	endpoint, err := RPCEndpoint(network)
	if err != nil {
		return nil, &x402.Error{Code: x402.UnsupportedNetwork, Message: err.Error(), Wrapped: err}
	}

	feePayerStr, _ := req.Extra["feePayer"].(string)
	if feePayerStr == "" {
		return nil, &x402.Error{Code: x402.InvalidSignatureStructure, Message: "requirements missing extra.feePayer for solana-exact"}
	}

	mintAddr, err := solanago.PublicKeyFromBase58(req.Asset)
	if err != nil {
		return nil, &x402.Error{Code: x402.InvalidPrice, Message: "invalid mint address", Wrapped: err}
	}
	toAddr, err := solanago.PublicKeyFromBase58(req.PayTo)
	if err != nil {
		return nil, &x402.Error{Code: x402.InvalidPrice, Message: "invalid recipient address", Wrapped: err}
	}
	feePayerAddr, err := solanago.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, &x402.Error{Code: x402.InvalidSignatureStructure, Message: "invalid fee payer address", Wrapped: err}
	}

	amount := new(big.Int)
	if _, ok := amount.SetString(req.GetAmount(), 10); !ok {
		return nil, &x402.Error{Code: x402.InvalidPrice, Message: fmt.Sprintf("invalid amount %q", req.GetAmount())}
	}

	decimals := uint8(6)
	if dec, ok := req.Extra["decimals"]; ok {
		if f, ok := dec.(float64); ok {
			decimals = uint8(f)
		}
	} else if t, ok := Lookup(network, req.Asset); ok {
		decimals = uint8(t.Decimals)
	}

	fromATA, _, err := solanago.FindAssociatedTokenAddress(c.signer.PublicKey(), mintAddr)
	if err != nil {
		return nil, &x402.Error{Code: x402.PaymentAborted, Message: "failed to derive sender ATA", Wrapped: err}
	}
	toATA, _, err := solanago.FindAssociatedTokenAddress(toAddr, mintAddr)
	if err != nil {
		return nil, &x402.Error{Code: x402.PaymentAborted, Message: "failed to derive recipient ATA", Wrapped: err}
	}

	client := rpc.New(endpoint)
	recent, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, &x402.Error{Code: x402.FacilitatorUnavailable, Message: "failed to fetch blockhash", Wrapped: err}
	}

	instructions := []solanago.Instruction{
		solanago.NewInstruction(computeBudgetProgram, solanago.AccountMetaSlice{}, setComputeUnitLimitData),
		solanago.NewInstruction(computeBudgetProgram, solanago.AccountMetaSlice{}, setComputeUnitPriceData),
		token.NewTransferCheckedInstructionBuilder().
			SetAmount(amount.Uint64()).
			SetDecimals(decimals).
			SetSourceAccount(fromATA).
			SetDestinationAccount(toATA).
			SetMintAccount(mintAddr).
			SetOwnerAccount(c.signer.PublicKey()).
			Build(),
	}

	tx, err := solanago.NewTransaction(instructions, recent.Value.Blockhash, solanago.TransactionPayer(feePayerAddr))
	if err != nil {
		return nil, &x402.Error{Code: x402.PaymentAborted, Message: "failed to build transaction", Wrapped: err}
	}

	if err := c.signer.PartialSign(tx); err != nil {
		return nil, &x402.Error{Code: x402.SignatureFailure, Message: "failed to partially sign transaction", Wrapped: err}
	}

	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return nil, &x402.Error{Code: x402.PaymentAborted, Message: "failed to serialize transaction", Wrapped: err}
	}

	return map[string]interface{}{
		"transaction": base64.StdEncoding.EncodeToString(txBytes),
	}, nil
}
