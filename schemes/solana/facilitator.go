package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/big"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402-labs/x402-go"
)

// FacilitatorScheme implements schemes.FacilitatorScheme for Solana-exact:
// it statically inspects the owner-signed, fee-payer-incomplete
// transaction for Verify and completes/submits it for Settle, fronting
// network fees as the registered fee payer.
type FacilitatorScheme struct {
	feePayer solanago.PrivateKey
	logger   *slog.Logger
}

// FacilitatorOption configures a FacilitatorScheme.
type FacilitatorOption func(*FacilitatorScheme)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) FacilitatorOption {
	return func(f *FacilitatorScheme) { f.logger = l }
}

// NewFacilitatorScheme creates a Solana-exact facilitator. feePayerBase58
// is the private key whose address clients must place in
// requirements.Extra["feePayer"] (and which GET /supported advertises).
func NewFacilitatorScheme(feePayerBase58 string, opts ...FacilitatorOption) (*FacilitatorScheme, error) {
	pk, err := solanago.PrivateKeyFromBase58(feePayerBase58)
	if err != nil {
		return nil, errInvalidPrivateKey
	}
	f := &FacilitatorScheme{feePayer: pk, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FacilitatorScheme) Scheme() string { return "exact" }

// FeePayerAddress is the address to advertise in GET /supported's
// extra.feePayer for this network.
func (f *FacilitatorScheme) FeePayerAddress() string {
	return f.feePayer.PublicKey().String()
}

// decodeTransaction base64-decodes and deserializes the client's payload.
func decodeTransaction(payload *x402.PaymentPayload) (*solanago.Transaction, error) {
	raw, ok := payload.Payload["transaction"].(string)
	if !ok || raw == "" {
		return nil, &x402.Error{Code: x402.InvalidSignatureStructure, Message: "payload missing transaction field"}
	}
	txBytes, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, &x402.Error{Code: x402.InvalidSignatureStructure, Message: "transaction is not valid base64", Wrapped: err}
	}
	tx, err := solanago.TransactionFromDecoder(solanago.NewBinDecoder(txBytes))
	if err != nil {
		return nil, &x402.Error{Code: x402.InvalidSignatureStructure, Message: "failed to deserialize transaction", Wrapped: err}
	}
	return tx, nil
}

// findTransferChecked locates the TransferChecked instruction x402's
// Solana-exact scheme requires and decodes its accounts/amount.
func findTransferChecked(tx *solanago.Transaction) (*token.TransferChecked, error) {
	for _, inst := range tx.Message.Instructions {
		programID, err := tx.Message.ResolveProgramIDIndex(inst.ProgramIDIndex)
		if err != nil {
			continue
		}
		if !programID.Equals(solanago.TokenProgramID) {
			continue
		}
		accounts := inst.ResolveInstructionAccounts(&tx.Message)
		decoded, err := token.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}
		if tc, ok := decoded.Impl.(*token.TransferChecked); ok {
			return tc, nil
		}
	}
	return nil, &x402.Error{Code: x402.InvalidSignatureStructure, Message: "transaction has no TransferChecked instruction"}
}

// Verify checks that the owner-signed transaction transfers the required
// amount of the required asset to the required recipient, and that every
// signature present (the owner's; the fee payer's slot is still empty) is
// cryptographically valid over the serialized message.
func (f *FacilitatorScheme) Verify(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (x402.VerifyResponse, error) {
	tx, err := decodeTransaction(payload)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}

	tc, err := findTransferChecked(tx)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}

	mintAddr, err := solanago.PublicKeyFromBase58(req.Asset)
	if err != nil || !tc.GetMintAccount().PublicKey.Equals(mintAddr) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "asset mismatch"}, nil
	}

	toAddr, err := solanago.PublicKeyFromBase58(req.PayTo)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid payTo"}, nil
	}
	toATA, _, err := solanago.FindAssociatedTokenAddress(toAddr, mintAddr)
	if err != nil || !tc.GetDestinationAccount().PublicKey.Equals(toATA) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "recipient mismatch"}, nil
	}

	required := new(big.Int)
	if _, ok := required.SetString(req.GetAmount(), 10); !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid required amount"}, nil
	}
	if tc.Amount == nil || new(big.Int).SetUint64(*tc.Amount).Cmp(required) < 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "amount below required"}, nil
	}

	for i, sig := range tx.Signatures {
		signer := tx.Message.AccountKeys[i]
		if signer.Equals(f.feePayer.PublicKey()) {
			// Fee payer's slot is intentionally unsigned until Settle.
			continue
		}
		msg, err := tx.Message.MarshalBinary()
		if err != nil {
			return x402.VerifyResponse{IsValid: false, InvalidReason: "failed to re-marshal message"}, nil
		}
		if !signer.Verify(msg, sig) {
			return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid signature"}, nil
		}
	}

	owner := tc.GetOwnerAccount().PublicKey
	return x402.VerifyResponse{IsValid: true, Payer: owner.String()}, nil
}

// Settle signs the fee payer slot, submits the transaction, and waits for
// the RPC node to observe it, grounded on the teacher's fee-payer-fronts-
// gas architecture for Solana payments.
func (f *FacilitatorScheme) Settle(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (x402.SettleResponse, error) {
	tx, err := decodeTransaction(payload)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error(), Network: req.Network}, nil
	}

	if _, err := tx.PartialSign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if f.feePayer.PublicKey().Equals(key) {
			return &f.feePayer
		}
		return nil
	}); err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: "fee payer signing failed", Network: req.Network}, nil
	}

	endpoint, err := RPCEndpoint(string(req.Network))
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error(), Network: req.Network}, nil
	}
	client := rpc.New(endpoint)

	sig, err := client.SendTransaction(ctx, tx)
	if err != nil {
		f.logger.Error("solana settlement failed", "error", err, "network", req.Network)
		return x402.SettleResponse{Success: false, ErrorReason: fmt.Sprintf("transaction submission failed: %v", err), Network: req.Network}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: sig.String(),
		Network:     req.Network,
	}, nil
}
