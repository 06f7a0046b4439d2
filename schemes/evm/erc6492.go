package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// erc6492MagicSuffix is the fixed 32-byte suffix ERC-6492 appends to a
// wrapped signature so a verifier can recognize the counterfactual-account
// encoding without any prior context.
var erc6492MagicSuffix = func() []byte {
	b := make([]byte, 32)
	for i := range b {
		if i%2 == 0 {
			b[i] = 0x64
		} else {
			b[i] = 0x92
		}
	}
	return b
}()

// isValidSigSelector is the 4-byte selector for
// isValidSig(address,bytes32,bytes) on the UniversalSigValidator contract.
var isValidSigSelector = crypto.Keccak256([]byte("isValidSig(address,bytes32,bytes)"))[:4]

var erc6492ArgTypes = mustAbiArguments("address", "bytes", "bytes")

func mustAbiArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Type: ty}
	}
	return args
}

// unwrapERC6492 strips the ERC-6492 magic suffix and decodes the wrapped
// (factory, factoryCalldata, innerSig) tuple. ok is false if sig does not
// carry the suffix, in which case it is an ordinary signature.
func unwrapERC6492(sig []byte) (unwrapped struct {
	Factory         common.Address
	FactoryCalldata []byte
	InnerSig        []byte
}, ok bool) {
	if len(sig) < 32 {
		return unwrapped, false
	}
	suffix := sig[len(sig)-32:]
	for i, b := range suffix {
		if b != erc6492MagicSuffix[i] {
			return unwrapped, false
		}
	}
	encoded := sig[:len(sig)-32]
	values, err := erc6492ArgTypes.Unpack(encoded)
	if err != nil || len(values) != 3 {
		return unwrapped, false
	}
	factory, ok1 := values[0].(common.Address)
	factoryCalldata, ok2 := values[1].([]byte)
	innerSig, ok3 := values[2].([]byte)
	if !ok1 || !ok2 || !ok3 {
		return unwrapped, false
	}
	unwrapped.Factory = factory
	unwrapped.FactoryCalldata = factoryCalldata
	unwrapped.InnerSig = innerSig
	return unwrapped, true
}

// validateERC6492 calls the UniversalSigValidator's isValidSig(signer,
// digest, signature) via eth_call, passing the original ERC-6492-wrapped
// signature (the validator itself deploys-and-checks or replays the
// factory call as needed). A failed eth_call is a rejection, never a
// propagated error, per spec.
func (f *FacilitatorScheme) validateERC6492(ctx context.Context, validator, signer common.Address, digest [32]byte, wrappedSig []byte) (bool, error) {
	calldata := packIsValidSig(signer, digest, wrappedSig)
	result, err := f.client.CallContract(ctx, ethereum.CallMsg{
		To:   &validator,
		Data: calldata,
	}, nil)
	if err != nil {
		return false, nil
	}
	if len(result) < 32 {
		return false, nil
	}
	valid := new(big.Int).SetBytes(result[len(result)-32:]).Sign() != 0
	return valid, nil
}

// packIsValidSig manually ABI-encodes isValidSig(address,bytes32,bytes),
// matching the facilitator's existing packTransferWithAuth style.
func packIsValidSig(signer common.Address, digest [32]byte, sig []byte) []byte {
	// Static part: selector + signer(32) + digest(32) + offset-to-bytes(32).
	// Dynamic part: length(32) + padded signature bytes.
	sigWords := (len(sig) + 31) / 32
	data := make([]byte, 4+3*32+32+sigWords*32)
	copy(data[:4], isValidSigSelector)
	offset := 4
	copy(data[offset+12:offset+32], signer.Bytes())
	offset += 32
	copy(data[offset:offset+32], digest[:])
	offset += 32
	// offset to the dynamic "bytes" argument, measured from after the
	// three head words.
	headBytes := big.NewInt(96)
	copy(data[offset:offset+32], headBytes.FillBytes(make([]byte, 32)))
	offset += 32
	lenBytes := big.NewInt(int64(len(sig)))
	copy(data[offset:offset+32], lenBytes.FillBytes(make([]byte, 32)))
	offset += 32
	copy(data[offset:offset+len(sig)], sig)
	return data
}
