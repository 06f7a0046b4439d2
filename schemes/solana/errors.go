package solana

import "errors"

var (
	errInvalidPrivateKey = errors.New("invalid private key")
	errSigningFailed      = errors.New("failed to sign payment")
	errInvalidKeystore    = errors.New("invalid keypair file")
)
