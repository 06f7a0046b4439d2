package hypercore

import "errors"

var (
	errInvalidPrivateKey = errors.New("invalid private key")
	errSigningFailed      = errors.New("failed to sign send-asset action")
	errInvalidAction      = errors.New("failed to encode send-asset action")
)
