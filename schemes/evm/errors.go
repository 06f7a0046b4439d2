package evm

import "errors"

var (
	errInvalidPrivateKey = errors.New("invalid private key")
	errSigningFailed      = errors.New("failed to sign payment")
	errInvalidMnemonic    = errors.New("invalid mnemonic phrase")
	errInvalidKeystore    = errors.New("invalid keystore file")
	errWrongPassword      = errors.New("wrong keystore password")
)
