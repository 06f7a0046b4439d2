package solana

import (
	solanago "github.com/gagliardetto/solana-go"
)

// Signer abstracts the private-key material a Solana ClientScheme needs
// to partially sign a TransferChecked transaction, mirroring teacher's
// SolanaPrivateKeySigner/MockSolanaSigner split so tests never need real
// key material.
type Signer interface {
	GetAddress() string
	PublicKey() solanago.PublicKey
	// PartialSign signs tx for this signer's key, leaving the fee payer's
	// signature slot untouched (the facilitator, as fee payer, completes
	// signing at settlement time).
	PartialSign(tx *solanago.Transaction) error
}

// PrivateKeySigner wraps a base58-encoded Solana private key, grounded on
// teacher's SolanaPrivateKeySigner.
type PrivateKeySigner struct {
	privateKey solanago.PrivateKey
	publicKey  solanago.PublicKey
}

// NewPrivateKeySigner creates a signer from a base58-encoded Solana
// private key.
func NewPrivateKeySigner(privateKeyBase58 string) (*PrivateKeySigner, error) {
	pk, err := solanago.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, errInvalidPrivateKey
	}
	return &PrivateKeySigner{privateKey: pk, publicKey: pk.PublicKey()}, nil
}

// NewPrivateKeySignerFromFile loads a signer from a Solana CLI keypair
// JSON file.
func NewPrivateKeySignerFromFile(path string) (*PrivateKeySigner, error) {
	pk, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errInvalidKeystore
	}
	return &PrivateKeySigner{privateKey: pk, publicKey: pk.PublicKey()}, nil
}

func (s *PrivateKeySigner) GetAddress() string            { return s.publicKey.String() }
func (s *PrivateKeySigner) PublicKey() solanago.PublicKey { return s.publicKey }

func (s *PrivateKeySigner) PartialSign(tx *solanago.Transaction) error {
	_, err := tx.PartialSign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if s.publicKey.Equals(key) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return errSigningFailed
	}
	return nil
}

// MockSigner signs nothing and is used by tests that exercise payload
// shape without real key material, mirroring teacher's MockSolanaSigner.
type MockSigner struct {
	address   string
	publicKey solanago.PublicKey
}

// NewMockSigner builds a MockSigner for a base58 address.
func NewMockSigner(address string) *MockSigner {
	return &MockSigner{address: address, publicKey: solanago.MustPublicKeyFromBase58(address)}
}

func (m *MockSigner) GetAddress() string            { return m.address }
func (m *MockSigner) PublicKey() solanago.PublicKey { return m.publicKey }
func (m *MockSigner) PartialSign(tx *solanago.Transaction) error { return nil }
