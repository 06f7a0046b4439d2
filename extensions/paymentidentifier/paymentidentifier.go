// Package paymentidentifier implements the "payment-identifier"
// idempotency extension (spec.md §4.5): a caller-minted opaque id lets a
// client safely retry a request without risking a double charge, and a
// server recognizing the extension returns the cached response of the
// first fully-settled request for that id. The package itself is
// authored fresh — only client call-site usage of an equivalent package
// was available for grounding, not its implementation.
package paymentidentifier

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Key is the extensions-map key servers and clients use for this
// extension ("payment-identifier" per spec.md §4.5).
const Key = "payment-identifier"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// Info is the declaration body servers emit and clients mirror back.
type Info struct {
	ID       string `json:"id,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// GeneratePaymentID mints a random identifier satisfying the id format
// (16-128 chars, [A-Za-z0-9_-]). An empty prefix omits the separator.
func GeneratePaymentID(prefix string) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is a platform-level fault; panicking here
		// matches stdlib's own behavior for an exhausted entropy source
		// rather than silently minting a predictable id.
		panic(fmt.Sprintf("paymentidentifier: reading random bytes: %v", err))
	}
	id := hex.EncodeToString(buf)
	if prefix != "" {
		id = prefix + "_" + id
	}
	return id
}

// ValidatePaymentID reports whether id satisfies the extension's format.
func ValidatePaymentID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid payment identifier %q: must be 16-128 chars of [A-Za-z0-9_-]", id)
	}
	return nil
}

// IsPaymentIdentifierRequired inspects a decoded extensions[Key] value
// (as it arrives from JSON, i.e. map[string]interface{}) and reports
// whether the server marked the identifier mandatory.
func IsPaymentIdentifierRequired(raw interface{}) bool {
	decl, ok := raw.(map[string]interface{})
	if !ok {
		return false
	}
	info, ok := decl["info"].(map[string]interface{})
	if !ok {
		return false
	}
	required, _ := info["required"].(bool)
	return required
}

// ExtractPaymentID reads the id a client attached under extensions[Key],
// as it arrives from JSON (map[string]interface{}). ok is false if the
// extension was not attached or is malformed.
func ExtractPaymentID(raw interface{}) (id string, ok bool) {
	decl, ok := raw.(map[string]interface{})
	if !ok {
		return "", false
	}
	info, ok := decl["info"].(map[string]interface{})
	if !ok {
		return "", false
	}
	id, ok = info["id"].(string)
	return id, ok
}

// AppendPaymentIdentifierToExtensions writes {info: {id}} under
// extensions[Key], validating id first. Clients call this from a
// before-payment-creation hook once they've confirmed the server declared
// the extension (spec.md §4.5: "Clients must not fabricate extensions
// not declared by the server").
func AppendPaymentIdentifierToExtensions(ext map[string]interface{}, id string) error {
	if err := ValidatePaymentID(id); err != nil {
		return err
	}
	ext[Key] = map[string]interface{}{"info": map[string]interface{}{"id": id}}
	return nil
}
