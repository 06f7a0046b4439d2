package paymentidentifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePaymentIDSatisfiesFormat(t *testing.T) {
	id := GeneratePaymentID("")
	assert.NoError(t, ValidatePaymentID(id))

	prefixed := GeneratePaymentID("order")
	assert.NoError(t, ValidatePaymentID(prefixed))
	assert.Contains(t, prefixed, "order_")
}

func TestGeneratePaymentIDIsUnique(t *testing.T) {
	a := GeneratePaymentID("")
	b := GeneratePaymentID("")
	assert.NotEqual(t, a, b)
}

func TestValidatePaymentID(t *testing.T) {
	t.Run("TooShort", func(t *testing.T) {
		assert.Error(t, ValidatePaymentID("short"))
	})
	t.Run("InvalidCharacters", func(t *testing.T) {
		assert.Error(t, ValidatePaymentID("has a space in it!!"))
	})
	t.Run("ValidMinLength", func(t *testing.T) {
		assert.NoError(t, ValidatePaymentID("abcdefghijklmnop"))
	})
	t.Run("TooLong", func(t *testing.T) {
		long := ""
		for i := 0; i < 129; i++ {
			long += "a"
		}
		assert.Error(t, ValidatePaymentID(long))
	})
}

func TestIsPaymentIdentifierRequired(t *testing.T) {
	required := map[string]interface{}{"info": map[string]interface{}{"required": true}}
	assert.True(t, IsPaymentIdentifierRequired(required))

	notRequired := map[string]interface{}{"info": map[string]interface{}{"required": false}}
	assert.False(t, IsPaymentIdentifierRequired(notRequired))

	assert.False(t, IsPaymentIdentifierRequired(nil))
	assert.False(t, IsPaymentIdentifierRequired("garbage"))
}

func TestAppendAndExtractPaymentID(t *testing.T) {
	ext := map[string]interface{}{}
	require.NoError(t, AppendPaymentIdentifierToExtensions(ext, "abcdefghijklmnop"))

	id, ok := ExtractPaymentID(ext[Key])
	require.True(t, ok)
	assert.Equal(t, "abcdefghijklmnop", id)
}

func TestAppendPaymentIdentifierRejectsInvalidID(t *testing.T) {
	ext := map[string]interface{}{}
	err := AppendPaymentIdentifierToExtensions(ext, "too-short")
	assert.Error(t, err)
	assert.Empty(t, ext)
}

func TestExtractPaymentIDMissing(t *testing.T) {
	_, ok := ExtractPaymentID(map[string]interface{}{})
	assert.False(t, ok)

	_, ok = ExtractPaymentID(nil)
	assert.False(t, ok)
}
