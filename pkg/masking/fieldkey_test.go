package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldKeyMasker_AppliesTo(t *testing.T) {
	m := FieldKeyMasker{}
	assert.True(t, m.AppliesTo(`{"api_key":"x"}`))
	assert.False(t, m.AppliesTo(`plain text with token mention`))
	assert.False(t, m.AppliesTo(``))
	assert.False(t, m.AppliesTo(`{"user":"alice"}`))
}

func TestFieldKeyMasker_MaskArrayOfObjects(t *testing.T) {
	m := FieldKeyMasker{}
	got := m.Mask(`[{"token":"abc"},{"user":"bob"}]`)
	assert.Contains(t, got, `"token":"[REDACTED]"`)
	assert.Contains(t, got, `"user":"bob"`)
}

func TestFieldKeyMasker_MaskInvalidJSONReturnsOriginal(t *testing.T) {
	m := FieldKeyMasker{}
	input := `{"token": unterminated`
	assert.Equal(t, input, m.Mask(input))
}
