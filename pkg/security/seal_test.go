package security

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistAndLoadSecret_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dek.sealed")
	kek, err := randomSecret()
	require.NoError(t, err)

	require.NoError(t, persistSecret(path, kek, []byte("super-secret-dek")))

	plaintext, err := loadSecret(path, kek)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-dek", string(plaintext))
}

func TestLoadSecret_WrongKekFailsAsReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dek.sealed")
	kek1, err := randomSecret()
	require.NoError(t, err)
	kek2, err := randomSecret()
	require.NoError(t, err)

	require.NoError(t, persistSecret(path, kek1, []byte("dek-value")))

	_, err = loadSecret(path, kek2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TPM reset or reprovision detected")
}

func TestLoadSecret_MissingFileFailsAsReset(t *testing.T) {
	kek, err := randomSecret()
	require.NoError(t, err)
	_, err = loadSecret(filepath.Join(t.TempDir(), "missing"), kek)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TPM reset or reprovision detected")
}

func TestRandomSecret_ProducesDistinctValues(t *testing.T) {
	a, err := randomSecret()
	require.NoError(t, err)
	b, err := randomSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
