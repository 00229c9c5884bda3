package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedSecret is the on-disk envelope for a DEK encrypted under a KEK,
// replacing the original implementation's cocoon-crate-based secret file.
// nonce is stored alongside the ciphertext since chacha20poly1305 nonces
// must never repeat under the same key but need not be secret.
type sealedSecret struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// randomSecret returns 32 bytes of CSPRNG output, base64url-encoded
// without padding, matching the original implementation's random_secret.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// deriveAEADKey stretches a KEK string (itself random, base64url text) to
// the fixed key size chacha20poly1305 requires.
func deriveAEADKey(kek string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	decoded, err := base64.RawURLEncoding.DecodeString(kek)
	if err != nil || len(decoded) < chacha20poly1305.KeySize {
		// Fall back to the raw KEK text, truncated or zero-padded to the
		// key size, so secrets not produced by randomSecret still work.
		copy(key, padOrHash(kek))
		return key, nil
	}
	copy(key, decoded[:chacha20poly1305.KeySize])
	return key, nil
}

func padOrHash(s string) []byte {
	if len(s) >= chacha20poly1305.KeySize {
		return []byte(s[:chacha20poly1305.KeySize])
	}
	out := make([]byte, chacha20poly1305.KeySize)
	copy(out, s)
	return out
}

// persistSecret seals plaintext under kek and writes the envelope to path.
func persistSecret(path, kek string, plaintext []byte) error {
	key, err := deriveAEADKey(kek)
	if err != nil {
		return storageErr("seal: " + err.Error())
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return storageErr("seal: " + err.Error())
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return storageErr("seal: " + err.Error())
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	envelope := sealedSecret{Nonce: nonce, Ciphertext: ciphertext}
	data, err := json.Marshal(envelope)
	if err != nil {
		return storageErr("seal: " + err.Error())
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return storageErr("seal: " + err.Error())
	}
	return nil
}

// loadSecret reads and unseals the DEK at path. Any failure to decrypt -
// wrong KEK, corrupted file, tampering - is surfaced as a reset error
// since it indicates the trust chain between KEK and sealed DEK is broken.
func loadSecret(path, kek string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errReset("missing sealed secret: " + err.Error())
	}
	var envelope sealedSecret
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errReset("corrupt sealed secret: " + err.Error())
	}

	key, err := deriveAEADKey(kek)
	if err != nil {
		return nil, errReset("key derivation failed: " + err.Error())
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errReset("cipher init failed: " + err.Error())
	}
	if len(envelope.Nonce) != chacha20poly1305.NonceSize {
		return nil, errReset("invalid nonce length")
	}
	plaintext, err := aead.Open(nil, envelope.Nonce, envelope.Ciphertext, nil)
	if err != nil {
		return nil, errReset("decryption failed: " + err.Error())
	}
	return plaintext, nil
}
