package database

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher applies the DEK that pkg/security.Runtime.UnsealDEK produces as
// an AEAD over individual text columns before they reach disk. This is
// the per-field fallback spec.md §4.2's "apply the unsealed DEK" calls
// for: modernc.org/sqlite (the pure-Go driver pkg/database already
// depends on) carries no SQLCipher-equivalent page-level cipher, and no
// such driver appears anywhere in the retrieved corpus (every example
// repo that touches SQLite imports modernc.org/sqlite or
// github.com/mattn/go-sqlite3, neither cipher-capable), so a real
// SQLCipher-backed driver isn't available to wire without fabricating a
// dependency. Cipher reuses the same chacha20poly1305 primitive
// pkg/security/seal.go already seals the DEK itself with.
//
// messages.content and memories.summary are a documented exception: both
// feed an FTS5 virtual table, and FTS5 MATCH cannot operate over AEAD
// ciphertext, so those two columns remain plaintext on disk. Every other
// store's text payload columns (reminders.title, tasks.name/prompt,
// wakeup_tasks.name/prompt, plans.title/goal/steps_json,
// todo_items.title/notes, message_vectors.content) are encrypted.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from the unsealed DEK. A nil/empty dek
// yields a nil *Cipher whose Encrypt/Decrypt are plaintext passthroughs,
// which is what every store's test helper uses since tests don't run
// through pkg/security's key lifecycle.
func NewCipher(dek []byte) (*Cipher, error) {
	if len(dek) == 0 {
		return nil, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	copy(key, dek)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("database cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce, returning a
// base64url-encoded nonce||ciphertext envelope suitable for a TEXT
// column. A nil receiver (no DEK configured) returns plaintext
// unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return plaintext, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("database cipher: encrypt: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A nil receiver returns ciphertext unchanged,
// and an empty string decrypts to an empty string without touching the
// AEAD (so NULL/"" columns round-trip without error).
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if c == nil || ciphertext == "" {
		return ciphertext, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("database cipher: decode: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("database cipher: ciphertext too short")
	}
	nonce, sealed := raw[:ns], raw[ns:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("database cipher: decrypt: %w", err)
	}
	return string(plaintext), nil
}
