package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a stored value produced by Seal. Values without it
// are treated as plaintext written before sealing was enabled.
const sealedPrefix = "enc:v1:"

// ErrKeyMismatch is returned when a sealed value cannot be opened with the
// configured key
var ErrKeyMismatch = errors.New("sealed token does not match the configured key")

// TokenSealer encrypts platform access tokens at rest with AES-256-GCM
type TokenSealer struct {
	gcm cipher.AEAD
}

// NewTokenSealer creates a sealer with the given encryption key.
// The key must be 32 bytes for AES-256-GCM.
func NewTokenSealer(key []byte) (*TokenSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenSealer{gcm: gcm}, nil
}

// NewTokenSealerFromPassphrase derives the key by hashing passphrase
// with SHA-256
func NewTokenSealerFromPassphrase(passphrase string) (*TokenSealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}

	hash := sha256.Sum256([]byte(passphrase))
	return NewTokenSealer(hash[:])
}

// Seal encrypts token and returns a printable value with the nonce
// prepended. Empty tokens stay empty.
func (s *TokenSealer) Seal(token string) (string, error) {
	if token == "" || IsSealed(token) {
		return token, nil
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.gcm.Seal(nonce, nonce, []byte(token), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. Plaintext values are returned unchanged.
func (s *TokenSealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}

	ciphertext, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("malformed sealed token: %w", err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("malformed sealed token: ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrKeyMismatch
	}
	return string(plaintext), nil
}

// IsSealed reports whether stored was produced by Seal
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}
