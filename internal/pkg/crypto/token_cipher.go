package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks values written by an enabled cipher
const sealedPrefix = "xc1:"

// TokenCipher encrypts OAuth tokens before they are written to the database.
// A cipher built from an empty key passes values through unchanged.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher from a base64 encoded 32-byte key.
func NewTokenCipher(encodedKey string) (*TokenCipher, error) {
	if encodedKey == "" {
		return &TokenCipher{}, nil
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("decode token encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Enabled reports whether values are actually encrypted
func (c *TokenCipher) Enabled() bool {
	return c != nil && c.aead != nil
}

// Encrypt seals plaintext. Empty strings stay empty so optional columns remain blank.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the sealed prefix
// were stored while encryption was disabled and are returned as is.
func (c *TokenCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", fmt.Errorf("token is encrypted but no encryption key is configured")
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("sealed token too short")
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a new random key in the format NewTokenCipher expects.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
