package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// FieldCodec encrypts and decrypts individual string fields with AES-GCM.
// Repositories own the encrypt/decrypt contract; the rest of the application
// only ever sees plain values.
type FieldCodec struct {
	aead cipher.AEAD
}

// NewFieldCodec derives a 256-bit key from the configured secret.
func NewFieldCodec(secret string) (*FieldCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("field codec requires a non-empty key")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &FieldCodec{aead: aead}, nil
}

// Encrypt seals a plaintext field. Empty input stays empty so optional
// columns keep their NULL semantics.
func (c *FieldCodec) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed field produced by Encrypt.
func (c *FieldCodec) Decrypt(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode field: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("sealed field too short")
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open field: %w", err)
	}
	return string(plain), nil
}
