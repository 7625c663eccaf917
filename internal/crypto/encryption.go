// Package crypto seals OAuth consumer secrets for storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const (
	hkdfSalt = "idbroker/consumer-secret/v1"
	hkdfInfo = "aes-256-gcm"
)

var (
	// ErrInvalidKey indicates the encryption key is invalid.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes for AES-256")
	// ErrNoKeyMaterial indicates neither a key nor a passphrase was configured.
	ErrNoKeyMaterial = errors.New("an encryption key or passphrase is required")
	// ErrInvalidCiphertext indicates the ciphertext is invalid or corrupted.
	ErrInvalidCiphertext = errors.New("invalid or corrupted ciphertext")
	// ErrDecryptionFailed indicates decryption failed.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Encryptor seals and opens secrets with AES-256-GCM. Each ciphertext is
// bound to a context string (the owning source ID) through the GCM
// additional data, so a secret copied onto another row fails to open.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates a new Encryptor with the given 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// NewEncryptorFromString creates a new Encryptor from a base64-encoded key.
func NewEncryptorFromString(keyBase64 string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	return NewEncryptor(key)
}

// NewEncryptorFromPassphrase derives the key from a passphrase with HKDF-SHA256.
func NewEncryptorFromPassphrase(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, ErrNoKeyMaterial
	}

	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(key)
}

// NewEncryptorFromConfig prefers an explicit base64 key and falls back to a
// passphrase.
func NewEncryptorFromConfig(keyBase64, passphrase string) (*Encryptor, error) {
	if keyBase64 != "" {
		return NewEncryptorFromString(keyBase64)
	}
	return NewEncryptorFromPassphrase(passphrase)
}

// DeriveKey derives a 32-byte key from a passphrase.
func DeriveKey(passphrase string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(hkdfSalt), []byte(hkdfInfo))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// GenerateKey generates a new random 32-byte encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyBase64 generates a new random encryption key and returns it as base64.
func GenerateKeyBase64() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext bound to boundTo. The nonce is prepended to the
// returned ciphertext, which is suitable for a BYTEA column.
func (e *Encryptor) Seal(plaintext, boundTo string) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(boundTo)), nil
}

// Open decrypts ciphertext produced by Seal with the same boundTo value.
func (e *Encryptor) Open(ciphertext []byte, boundTo string) (string, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize+e.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := e.aead.Open(nil, nonce, sealed, []byte(boundTo))
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
