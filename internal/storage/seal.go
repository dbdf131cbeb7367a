package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// defaultSalt is mixed into the key derivation when no per-install salt is set.
var defaultSalt = []byte("companion.sessions.v1")

// ErrUnseal is returned when a stored token cannot be decrypted, usually
// because the storage secret changed.
var ErrUnseal = errors.New("cannot unseal stored token")

// Sealer encrypts tokens before they reach the database.
// Stored format: base64([12-byte nonce][AES-256-GCM ciphertext]).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES-256 key from secret using Argon2id.
func NewSealer(secret string, salt []byte) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty storage secret")
	}
	if len(salt) == 0 {
		salt = defaultSalt
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMem, argonPar, keySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext. A nil Sealer stores values as-is.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil {
		return plaintext, nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(stored string) (string, error) {
	if s == nil {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) < nonceSize {
		return "", ErrUnseal
	}
	plain, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrUnseal
	}
	return string(plain), nil
}
