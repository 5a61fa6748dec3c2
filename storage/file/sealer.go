package file

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltLength = 16

// Argon2id parameters for deriving the file key from the passphrase
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// sealer encrypts values with XChaCha20-Poly1305. The key name is bound as
// additional data so a value cannot be moved to another key.
type sealer struct {
	aead cipher.AEAD
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

func newSealer(passphrase string, salt []byte) (*sealer, error) {
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *sealer) open(key, stored string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrDecrypt, "key %s", key)
	}
	if len(sealed) < s.aead.NonceSize() {
		return "", apperrors.Wrapf(apperrors.ErrDecrypt, "key %s", key)
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrDecrypt, "key %s", key)
	}
	return string(plain), nil
}
