package transport

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecrypt is returned when ciphertext cannot be opened
var ErrDecrypt = errors.New("failed to decrypt message")

const nonceSize = 24

// Cipher encrypts message text on the wire
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// NewCipher returns SecretBox for a non-empty key and Plain otherwise
func NewCipher(key string) Cipher {
	if key == "" {
		return Plain{}
	}
	return NewSecretBox(key)
}

// Plain leaves text untouched
type Plain struct{}

func (Plain) Encrypt(s string) (string, error) { return s, nil }
func (Plain) Decrypt(s string) (string, error) { return s, nil }

// SecretBox seals text with NaCl secretbox. The key is the BLAKE2b-256
// digest of the shared passphrase; the wire form is base64(nonce|box).
type SecretBox struct {
	key [32]byte
}

// NewSecretBox derives the box key from passphrase
func NewSecretBox(passphrase string) *SecretBox {
	return &SecretBox{key: blake2b.Sum256([]byte(passphrase))}
}

func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *SecretBox) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: message too short", ErrDecrypt)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
