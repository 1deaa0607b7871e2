package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCiphertextTooShort is returned by Open for inputs shorter than a nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// KeySealer encrypts private key material at rest with AES-256-GCM.
// Sealed output is laid out as [nonce][ciphertext][tag].
type KeySealer struct {
	aead cipher.AEAD
}

// NewKeySealer derives a 256 bit key from arbitrary master key material.
func NewKeySealer(material []byte) (*KeySealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key material")
	}
	sum := sha256.Sum256(material)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &KeySealer{aead: gcm}, nil
}

// LoadKeySealer reads the master key from path, creating a random one
// with 0600 permissions when the file is missing.
func LoadKeySealer(path string) (*KeySealer, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data = make([]byte, 32)
		if _, err := rand.Read(data); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("cryptox: write master key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("cryptox: read master key: %w", err)
	}
	return NewKeySealer(data)
}

// Seal encrypts plaintext with a fresh random nonce.
func (s *KeySealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts data produced by Seal.
func (s *KeySealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decryption failed: %w", err)
	}
	return plaintext, nil
}
