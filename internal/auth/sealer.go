package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrUnsealable is returned for values that were not sealed with this key.
var ErrUnsealable = errors.New("sealed value is corrupt or was sealed with another key")

// Sealer encrypts upstream tokens before they are persisted.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("worker-portal/session-token"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// Seal encrypts plaintext into a URL-safe string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealable
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealable
	}
	return string(plain), nil
}
