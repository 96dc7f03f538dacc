package blob

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCorrupt = errors.New("blob failed authentication")

// Sealed encrypts blobs with XChaCha20-Poly1305 before handing them to the
// underlying store. The blob key is bound as additional data, so a
// ciphertext moved to another key fails to open.
type Sealed struct {
	store Store
	aead  cipher.AEAD
}

var _ Store = (*Sealed)(nil)

func NewSealed(store Store, key []byte) (*Sealed, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return &Sealed{store: store, aead: aead}, nil
}

// ParseKey decodes a 64 character hex key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid encryption key: want %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

func GenerateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Sealed) Put(ctx context.Context, key string, data []byte) error {
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(data)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := s.aead.Seal(nonce, nonce, data, []byte(key))
	return s.store.Put(ctx, key, sealed)
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}

	nonce, ct := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	data, err := s.aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	return data, nil
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}
