package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/phrazzld/reelchain/internal/domain"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrUnseal is returned when a sealed value cannot be opened with the
// configured key.
var ErrUnseal = errors.New("sealed value cannot be opened")

// Sealer encrypts credential values with NaCl secretbox.
type Sealer struct {
	key [keySize]byte
}

// NewSealer parses a 64 character hex key.
func NewSealer(hexKey string) (*Sealer, error) {
	const op = "credentials.NewSealer"

	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, domain.E(domain.KindConfiguration, op, fmt.Errorf("encryption key is not hex: %w", err))
	}
	if len(raw) != keySize {
		return nil, domain.Errorf(domain.KindConfiguration, op,
			"encryption key must be %d bytes, got %d", keySize, len(raw))
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal returns nonce || box.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, domain.E(domain.KindConfiguration, "credentials.Open", ErrUnseal)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, domain.E(domain.KindConfiguration, "credentials.Open", ErrUnseal)
	}
	return out, nil
}
