package qrpay

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keyring derives one key per version from a single master secret, so
// rotating means bumping the current version while older QR texts still verify.
type Keyring struct {
	master  []byte
	current int
	oldest  int
}

func NewKeyring(secret string, current, oldest int) (*Keyring, error) {
	if secret == "" {
		return nil, errors.New("qrpay: signing secret is required")
	}

	if current < 1 {
		return nil, fmt.Errorf("qrpay: key version must be positive, got %d", current)
	}

	if oldest < 1 || oldest > current {
		oldest = current
	}

	return &Keyring{master: []byte(secret), current: current, oldest: oldest}, nil
}

func (k *Keyring) Current() (int, []byte) {
	return k.current, k.derive(k.current)
}

func (k *Keyring) Key(version int) ([]byte, error) {
	if version < k.oldest || version > k.current {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKey, version)
	}

	return k.derive(version), nil
}

func (k *Keyring) derive(version int) []byte {
	r := hkdf.New(sha256.New, k.master, nil, fmt.Appendf(nil, "scondo-qr-v%d", version))

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255*hash size bytes
		panic(err)
	}

	return key
}
