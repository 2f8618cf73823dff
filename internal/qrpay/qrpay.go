// Package qrpay signs and verifies the payment text embedded in QR codes.
//
// The text has the form
//
//	SCONDO://PAY?d=<url-escaped json>&sig=<hex hmac-sha256>
//
// where the JSON is the deterministic encoding of Payload and the HMAC is
// computed over exactly those JSON bytes with the key named by Payload.KeyID.
package qrpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Version is the payload layout version.
const Version = 1

const prefix = "SCONDO://PAY?"

var (
	ErrMalformed  = errors.New("qrpay: malformed payment text")
	ErrSignature  = errors.New("qrpay: signature mismatch")
	ErrUnknownKey = errors.New("qrpay: unknown key version")
)

type Payload struct {
	Version   int    `json:"v"`
	KeyID     int    `json:"kid"`
	PaymentID string `json:"payment_id"`
	IntentID  string `json:"intent_id"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	ExpiresAt int64  `json:"exp"`
}

// KeyProvider hands out signing keys by version.
type KeyProvider interface {
	Current() (version int, key []byte)
	Key(version int) ([]byte, error)
}

type Signer struct {
	keys KeyProvider
}

func NewSigner(keys KeyProvider) *Signer {
	return &Signer{keys: keys}
}

// Sign stamps p with the current key version and returns the QR text.
func (s *Signer) Sign(p Payload) (string, error) {
	version, key := s.keys.Current()

	p.Version = Version
	p.KeyID = version

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("qrpay: encode payload: %w", err)
	}

	q := url.Values{}
	q.Set("d", string(data))
	q.Set("sig", hex.EncodeToString(mac(key, data)))

	return prefix + q.Encode(), nil
}

// Verify checks the signature of text and returns the payload it carries.
func (s *Signer) Verify(text string) (Payload, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(text), prefix)
	if !ok {
		return Payload{}, ErrMalformed
	}

	q, err := url.ParseQuery(raw)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	data := []byte(q.Get("d"))

	sig, err := hex.DecodeString(q.Get("sig"))
	if err != nil || len(data) == 0 || len(sig) == 0 {
		return Payload{}, ErrMalformed
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, ErrMalformed
	}

	if p.Version != Version {
		return Payload{}, fmt.Errorf("%w: version %d", ErrMalformed, p.Version)
	}

	key, err := s.keys.Key(p.KeyID)
	if err != nil {
		return Payload{}, err
	}

	if !hmac.Equal(sig, mac(key, data)) {
		return Payload{}, ErrSignature
	}

	return p, nil
}

func mac(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)

	return h.Sum(nil)
}
