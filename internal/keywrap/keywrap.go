// Package keywrap moves a symmetric channel key between member
// identities. The server only ever stores the resulting envelope, never
// the key itself.
package keywrap

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"hearth-chat/go-backend/internal/signer"
)

const (
	EnvelopeVersion = 1
	AlgorithmTag    = "nip44"
)

var (
	ErrUnsupportedEnvelope = errors.New("unsupported key envelope format")
	ErrEmptyKey            = errors.New("channel key is empty")
)

// Envelope is the wire form of a wrapped channel key. Immutable once
// created; a re-wrap produces a new envelope.
type Envelope struct {
	V         int    `json:"v"`
	Alg       string `json:"alg"`
	Key       string `json:"key"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// Wrap seals channelKey to the recipient's encryption public key using
// the active signer. The envelope records the creator's encryption key
// so the recipient can re-derive the conversation key on unwrap.
func Wrap(ctx context.Context, s signer.Signer, channelKey, recipientEncPub []byte) (Envelope, error) {
	if s == nil {
		return Envelope{}, signer.ErrNoSigner
	}
	if len(channelKey) == 0 {
		return Envelope{}, ErrEmptyKey
	}
	sealed, err := s.Seal(ctx, channelKey, recipientEncPub)
	if err != nil {
		return Envelope{}, fmt.Errorf("wrap via %s signer: %w", s.Backend(), err)
	}
	return Envelope{
		V:         EnvelopeVersion,
		Alg:       AlgorithmTag,
		Key:       sealed,
		CreatedBy: hex.EncodeToString(s.EncryptionPublicKey()),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Unwrap recovers the channel key from an envelope addressed to the
// active signer's identity. Unknown version or algorithm tags fail
// closed; a decryption failure names the signer backend, because the
// usual cause is an envelope wrapped for a different identity than the
// one currently active.
func Unwrap(ctx context.Context, s signer.Signer, env Envelope) ([]byte, error) {
	if s == nil {
		return nil, signer.ErrNoSigner
	}
	if env.V != EnvelopeVersion || env.Alg != AlgorithmTag {
		return nil, fmt.Errorf("%w: v=%d alg=%q", ErrUnsupportedEnvelope, env.V, env.Alg)
	}
	creatorPub, err := hex.DecodeString(env.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed creator key", ErrUnsupportedEnvelope)
	}
	key, err := s.Open(ctx, env.Key, creatorPub)
	if err != nil {
		return nil, fmt.Errorf("unwrap via %s signer: %w", s.Backend(), err)
	}
	return key, nil
}
