// Package signer abstracts over where the private half of an identity
// lives: in-process, behind an injected external capability, or on a
// remote signer reached over the broadcast transport. Everything that
// signs or wraps keys takes a Signer, selected once per session.
package signer

import (
	"context"
	"errors"
)

const (
	BackendLocal    = "local"
	BackendExternal = "external"
	BackendRemote   = "remote"
)

var (
	ErrNoSigner        = errors.New("no signer backend configured")
	ErrNotSupported    = errors.New("operation not supported by signer backend")
	ErrInvalidPeerKey  = errors.New("invalid peer encryption key")
	ErrSealedTooShort  = errors.New("sealed payload is truncated")
	ErrOpenFailed      = errors.New("sealed payload authentication failed")
	ErrSigningFailed   = errors.New("signing failed")
	ErrIdentityUnknown = errors.New("signer identity is not available")
)

// Signer is the per-session identity backend.
//
// Seal and Open are the pairwise encryption primitive: a conversation
// key derived by X25519 agreement with the peer, expanded through HKDF,
// applied with ChaCha20-Poly1305 and a fresh nonce. The agreement is
// symmetric: sealing from A to B and opening by B with A's public key
// use the identical conversation key.
type Signer interface {
	// Backend names the backing store for diagnostics ("local",
	// "external", "remote").
	Backend() string

	// PublicKey is the hex-encoded Ed25519 signing public key.
	PublicKey() string

	// EncryptionPublicKey is the X25519 public key peers seal to.
	EncryptionPublicKey() []byte

	// Sign produces an Ed25519 signature over digest.
	Sign(ctx context.Context, digest []byte) ([]byte, error)

	// Seal encrypts plaintext to the peer's encryption public key and
	// returns base64(nonce || ciphertext).
	Seal(ctx context.Context, plaintext, peerEncPub []byte) (string, error)

	// Open decrypts a payload produced by the peer's Seal.
	Open(ctx context.Context, sealed string, peerEncPub []byte) ([]byte, error)
}
