package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"

	"hearth-chat/go-backend/internal/identity"
)

// LocalSigner holds the session's derived keys in process memory. It is
// the backend for users who unlock their identity on this device.
type LocalSigner struct {
	keys *identity.DerivedKeys
}

func NewLocalSigner(keys *identity.DerivedKeys) (*LocalSigner, error) {
	if keys == nil || len(keys.SigningPrivateKey) != ed25519.PrivateKeySize {
		return nil, ErrIdentityUnknown
	}
	return &LocalSigner{keys: keys}, nil
}

func (s *LocalSigner) Backend() string { return BackendLocal }

func (s *LocalSigner) PublicKey() string {
	return hex.EncodeToString(s.keys.SigningPublicKey)
}

func (s *LocalSigner) EncryptionPublicKey() []byte {
	return append([]byte(nil), s.keys.EncryptionPublicKey...)
}

func (s *LocalSigner) Sign(_ context.Context, digest []byte) ([]byte, error) {
	return ed25519.Sign(s.keys.SigningPrivateKey, digest), nil
}

func (s *LocalSigner) Seal(_ context.Context, plaintext, peerEncPub []byte) (string, error) {
	convKey, err := ConversationKey(s.keys.EncryptionPrivateKey, peerEncPub)
	if err != nil {
		return "", err
	}
	defer zeroBytes(convKey)
	return SealWithKey(convKey, plaintext)
}

func (s *LocalSigner) Open(_ context.Context, sealed string, peerEncPub []byte) ([]byte, error) {
	convKey, err := ConversationKey(s.keys.EncryptionPrivateKey, peerEncPub)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(convKey)
	return OpenWithKey(convKey, sealed)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
