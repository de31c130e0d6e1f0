package signer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const conversationInfo = "hearth/conversation/v1"

// ConversationKey derives the pairwise symmetric key between one
// identity's private scalar and another's public key. X25519 guarantees
// ConversationKey(a, B) == ConversationKey(b, A).
func ConversationKey(priv, peerPub []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize || len(peerPub) != curve25519.PointSize {
		return nil, ErrInvalidPeerKey
	}
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, ErrInvalidPeerKey
	}
	reader := hkdf.New(sha256.New, shared, nil, []byte(conversationInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// SealWithKey encrypts plaintext under a conversation key with a fresh
// nonce and returns base64(nonce || ciphertext).
func SealWithKey(convKey, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.New(convKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenWithKey reverses SealWithKey.
func OpenWithKey(convKey []byte, sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrOpenFailed
	}
	if len(raw) < chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return nil, ErrSealedTooShort
	}
	aead, err := chacha20poly1305.New(convKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}
