package signer

import "context"

// ExternalSigner routes every operation to injected callbacks. It backs
// identities held by a browser-extension-like capability provider that
// never releases the private key to this process.
type ExternalSigner struct {
	SigningPublicKeyHex string
	EncryptionPublic    []byte

	SignFunc func(ctx context.Context, digest []byte) ([]byte, error)
	SealFunc func(ctx context.Context, plaintext, peerEncPub []byte) (string, error)
	OpenFunc func(ctx context.Context, sealed string, peerEncPub []byte) ([]byte, error)
}

func (s *ExternalSigner) Backend() string { return BackendExternal }

func (s *ExternalSigner) PublicKey() string { return s.SigningPublicKeyHex }

func (s *ExternalSigner) EncryptionPublicKey() []byte {
	return append([]byte(nil), s.EncryptionPublic...)
}

func (s *ExternalSigner) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	if s.SignFunc == nil {
		return nil, ErrNotSupported
	}
	return s.SignFunc(ctx, digest)
}

func (s *ExternalSigner) Seal(ctx context.Context, plaintext, peerEncPub []byte) (string, error) {
	if s.SealFunc == nil {
		return "", ErrNotSupported
	}
	return s.SealFunc(ctx, plaintext, peerEncPub)
}

func (s *ExternalSigner) Open(ctx context.Context, sealed string, peerEncPub []byte) ([]byte, error) {
	if s.OpenFunc == nil {
		return nil, ErrNotSupported
	}
	return s.OpenFunc(ctx, sealed, peerEncPub)
}
