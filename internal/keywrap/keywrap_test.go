package keywrap

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"hearth-chat/go-backend/internal/identity"
	"hearth-chat/go-backend/internal/signer"
)

func newSigner(t *testing.T, seed string) *signer.LocalSigner {
	t.Helper()
	keys, err := identity.DeriveKeys([]byte(seed))
	if err != nil {
		t.Fatalf("derive keys failed: %v", err)
	}
	s, err := signer.NewLocalSigner(keys)
	if err != nil {
		t.Fatalf("new signer failed: %v", err)
	}
	return s
}

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand failed: %v", err)
	}
	return key
}

func TestWrapUnwrapBothDirections(t *testing.T) {
	ctx := context.Background()
	admin := newSigner(t, "admin-seed")
	member := newSigner(t, "member-seed")
	channelKey := randomKey(t)

	env, err := Wrap(ctx, admin, channelKey, member.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	if env.V != EnvelopeVersion || env.Alg != AlgorithmTag {
		t.Fatalf("unexpected envelope tags: v=%d alg=%q", env.V, env.Alg)
	}
	got, err := Unwrap(ctx, member, env)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if !bytes.Equal(got, channelKey) {
		t.Fatal("unwrapped key must match the wrapped key")
	}

	// Reverse direction: same pair, roles swapped.
	env2, err := Wrap(ctx, member, channelKey, admin.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("reverse wrap failed: %v", err)
	}
	got2, err := Unwrap(ctx, admin, env2)
	if err != nil {
		t.Fatalf("reverse unwrap failed: %v", err)
	}
	if !bytes.Equal(got2, channelKey) {
		t.Fatal("reverse unwrapped key must match")
	}
}

func TestUnwrapFailsClosedOnFormatMismatch(t *testing.T) {
	ctx := context.Background()
	admin := newSigner(t, "admin-seed")
	member := newSigner(t, "member-seed")

	env, err := Wrap(ctx, admin, randomKey(t), member.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}

	badVersion := env
	badVersion.V = 2
	if _, err := Unwrap(ctx, member, badVersion); !errors.Is(err, ErrUnsupportedEnvelope) {
		t.Fatalf("expected ErrUnsupportedEnvelope for version, got %v", err)
	}

	badAlg := env
	badAlg.Alg = "nip04"
	if _, err := Unwrap(ctx, member, badAlg); !errors.Is(err, ErrUnsupportedEnvelope) {
		t.Fatalf("expected ErrUnsupportedEnvelope for alg, got %v", err)
	}

	badCreator := env
	badCreator.CreatedBy = "zz-not-hex"
	if _, err := Unwrap(ctx, member, badCreator); !errors.Is(err, ErrUnsupportedEnvelope) {
		t.Fatalf("expected ErrUnsupportedEnvelope for creator key, got %v", err)
	}
}

func TestUnwrapWithWrongIdentityNamesBackend(t *testing.T) {
	ctx := context.Background()
	admin := newSigner(t, "admin-seed")
	member := newSigner(t, "member-seed")
	outsider := newSigner(t, "outsider-seed")

	env, err := Wrap(ctx, admin, randomKey(t), member.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	_, err = Unwrap(ctx, outsider, env)
	if err == nil {
		t.Fatal("wrong identity must not unwrap")
	}
	// Diagnostic context distinguishes which backend failed.
	if want := "local signer"; !bytes.Contains([]byte(err.Error()), []byte(want)) {
		t.Fatalf("error should name the signer backend, got %q", err)
	}
}

func TestWrapRequiresSignerAndKey(t *testing.T) {
	ctx := context.Background()
	member := newSigner(t, "member-seed")
	if _, err := Wrap(ctx, nil, randomKey(t), member.EncryptionPublicKey()); !errors.Is(err, signer.ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}
	if _, err := Wrap(ctx, member, nil, member.EncryptionPublicKey()); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
