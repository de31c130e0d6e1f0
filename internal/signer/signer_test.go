package signer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"hearth-chat/go-backend/internal/identity"
)

func testSigner(t *testing.T, seed string) *LocalSigner {
	t.Helper()
	keys, err := identity.DeriveKeys([]byte(seed))
	if err != nil {
		t.Fatalf("derive keys failed: %v", err)
	}
	s, err := NewLocalSigner(keys)
	if err != nil {
		t.Fatalf("new local signer failed: %v", err)
	}
	return s
}

func TestConversationKeySymmetry(t *testing.T) {
	alice := testSigner(t, "alice-seed")
	bob := testSigner(t, "bob-seed")

	kA, err := ConversationKey(alice.keys.EncryptionPrivateKey, bob.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("alice conversation key failed: %v", err)
	}
	kB, err := ConversationKey(bob.keys.EncryptionPrivateKey, alice.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("bob conversation key failed: %v", err)
	}
	if !bytes.Equal(kA, kB) {
		t.Fatal("conversation keys must agree in both directions")
	}
}

func TestSealOpenBothDirections(t *testing.T) {
	ctx := context.Background()
	alice := testSigner(t, "alice-seed")
	bob := testSigner(t, "bob-seed")

	sealed, err := alice.Seal(ctx, []byte("channel key bytes"), bob.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	opened, err := bob.Open(ctx, sealed, alice.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(opened) != "channel key bytes" {
		t.Fatalf("unexpected plaintext: %q", opened)
	}

	sealed, err = bob.Seal(ctx, []byte("reverse direction"), alice.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	opened, err = alice.Open(ctx, sealed, bob.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(opened) != "reverse direction" {
		t.Fatalf("unexpected plaintext: %q", opened)
	}
}

func TestOpenWithWrongIdentityFails(t *testing.T) {
	ctx := context.Background()
	alice := testSigner(t, "alice-seed")
	bob := testSigner(t, "bob-seed")
	mallory := testSigner(t, "mallory-seed")

	sealed, err := alice.Seal(ctx, []byte("secret"), bob.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := mallory.Open(ctx, sealed, alice.EncryptionPublicKey()); err == nil {
		t.Fatal("third identity must not open a pairwise sealed payload")
	}
}

func TestLocalSignerSignature(t *testing.T) {
	ctx := context.Background()
	alice := testSigner(t, "alice-seed")

	digest := bytes.Repeat([]byte{0xAB}, 32)
	sig, err := alice.Sign(ctx, digest)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !ed25519.Verify(alice.keys.SigningPublicKey, digest, sig) {
		t.Fatal("signature must verify under the signing public key")
	}
}

func TestExternalSignerDelegates(t *testing.T) {
	ctx := context.Background()
	local := testSigner(t, "ext-seed")

	ext := &ExternalSigner{
		SigningPublicKeyHex: local.PublicKey(),
		EncryptionPublic:    local.EncryptionPublicKey(),
		SignFunc:            local.Sign,
		SealFunc:            local.Seal,
		OpenFunc:            local.Open,
	}
	if ext.Backend() != BackendExternal {
		t.Fatalf("unexpected backend: %s", ext.Backend())
	}
	peer := testSigner(t, "peer-seed")
	sealed, err := ext.Seal(ctx, []byte("via capability"), peer.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	opened, err := peer.Open(ctx, sealed, ext.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(opened) != "via capability" {
		t.Fatalf("unexpected plaintext: %q", opened)
	}
}

func TestExternalSignerWithoutCallbacks(t *testing.T) {
	ext := &ExternalSigner{}
	if _, err := ext.Sign(context.Background(), nil); err == nil {
		t.Fatal("expected error without SignFunc")
	}
	if _, err := ext.Seal(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error without SealFunc")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	key := make([]byte, 32)
	if _, err := OpenWithKey(key, "!!not-base64"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := OpenWithKey(key, "c2hvcnQ="); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestUnlockSessionSigner(t *testing.T) {
	sm := identity.NewSeedManager()
	mnemonic, keys, err := sm.Create("login-pass")
	if err != nil {
		t.Fatalf("create seed failed: %v", err)
	}
	if !sm.ValidateMnemonic(mnemonic) {
		t.Fatal("created mnemonic must be valid")
	}

	s, err := Unlock(sm, "login-pass")
	if err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if !bytes.Equal(s.keys.SigningPublicKey, keys.SigningPublicKey) {
		t.Fatal("unlocked signer must carry the created identity's signing key")
	}
	if !bytes.Equal(s.EncryptionPublicKey(), keys.EncryptionPublicKey) {
		t.Fatal("unlocked signer must carry the created identity's encryption key")
	}

	if _, err := Unlock(sm, "wrong-pass"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}
