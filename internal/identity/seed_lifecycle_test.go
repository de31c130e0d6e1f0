package identity

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestSeedLifecycleCreateExportImport(t *testing.T) {
	sm := NewSeedManager()

	mnemonic, keys, err := sm.Create("pass-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !sm.ValidateMnemonic(mnemonic) {
		t.Fatal("created mnemonic must be valid")
	}

	exported, err := sm.Export("pass-1")
	if err != nil {
		t.Fatalf("export seed failed: %v", err)
	}
	if exported != mnemonic {
		t.Fatal("exported mnemonic should match created mnemonic")
	}

	_, importedKeys, err := NewSeedManager().Import(mnemonic, "pass-2")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !bytes.Equal(keys.SigningPublicKey, importedKeys.SigningPublicKey) {
		t.Fatal("importing same mnemonic should reproduce same signing key")
	}
	if !bytes.Equal(keys.EncryptionPublicKey, importedKeys.EncryptionPublicKey) {
		t.Fatal("importing same mnemonic should reproduce same encryption key")
	}
}

func TestSeedLifecycleInvalidInputs(t *testing.T) {
	sm := NewSeedManager()
	if _, err := sm.Export("p"); err == nil {
		t.Fatal("expected error exporting without stored seed")
	}
	if _, _, err := sm.Create(""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if _, _, err := sm.Import("not a mnemonic", "p"); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestSeedLifecycleChangePassword(t *testing.T) {
	sm := NewSeedManager()
	mnemonic, _, err := sm.Create("old-pass")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := sm.ChangePassword("old-pass", "new-pass"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	exported, err := sm.Export("new-pass")
	if err != nil {
		t.Fatalf("new password export failed: %v", err)
	}
	if exported != mnemonic {
		t.Fatal("mnemonic should stay unchanged after password change")
	}
	if _, err := sm.Export("old-pass"); err == nil {
		t.Fatal("expected old password to fail after password change")
	}
}

func TestSeedLifecyclePasswordLockout(t *testing.T) {
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sm := newSeedManagerWithClock(clock)

	mnemonic, _, err := sm.Create("good-pass")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !sm.ValidateMnemonic(mnemonic) {
		t.Fatal("mnemonic should be valid")
	}

	if _, err := sm.Export("wrong-pass"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if _, err := sm.Export("wrong-pass"); !errors.Is(err, ErrPasswordLocked) {
		t.Fatalf("expected ErrPasswordLocked, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := sm.Export("good-pass"); err != nil {
		t.Fatalf("expected unlock after backoff, got %v", err)
	}
}

func TestDeriveKeysDeterministic(t *testing.T) {
	seed := []byte("a-fixed-master-seed-for-testing")
	a, err := DeriveKeys(seed)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	b, err := DeriveKeys(seed)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if !bytes.Equal(a.SigningPublicKey, b.SigningPublicKey) || !bytes.Equal(a.EncryptionPublicKey, b.EncryptionPublicKey) {
		t.Fatal("derivation must be deterministic")
	}
	if bytes.Equal(a.SigningPublicKey, a.EncryptionPublicKey) {
		t.Fatal("signing and encryption keys must be domain separated")
	}
}

func TestBuildIdentityIDRoundTrip(t *testing.T) {
	keys, err := DeriveKeys([]byte("seed"))
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	id, pub, err := FromKeys(keys)
	if err != nil {
		t.Fatalf("from keys failed: %v", err)
	}
	ok, err := VerifyIdentityID(id, pub)
	if err != nil || !ok {
		t.Fatalf("identity id must verify against its key: ok=%v err=%v", ok, err)
	}
	if ok, _ := VerifyIdentityID(id, bytes.Repeat([]byte{7}, 32)); ok {
		t.Fatal("identity id must not verify against a different key")
	}
}
