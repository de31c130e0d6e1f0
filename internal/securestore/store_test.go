package securestore

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"hearth-chat/go-backend/internal/bunker"
	"hearth-chat/go-backend/internal/identity"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	data, err := Encrypt("passphrase", []byte("secret state"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	plain, err := Decrypt("passphrase", data)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plain) != "secret state" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestWrongPassphraseFailsAuth(t *testing.T) {
	data, err := Encrypt("passphrase", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := Decrypt("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestPlaintextFileIsLegacy(t *testing.T) {
	if _, err := Decrypt("passphrase", []byte(`{"plain":"json"}`)); !errors.Is(err, ErrLegacyData) {
		t.Fatalf("expected ErrLegacyData, got %v", err)
	}
}

func TestKDFDowngradeRejected(t *testing.T) {
	data, err := Encrypt("passphrase", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	tampered := bytes.Replace(data, []byte(`"argon2id"`), []byte(`"md5"`), 1)
	if _, err := Decrypt("passphrase", tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for a downgraded KDF, got %v", err)
	}
}

func TestStoreBunkerConnectionRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir(), "device-passphrase")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	keys, err := identity.DeriveKeys([]byte("remote-seed"))
	if err != nil {
		t.Fatalf("derive keys failed: %v", err)
	}
	conn := bunker.Connection{
		ClientSeed:          []byte("client-seed"),
		RemoteEncryptionKey: keys.EncryptionPublicKey,
		Relays:              []string{"/dns4/relay.example.org/tcp/443/wss"},
	}
	if err := store.SaveBunkerConnection(conn); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := store.LoadBunkerConnection()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !bytes.Equal(loaded.ClientSeed, conn.ClientSeed) || loaded.RemoteTag() != conn.RemoteTag() {
		t.Fatal("round trip must preserve the connection")
	}
}

func TestStoreRejectsInvalidConnection(t *testing.T) {
	store, err := Open(t.TempDir(), "device-passphrase")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	err = store.SaveBunkerConnection(bunker.Connection{ClientSeed: []byte("x")})
	if !errors.Is(err, bunker.ErrInvalidConnection) {
		t.Fatalf("expected ErrInvalidConnection, got %v", err)
	}
}

func TestWipeRemovesState(t *testing.T) {
	store, err := Open(t.TempDir(), "device-passphrase")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := store.SavePINEnvelope("pin-wrapped"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Wipe(); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}
	if _, err := store.LoadPINEnvelope(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist after wipe, got %v", err)
	}
	// Wiping an already-empty store is fine.
	if err := store.Wipe(); err != nil {
		t.Fatalf("second wipe failed: %v", err)
	}
}
