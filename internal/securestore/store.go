package securestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"hearth-chat/go-backend/internal/bunker"
	"hearth-chat/go-backend/internal/identity"
)

const (
	seedEnvelopeFile     = "identity-seed.enc"
	bunkerConnectionFile = "bunker-connection.enc"
	pinEnvelopeFile      = "pin-envelope.enc"
)

// Store persists client secrets in one directory, each file sealed
// under the device passphrase. Created at login, paths are stable so a
// later session can reopen the same state.
type Store struct {
	dir        string
	passphrase string
}

func Open(dir, passphrase string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("securestore: directory is required")
	}
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("securestore: passphrase is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir, passphrase: passphrase}, nil
}

// SaveJSON seals a JSON-encodable value into a named store file.
func (s *Store) SaveJSON(name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	encrypted, err := Encrypt(s.passphrase, payload)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, name), encrypted, 0o600)
}

// LoadJSON opens a named store file into out. A missing file surfaces
// as os.ErrNotExist.
func (s *Store) LoadJSON(name string, out any) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	payload, err := Decrypt(s.passphrase, raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}

func (s *Store) SaveSeedEnvelope(env identity.EncryptedSeedEnvelope) error {
	return s.SaveJSON(seedEnvelopeFile, env)
}

func (s *Store) LoadSeedEnvelope() (identity.EncryptedSeedEnvelope, error) {
	var env identity.EncryptedSeedEnvelope
	err := s.LoadJSON(seedEnvelopeFile, &env)
	return env, err
}

func (s *Store) SaveBunkerConnection(conn bunker.Connection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	return s.SaveJSON(bunkerConnectionFile, conn)
}

func (s *Store) LoadBunkerConnection() (bunker.Connection, error) {
	var conn bunker.Connection
	if err := s.LoadJSON(bunkerConnectionFile, &conn); err != nil {
		return bunker.Connection{}, err
	}
	if err := conn.Validate(); err != nil {
		return bunker.Connection{}, err
	}
	return conn, nil
}

// SavePINEnvelope stores pinlock output. The material is already
// encrypted under the PIN; the store adds the device-passphrase layer.
func (s *Store) SavePINEnvelope(envelope string) error {
	return s.SaveJSON(pinEnvelopeFile, envelope)
}

func (s *Store) LoadPINEnvelope() (string, error) {
	var envelope string
	err := s.LoadJSON(pinEnvelopeFile, &envelope)
	return envelope, err
}

// Wipe removes every store file. Called at logout.
func (s *Store) Wipe() error {
	var firstErr error
	for _, name := range []string{seedEnvelopeFile, bunkerConnectionFile, pinEnvelopeFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
