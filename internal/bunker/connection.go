// Package bunker delegates signing and pairwise encryption to a remote
// identity whose private key never touches this device. Requests and
// responses travel individually encrypted over the public broadcast
// transport.
package bunker

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"hearth-chat/go-backend/internal/identity"
)

var (
	ErrInvalidConnection = errors.New("invalid bunker connection")
)

// Connection is everything the client persists about a remote signer
// pairing: its own ephemeral seed, the remote's reachable encryption
// key, and the relays both sides agreed to meet on.
type Connection struct {
	ClientSeed          []byte   `json:"client_seed"`
	RemoteEncryptionKey []byte   `json:"remote_encryption_key"`
	Relays              []string `json:"relays"`
}

func (c Connection) Validate() error {
	if len(c.ClientSeed) == 0 {
		return fmt.Errorf("%w: missing client seed", ErrInvalidConnection)
	}
	if len(c.RemoteEncryptionKey) != 32 {
		return fmt.Errorf("%w: remote encryption key must be 32 bytes", ErrInvalidConnection)
	}
	for _, relay := range c.Relays {
		if _, err := ma.NewMultiaddr(relay); err != nil {
			return fmt.Errorf("%w: relay %q: %v", ErrInvalidConnection, relay, err)
		}
	}
	return nil
}

// RemoteTag is the broadcast recipient tag requests are addressed to.
func (c Connection) RemoteTag() string {
	return hex.EncodeToString(c.RemoteEncryptionKey)
}

// ClientKeys derives the ephemeral client identity from the persisted
// seed.
func (c Connection) ClientKeys() (*identity.DerivedKeys, error) {
	return identity.DeriveKeys(c.ClientSeed)
}

// Encode serializes a connection for at-rest storage; the caller is
// expected to store the result encrypted.
func (c Connection) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func DecodeConnection(raw []byte) (Connection, error) {
	var c Connection
	if err := json.Unmarshal(raw, &c); err != nil {
		return Connection{}, fmt.Errorf("%w: %v", ErrInvalidConnection, err)
	}
	if err := c.Validate(); err != nil {
		return Connection{}, err
	}
	return c, nil
}
