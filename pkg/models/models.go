package models

import (
	"time"
)

// Member is a key-server record for one identity inside a scope.
type Member struct {
	IdentityID          string `json:"identity_id"`
	SigningPublicKey    []byte `json:"signing_public_key"`
	EncryptionPublicKey []byte `json:"encryption_public_key"`
	Role                string `json:"role,omitempty"`
}

// WrappedKey is the server-side shape of an encrypted channel-key copy.
// The server stores it opaquely; only the recipient identity can decrypt.
type WrappedKey struct {
	Version   int    `json:"v"`
	Algorithm string `json:"alg"`
	Key       string `json:"key"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// BootstrapRequest carries one full community key distribution batch.
// The server applies it atomically.
type BootstrapRequest struct {
	CreatorIdentityID string                `json:"creator_identity_id"`
	CreatorWrappedKey WrappedKey            `json:"creator_wrapped_key"`
	MemberWrappedKeys map[string]WrappedKey `json:"member_wrapped_keys"`
}

// InviteUpload is what a creator submits for a new invite. Payload is an
// opaque ciphertext blob; the server never sees the plaintext code or key.
type InviteUpload struct {
	CodeHash  string        `json:"code_hash"`
	Scope     Scope         `json:"scope"`
	Payload   string        `json:"payload"`
	SingleUse bool          `json:"single_use"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

// TeamKeyState records the encryption anchor for a team scope: the
// invite-derived public key that bootstrapped the scope's channel key.
type TeamKeyState struct {
	TenantID        string    `json:"tenant_id"`
	AnchorPublicKey []byte    `json:"anchor_public_key"`
	CreatedAt       time.Time `json:"created_at"`
}

// PlaintextMessage is a stored message that predates channel encryption.
type PlaintextMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PlaintextPage is one migration batch of pre-encryption messages.
type PlaintextPage struct {
	Messages  []PlaintextMessage `json:"messages"`
	NextAfter string             `json:"next_after,omitempty"`
	Remaining int                `json:"remaining"`
}

// EncryptedMessage replaces one plaintext record during migration.
type EncryptedMessage struct {
	ID         string `json:"id"`
	Ciphertext string `json:"ciphertext"`
}
