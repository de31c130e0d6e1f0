// Package channelkey distributes symmetric channel keys between members
// without the server ever seeing a key or a plaintext invite code. The
// server stores one-way code hashes and opaque ciphertext blobs only.
package channelkey

import (
	"context"
	"errors"

	"hearth-chat/go-backend/pkg/models"
)

var (
	ErrInviteNotFound      = errors.New("invite not found or exhausted")
	ErrKeyNotFound         = errors.New("no wrapped key stored for this identity")
	ErrTeamNotBootstrapped = errors.New("team scope has no channel key yet")
	ErrRateLimited         = errors.New("too many redeem attempts")
	ErrInsecureContext     = errors.New("secure random source unavailable")
)

// KeyServer is the backend collaborator contract. Implementations store
// only what they are handed: code hashes, wrapped-key envelopes, and
// ciphertext payloads.
type KeyServer interface {
	// BootstrapCommunity applies one full key distribution batch
	// atomically: the creator's own wrapped copy plus one per member.
	BootstrapCommunity(ctx context.Context, req models.BootstrapRequest) error

	// FetchWrappedKey returns the stored envelope for one identity in a
	// scope, or ErrKeyNotFound.
	FetchWrappedKey(ctx context.Context, scope models.Scope, identityID string) (models.WrappedKey, error)

	// StoreWrappedKey stores an envelope for one identity in a scope. A
	// later envelope for the same (scope, identity) pair supersedes the
	// earlier one.
	StoreWrappedKey(ctx context.Context, scope models.Scope, identityID string, wrapped models.WrappedKey) error

	// ListMembers returns the member roster of a scope.
	ListMembers(ctx context.Context, scope models.Scope) ([]models.Member, error)

	// CreateInvite stores an invite payload under its code hash.
	CreateInvite(ctx context.Context, invite models.InviteUpload) error

	// RedeemInvite returns the payload stored under a code hash, or
	// ErrInviteNotFound. Single-use invites are consumed by this call.
	RedeemInvite(ctx context.Context, codeHash string) (string, error)

	// TeamState returns the encryption anchor of a team scope, or
	// ErrTeamNotBootstrapped when no invite was ever issued for it.
	TeamState(ctx context.Context, tenantID string) (models.TeamKeyState, error)

	// InitTeamState records the invite-derived public key that
	// bootstrapped a team scope's channel key.
	InitTeamState(ctx context.Context, state models.TeamKeyState) error

	// FetchPlaintextPage returns a page of pre-encryption messages after
	// an opaque cursor.
	FetchPlaintextPage(ctx context.Context, scope models.Scope, afterID string, limit int) (models.PlaintextPage, error)

	// SubmitEncryptedBatch replaces plaintext records with their
	// encrypted forms and reports how many plaintext records remain.
	SubmitEncryptedBatch(ctx context.Context, scope models.Scope, batch []models.EncryptedMessage) (int, error)

	// CompleteMigration marks a scope's migration finished. Idempotent.
	CompleteMigration(ctx context.Context, scope models.Scope) error
}
