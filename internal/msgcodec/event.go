package msgcodec

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// KindChannelMessage is the event kind for channel chat content.
const KindChannelMessage = 9

// SignedEvent binds content to an identity. ID is a deterministic
// digest of the other fields; Sig is a signature over ID by the private
// half of Pubkey.
type SignedEvent struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// EventDigest computes the canonical id preimage digest:
// SHA-256 over the JSON array [0, pubkey, created_at, kind, tags, content].
// Field order is fixed, so the digest is stable across implementations.
func EventDigest(ev SignedEvent) ([32]byte, error) {
	canonical := []any{0, ev.Pubkey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}

// VerifyEvent checks that the event's id matches its fields and that
// the signature verifies under the claimed pubkey.
func VerifyEvent(ev SignedEvent) bool {
	digest, err := EventDigest(ev)
	if err != nil {
		return false
	}
	if ev.ID != hex.EncodeToString(digest[:]) {
		return false
	}
	pub, err := hex.DecodeString(ev.Pubkey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(ev.Sig)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, digest[:], sig)
}
