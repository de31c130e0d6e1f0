// Package invitecode generates human-readable invite codes and derives
// key material from them. Every derivation is a pure function of the
// normalized code, so any holder of the code reproduces the same bytes
// while the server only ever sees the one-way hash.
package invitecode

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"

	"hearth-chat/go-backend/internal/identity"
)

// Alphabet excludes I, O, 0 and 1 to keep codes unambiguous when read
// aloud or retyped.
const (
	Alphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength = 12
	groupSize  = 4

	hashPrefix = "hki1"

	deriveSalt = "hearth/invite/kdf-salt/v1"
	deriveInfo = "hearth/invite/symmetric-key/v1"
)

var ErrMalformedCode = errors.New("malformed invite code")

// Generate returns a fresh random code rendered as XXXX-XXXX-XXXX.
func Generate() (string, error) {
	raw := make([]byte, CodeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, c := range raw {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(Alphabet[int(c)%len(Alphabet)])
	}
	return b.String(), nil
}

// Normalize maps user input to the canonical code form: uppercase, no
// separators. All derivations operate on the normalized form.
func Normalize(code string) (string, error) {
	cleaned := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code)))
	if len(cleaned) != CodeLength {
		return "", ErrMalformedCode
	}
	for _, r := range cleaned {
		if !strings.ContainsRune(Alphabet, r) {
			return "", ErrMalformedCode
		}
	}
	return cleaned, nil
}

// Format renders a normalized code in dash-separated groups.
func Format(normalized string) string {
	var b strings.Builder
	for i := 0; i < len(normalized); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + groupSize
		if end > len(normalized) {
			end = len(normalized)
		}
		b.WriteString(normalized[i:end])
	}
	return b.String()
}

// Hash is the server-side lookup key for a code. One way: the code is
// not recoverable from it.
func Hash(code string) (string, error) {
	normalized, err := Normalize(code)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256([]byte(normalized))
	return hashPrefix + base58.Encode(sum[:]), nil
}

// DeriveKey expands the code into the 32-byte symmetric key used by the
// community-scoped invite variant.
func DeriveKey(code string) ([]byte, error) {
	normalized, err := Normalize(code)
	if err != nil {
		return nil, err
	}
	reader := hkdf.New(sha256.New, []byte(normalized), []byte(deriveSalt), []byte(deriveInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveKeypair derives the full transient identity used by the
// team-scoped invite variant. The private half must be discarded after
// redemption; it is never persisted.
func DeriveKeypair(code string) (*identity.DerivedKeys, error) {
	normalized, err := Normalize(code)
	if err != nil {
		return nil, err
	}
	seed := sha256.Sum256([]byte(normalized))
	return identity.DeriveKeys(seed[:])
}
