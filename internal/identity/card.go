package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const identityIDPrefix = "hth1"

// BuildIdentityID derives the stable member identifier from the signing
// public key. The hash keeps raw key bytes out of logs and server-side
// lookup tables.
func BuildIdentityID(signingPublicKey []byte) (string, error) {
	if len(signingPublicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid signing public key size: %d", len(signingPublicKey))
	}
	h := blake2b.Sum256(signingPublicKey)
	return identityIDPrefix + base58.Encode(h[:]), nil
}

func VerifyIdentityID(identityID string, signingPublicKey []byte) (bool, error) {
	expected, err := BuildIdentityID(signingPublicKey)
	if err != nil {
		return false, err
	}
	return identityID == expected, nil
}
