package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	hkdfInfoSigning    = "hearth/identity/signing/v1"
	hkdfInfoEncryption = "hearth/identity/encryption/v1"
)

var ErrInvalidSeed = errors.New("seed material is empty")

// DeriveKeys expands a master seed into the two per-identity keypairs:
// an Ed25519 signing keypair and an X25519 encryption keypair. The
// derivation is deterministic so the same seed always reproduces the
// same public identity.
func DeriveKeys(seedBytes []byte) (*DerivedKeys, error) {
	if len(seedBytes) == 0 {
		return nil, ErrInvalidSeed
	}
	signingSeed, err := hkdfExpand(seedBytes, hkdfInfoSigning, 32)
	if err != nil {
		return nil, err
	}
	encryptionPriv, err := hkdfExpand(seedBytes, hkdfInfoEncryption, 32)
	if err != nil {
		return nil, err
	}

	signingPriv := ed25519.NewKeyFromSeed(signingSeed)
	signingPub := signingPriv.Public().(ed25519.PublicKey)

	encryptionPub, err := curve25519.X25519(encryptionPriv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	return &DerivedKeys{
		SigningPrivateKey:    signingPriv,
		SigningPublicKey:     signingPub,
		EncryptionPrivateKey: encryptionPriv,
		EncryptionPublicKey:  encryptionPub,
	}, nil
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
