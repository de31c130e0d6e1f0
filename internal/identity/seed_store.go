package identity

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	seedEnvelopeVersion = 1
	seedKDFName         = "argon2id"
	seedArgonTime       = uint32(2)
	seedArgonMemKB      = uint32(64 * 1024)
	seedArgonThreads    = uint8(1)
)

var ErrSeedAuthFailed = errors.New("seed envelope authentication failed")

// EncryptSeed wraps the master seed under a password-derived key for
// at-rest storage. The envelope records its own KDF parameters so they
// can be raised later without breaking existing envelopes.
func EncryptSeed(seed []byte, password []byte) (*EncryptedSeedEnvelope, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := argon2.IDKey(password, salt, seedArgonTime, seedArgonMemKB, seedArgonThreads, chacha20poly1305.KeySize)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return &EncryptedSeedEnvelope{
		Version:     seedEnvelopeVersion,
		KDF:         seedKDFName,
		KDFTime:     seedArgonTime,
		KDFMemoryKB: seedArgonMemKB,
		KDFThreads:  seedArgonThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, seed, nil),
	}, nil
}

func DecryptSeed(env *EncryptedSeedEnvelope, password []byte) ([]byte, error) {
	if env == nil || env.Version != seedEnvelopeVersion {
		return nil, fmt.Errorf("unsupported seed envelope version")
	}
	if env.KDF != seedKDFName {
		return nil, fmt.Errorf("unsupported kdf: %s", env.KDF)
	}
	if env.KDFTime < seedArgonTime || env.KDFMemoryKB < seedArgonMemKB {
		return nil, fmt.Errorf("kdf parameters below policy floor")
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrSeedAuthFailed
	}
	key := argon2.IDKey(password, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrSeedAuthFailed
	}
	return plaintext, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
