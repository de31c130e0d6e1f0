// Package pinlock protects a locally held secret behind a short numeric
// PIN. The envelope is a single base64 string so it can live in any
// string-valued client storage slot.
package pinlock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize = 16
	// A PIN has a few tens of bits of entropy at best; the iteration
	// count carries the rest of the work factor.
	kdfIterations = 310_000

	// okPrefix lets Decrypt distinguish a correct PIN from a decryption
	// that merely produced bytes. The AEAD tag is the primary signal;
	// the prefix guards against non-authenticating cipher backends.
	okPrefix = "OK:"
)

var ErrPINRequired = errors.New("pin is required")

// Encrypt wraps secret under a key derived from pin. Output layout is
// base64(salt || nonce || ciphertext) with a fresh random salt and nonce
// per call.
func Encrypt(secret, pin string) (string, error) {
	if strings.TrimSpace(pin) == "" {
		return "", ErrPINRequired
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := deriveKey(pin, salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := aead.Seal(nil, nonce, []byte(okPrefix+secret), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. A wrong PIN, malformed envelope, or tampered
// ciphertext all yield ok=false; the caller is expected to retry
// interactively, so no error detail is surfaced.
func Decrypt(envelope, pin string) (secret string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", false
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return "", false
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSize]
	ciphertext := raw[saltSize+chacha20poly1305.NonceSize:]

	key := deriveKey(pin, salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", false
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(string(plaintext), okPrefix) {
		return "", false
	}
	return string(plaintext[len(okPrefix):]), true
}

func deriveKey(pin string, salt []byte) []byte {
	return pbkdf2.Key([]byte(pin), salt, kdfIterations, chacha20poly1305.KeySize, sha256.New)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
