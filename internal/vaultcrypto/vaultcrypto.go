// Package vaultcrypto implements the cipher adapter for stored credentials.
//
// A user-supplied passphrase protects each credential individually: every
// Encrypt call draws a fresh PBKDF2 salt and GCM nonce, so the same
// passphrase never reuses key material across records. All operations are
// pure (no I/O beyond crypto/rand) and safe for concurrent use.
package vaultcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version prefixes every stored ciphertext so the scheme can evolve.
	Version = "v1"

	KeyLen     = 32
	SaltLen    = 16
	NonceLen   = 12
	GCMTagLen  = 16
	Iterations = 600_000

	// AAD binds every ciphertext to this scheme; a blob re-labelled under a
	// different context fails authentication.
	AAD = "passkeep/vault/" + Version

	// separator between the version tag and the base64url fields. The
	// base64url alphabet includes '-' and '_', so '.' is unambiguous.
	separator = "."

	bcryptCost = 10
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrEmptyPlaintext    = errors.New("plaintext must not be empty")
	ErrEmptyKey          = errors.New("encryption key must not be empty")
)

// randReader is swapped out in tests to exercise entropy failures.
var randReader io.Reader = rand.Reader

func readRand(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return buf, nil
}

func b64Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func b64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func deriveKey(key string, salt []byte) []byte {
	return pbkdf2.Key([]byte(key), salt, Iterations, KeyLen, sha256.New)
}

// Encrypt seals plaintext under a key derived from the passphrase and returns
// the printable serialized form "v1.<salt>.<nonce>.<ciphertext>".
func Encrypt(plaintext, key string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	if key == "" {
		return "", ErrEmptyKey
	}

	salt, err := readRand(SaltLen)
	if err != nil {
		return "", err
	}
	nonce, err := readRand(NonceLen)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(deriveKey(key, salt))
	if err != nil {
		return "", err
	}
	ct := gcm.Seal(nil, nonce, []byte(plaintext), []byte(AAD))

	return strings.Join([]string{Version, b64Encode(salt), b64Encode(nonce), b64Encode(ct)}, separator), nil
}

// Decrypt opens a serialized ciphertext with the passphrase. A wrong key
// fails the GCM tag check and returns ErrInvalidKey; it never yields garbage.
func Decrypt(ciphertext, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	salt, nonce, ct, err := parse(ciphertext)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(deriveKey(key, salt))
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ct, []byte(AAD))
	if err != nil {
		// GCM does not distinguish a wrong key from a tampered blob; the
		// stored blob is trusted, so report the key.
		return "", ErrInvalidKey
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM: %w", err)
	}
	return gcm, nil
}

func parse(ciphertext string) (salt, nonce, ct []byte, err error) {
	parts := strings.Split(ciphertext, separator)
	if len(parts) != 4 {
		return nil, nil, nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrInvalidCiphertext, len(parts))
	}
	if parts[0] != Version {
		return nil, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidCiphertext, parts[0])
	}

	salt, err = b64Decode(parts[1])
	if err != nil || len(salt) != SaltLen {
		return nil, nil, nil, fmt.Errorf("%w: salt must be %d bytes", ErrInvalidCiphertext, SaltLen)
	}
	nonce, err = b64Decode(parts[2])
	if err != nil || len(nonce) != NonceLen {
		return nil, nil, nil, fmt.Errorf("%w: nonce must be %d bytes", ErrInvalidCiphertext, NonceLen)
	}
	ct, err = b64Decode(parts[3])
	if err != nil || len(ct) < GCMTagLen {
		return nil, nil, nil, fmt.Errorf("%w: ciphertext too short (need at least GCM tag)", ErrInvalidCiphertext)
	}

	return salt, nonce, ct, nil
}

// HashKeyVerifier returns a bcrypt hash of the passphrase, stored against the
// account so a client can validate its key without a trial decryption. The
// raw passphrase is never persisted.
func HashKeyVerifier(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash key verifier: %w", err)
	}
	return string(h), nil
}

// CheckKeyVerifier reports whether the passphrase matches a stored verifier.
func CheckKeyVerifier(verifier, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(verifier), []byte(key)) == nil
}
