package vaultcrypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	ct, err := Encrypt("p@ss1", "master-key")
	require.NoError(t, err)
	require.NotEmpty(t, ct)
	assert.True(t, strings.HasPrefix(ct, Version+separator), "ciphertext carries the version tag")
	assert.NotContains(t, ct, "p@ss1")

	pt, err := Decrypt(ct, "master-key")
	require.NoError(t, err)
	assert.Equal(t, "p@ss1", pt)
}

func TestDecryptWrongKey(t *testing.T) {
	t.Parallel()

	ct, err := Encrypt("secret", "k1")
	require.NoError(t, err)

	_, err = Decrypt(ct, "k2")
	assert.ErrorIs(t, err, ErrInvalidKey)

	// A near-miss key must fail just as cleanly.
	_, err = Decrypt(ct, "k1 ")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptIsRandomized(t *testing.T) {
	t.Parallel()

	a, err := Encrypt("same", "key")
	require.NoError(t, err)
	b, err := Encrypt("same", "key")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "fresh salt and nonce per call")
}

func TestEncryptValidation(t *testing.T) {
	t.Parallel()

	_, err := Encrypt("", "key")
	assert.ErrorIs(t, err, ErrEmptyPlaintext)

	_, err = Encrypt("pt", "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Decrypt("v1.a.b.c", "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestDecryptMalformedCiphertext(t *testing.T) {
	t.Parallel()

	for _, ct := range []string{
		"",
		"garbage",
		"v1.onlytwo",
		"v2.AAAA.AAAA.AAAA",
		"v1.!!!.AAAA.AAAA",
		"v1.AAAA.AAAA.AAAA", // salt wrong length
	} {
		_, err := Decrypt(ct, "key")
		assert.ErrorIs(t, err, ErrInvalidCiphertext, "ciphertext %q", ct)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	t.Parallel()

	ct, err := Encrypt("secret", "key")
	require.NoError(t, err)

	// Flip the first character of the ciphertext field.
	parts := strings.Split(ct, separator)
	require.Len(t, parts, 4)
	field := []byte(parts[3])
	if field[0] == 'A' {
		field[0] = 'B'
	} else {
		field[0] = 'A'
	}
	parts[3] = string(field)

	_, err = Decrypt(strings.Join(parts, separator), "key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptRandFailure(t *testing.T) {
	// Not parallel: mutates package-level randReader.
	old := randReader
	randReader = failReader{}
	defer func() { randReader = old }()

	_, err := Encrypt("pt", "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read random bytes")
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestKeyVerifier(t *testing.T) {
	t.Parallel()

	v, err := HashKeyVerifier("master-key")
	require.NoError(t, err)
	assert.NotEqual(t, "master-key", v)

	assert.True(t, CheckKeyVerifier(v, "master-key"))
	assert.False(t, CheckKeyVerifier(v, "other-key"))

	_, err = HashKeyVerifier("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}
