package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	t.Run("accepts the right password", func(t *testing.T) {
		require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	})

	t.Run("rejects the wrong password", func(t *testing.T) {
		require.ErrorIs(t, VerifyPassword("wrong", hash), ErrPasswordMismatch)
	})

	t.Run("rejects a mangled hash", func(t *testing.T) {
		require.Error(t, VerifyPassword("correct horse battery staple", "$argon2id$broken"))
	})

	t.Run("hashes are salted", func(t *testing.T) {
		other, err := HashPassword("correct horse battery staple")
		require.NoError(t, err)
		require.NotEqual(t, hash, other)
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t, Fingerprint("a", "b"), Fingerprint("a", "b"))
	})

	t.Run("order and boundaries matter", func(t *testing.T) {
		require.NotEqual(t, Fingerprint("a", "b"), Fingerprint("b", "a"))
		require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	})
}
