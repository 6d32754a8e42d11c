package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasher(t *testing.T) {
	t.Parallel()

	hasher := BcryptHasher{}

	t.Run("hash and compare", func(t *testing.T) {
		hash, err := hasher.Hash("correct horse battery staple")
		require.NoError(t, err)

		assert.NotEqual(t, "correct horse battery staple", hash)
		assert.NoError(t, hasher.Compare(hash, "correct horse battery staple"))
	})

	t.Run("wrong password", func(t *testing.T) {
		hash, err := hasher.Hash("correct horse battery staple")
		require.NoError(t, err)

		assert.Error(t, hasher.Compare(hash, "wrong horse"))
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		first, err := hasher.Hash("password-one")
		require.NoError(t, err)
		second, err := hasher.Hash("password-one")
		require.NoError(t, err)

		// bcrypt salts every hash
		assert.NotEqual(t, first, second)
	})

	t.Run("long password is not truncated", func(t *testing.T) {
		// bcrypt itself caps input at 72 bytes; the sha256 pre-hash must make
		// passwords differing only beyond that limit distinguishable
		long := strings.Repeat("a", 80)
		hash, err := hasher.Hash(long)
		require.NoError(t, err)

		assert.NoError(t, hasher.Compare(hash, long))
		assert.Error(t, hasher.Compare(hash, long+"b"))
	})
}
