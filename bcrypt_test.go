package auth_test

import (
	"testing"

	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := auth.HashPassword("Trig0nometry!2026")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NoError(t, auth.ComparePasswordAndHash("Trig0nometry!2026", hash))
	assert.Error(t, auth.ComparePasswordAndHash("trig0nometry!2026", hash))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	hash, err := auth.HashPassword("")
	assert.ErrorIs(t, err, auth.ErrNoEmptyString)
	assert.Empty(t, hash)
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := auth.HashPassword("Trig0nometry!2026")
	require.NoError(t, err)

	t.Run("mismatch returns sentinel", func(t *testing.T) {
		err := auth.ComparePasswordAndHash("guess", hash)
		assert.Equal(t, auth.ErrMismatchedHashAndPassword, err)
	})

	t.Run("garbage hash returns bcrypt error", func(t *testing.T) {
		err := auth.ComparePasswordAndHash("Trig0nometry!2026", "not-a-bcrypt-hash")
		assert.Error(t, err)
		assert.NotEqual(t, auth.ErrMismatchedHashAndPassword, err)
	})
}

func TestRandomPasswordHash(t *testing.T) {
	first := auth.RandomPasswordHash()
	second := auth.RandomPasswordHash()

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}
