package auth_test

import (
	"errors"
	"testing"

	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingValidator struct {
	calls  int
	claims auth.AuthClaims
	err    error
}

func (v *countingValidator) Validate(string) (auth.AuthClaims, error) {
	v.calls++
	return v.claims, v.err
}

func TestMultiTokenValidator(t *testing.T) {
	malformed := func() error { return errors.New("token is malformed") }

	t.Run("first success short-circuits", func(t *testing.T) {
		claims := &auth.JWTClaims{}
		local := &countingValidator{claims: claims}
		remote := &countingValidator{claims: &auth.JWTClaims{}}

		result, err := auth.NewMultiTokenValidator(local, remote).Validate("raw")
		require.NoError(t, err)
		assert.Same(t, claims, result)
		assert.Equal(t, 1, local.calls)
		assert.Equal(t, 0, remote.calls)
	})

	t.Run("malformed falls through to next validator", func(t *testing.T) {
		claims := &auth.JWTClaims{}
		local := &countingValidator{err: malformed()}
		remote := &countingValidator{claims: claims}

		result, err := auth.NewMultiTokenValidator(local, remote).Validate("raw")
		require.NoError(t, err)
		assert.Same(t, claims, result)
		assert.Equal(t, 1, remote.calls)
	})

	t.Run("expired token stops the chain", func(t *testing.T) {
		local := &countingValidator{err: auth.ErrTokenExpired}
		remote := &countingValidator{claims: &auth.JWTClaims{}}

		result, err := auth.NewMultiTokenValidator(local, remote).Validate("raw")
		assert.Nil(t, result)
		assert.True(t, auth.IsTokenExpiredError(err))
		assert.Equal(t, 0, remote.calls)
	})

	t.Run("all malformed reports malformed", func(t *testing.T) {
		local := &countingValidator{err: malformed()}
		remote := &countingValidator{err: errors.New("missing or malformed JWT")}

		result, err := auth.NewMultiTokenValidator(local, remote).Validate("raw")
		assert.Nil(t, result)
		assert.True(t, auth.IsMalformedError(err))
		assert.Equal(t, 1, local.calls)
		assert.Equal(t, 1, remote.calls)
	})

	t.Run("no validators", func(t *testing.T) {
		result, err := auth.NewMultiTokenValidator(nil, nil).Validate("raw")
		assert.Nil(t, result)
		assert.True(t, auth.IsMalformedError(err))
	})
}
