package oidc

import (
	"context"
	"encoding/json"
	"testing"

	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeIDClaims(t *testing.T, payload string) *IDTokenClaims {
	t.Helper()

	claims := &IDTokenClaims{}
	require.NoError(t, json.Unmarshal([]byte(payload), claims))
	return claims
}

func TestClaimsMapper_CourseRolesFromPermissions(t *testing.T) {
	claims := decodeIDClaims(t, `{
		"sub": "oidc|user-1",
		"email": "student@example.com",
		"permissions": ["course:algebra-1:student", "course:geometry:student", "openid"]
	}`)

	mapper := &OIDCClaimsMapper{}
	mapped, err := mapper.Map(context.Background(), claims)
	require.NoError(t, err)

	assert.Equal(t, "oidc|user-1", mapped.UserID())
	assert.Equal(t, string(auth.RoleStudent), mapped.Role())
	assert.Equal(t, map[string]string{
		"algebra-1": "student",
		"geometry":  "student",
	}, mapped.Resources)
	assert.Equal(t, "student", mapped.Username())
}

func TestClaimsMapper_NamespacedClaimsWin(t *testing.T) {
	claims := decodeIDClaims(t, `{
		"sub": "oidc|user-2",
		"nickname": "prof",
		"https://klasshub.test/role": "admin",
		"https://klasshub.test/course_roles": {"course-calc": "admin"},
		"role": "student",
		"course_roles": {"course-calc": "student"}
	}`)

	mapper := &OIDCClaimsMapper{Namespace: "https://klasshub.test/"}
	mapped, err := mapper.Map(context.Background(), claims)
	require.NoError(t, err)

	assert.Equal(t, string(auth.RoleAdmin), mapped.Role())
	assert.Equal(t, map[string]string{"course-calc": "admin"}, mapped.Resources)
	assert.Equal(t, "prof", mapped.Username())
}

func TestClaimsMapper_UnknownRoleFallsBack(t *testing.T) {
	claims := decodeIDClaims(t, `{
		"sub": "oidc|user-3",
		"role": "superuser"
	}`)

	mapper := &OIDCClaimsMapper{}
	mapped, err := mapper.Map(context.Background(), claims)
	require.NoError(t, err)

	assert.Equal(t, string(auth.RoleStudent), mapped.Role())
}

func TestClaimsMapper_CustomExtractor(t *testing.T) {
	claims := decodeIDClaims(t, `{"sub": "oidc|user-4"}`)

	mapper := &OIDCClaimsMapper{
		CourseRoleExtractor: func(claims *IDTokenClaims) map[string]string {
			return map[string]string{"course-custom": "student"}
		},
	}
	mapped, err := mapper.Map(context.Background(), claims)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"course-custom": "student"}, mapped.Resources)
}

func TestClaimsMapper_RejectsForeignClaims(t *testing.T) {
	mapper := &OIDCClaimsMapper{}
	_, err := mapper.Map(context.Background(), struct{}{})
	require.ErrorIs(t, err, auth.ErrUnableToMapClaims)
}
