package oidc

import (
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims holds the claims we read from issuer-signed tokens.
// Raw keeps the full decoded payload so mappers can reach namespaced
// custom claims the struct does not model.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Scope         string            `json:"scope"`
	Permissions   []string          `json:"permissions"`
	Email         string            `json:"email"`
	EmailVerified bool              `json:"email_verified"`
	Name          string            `json:"name"`
	Nickname      string            `json:"nickname"`
	Picture       string            `json:"picture"`
	CourseRoles   map[string]string `json:"course_roles"`
	Raw           map[string]any    `json:"-"`
}

// UnmarshalJSON captures both known and raw claims for custom mapping.
func (c *IDTokenClaims) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias IDTokenClaims
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*c = IDTokenClaims(decoded)
	c.Raw = raw
	return nil
}
