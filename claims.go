package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents structured JWT claims with enhanced permission checking
type AuthClaims interface {
	Subject() string
	UserID() string
	Username() string
	Role() string
	CanRead(resource string) bool
	CanEdit(resource string) bool
	CanCreate(resource string) bool
	CanDelete(resource string) bool
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string            `json:"uid,omitempty"`
	Uname     string            `json:"uname,omitempty"`
	UserRole  string            `json:"role,omitempty"`
	Resources map[string]string `json:"res,omitempty"`      // course/resource -> role mapping
	Metadata  map[string]any    `json:"metadata,omitempty"` // extension payload
	Scopes    []string          `json:"scopes,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string { return c.RegisteredClaims.Subject }

// Username returns the username claim
func (c *JWTClaims) Username() string { return c.Uname }

// Role returns the global role
func (c *JWTClaims) Role() string { return c.UserRole }

// UserID returns the user ID, falling back to the subject for tokens
// minted before uid was a dedicated claim.
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// effectiveRole picks the resource grant when one exists, the global role
// otherwise.
func (c *JWTClaims) effectiveRole(resource string) UserRole {
	if granted, ok := c.Resources[resource]; ok {
		return UserRole(granted)
	}
	return UserRole(c.UserRole)
}

// CanRead checks if the user can read a specific resource
func (c *JWTClaims) CanRead(resource string) bool {
	return c.effectiveRole(resource).CanRead()
}

// CanEdit checks if the user can edit a specific resource
func (c *JWTClaims) CanEdit(resource string) bool {
	return c.effectiveRole(resource).CanEdit()
}

// CanCreate checks if the user can create a specific resource
func (c *JWTClaims) CanCreate(resource string) bool {
	return c.effectiveRole(resource).CanCreate()
}

// CanDelete checks if the user can delete a specific resource
func (c *JWTClaims) CanDelete(resource string) bool {
	return c.effectiveRole(resource).CanDelete()
}

// CanAccessCourse reports whether the claims carry a grant for the course.
// Admins can access every course; students only the ones the approval
// gate granted.
func (c *JWTClaims) CanAccessCourse(courseID string) bool {
	if UserRole(c.UserRole) == RoleAdmin {
		return true
	}
	_, granted := c.Resources[courseID]
	return granted
}

// ResourceRoles exposes resource-specific roles for optional context enrichment.
func (c *JWTClaims) ResourceRoles() map[string]string {
	return c.Resources
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *JWTClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// HasRole checks if the user has a specific role (either global or for any resource)
func (c *JWTClaims) HasRole(role string) bool {
	if c.UserRole == role {
		return true
	}
	for _, granted := range c.Resources {
		if granted == role {
			return true
		}
	}
	return false
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if exp := c.RegisteredClaims.ExpiresAt; exp != nil {
		return exp.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if iat := c.RegisteredClaims.IssuedAt; iat != nil {
		return iat.Time
	}
	return time.Time{}
}
