package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var _ Session = &SessionObject{}
var _ RoleCapableSession = &SessionObject{}

type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Audience       []string       `json:"audience,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string       { return s.UserID }
func (s *SessionObject) GetAudience() []string   { return s.Audience }
func (s *SessionObject) GetIssuer() string       { return s.Issuer }
func (s *SessionObject) GetIssuedAt() *time.Time { return s.IssuedAt }
func (s *SessionObject) GetData() map[string]any { return s.Data }

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

// resourceRole looks up a per-resource grant in the session data. The
// "resources" entry may be typed or raw depending on whether the session
// came from structured claims or a decoded JSON payload.
func (s *SessionObject) resourceRole(resource string) (UserRole, bool) {
	if s.Data == nil {
		return "", false
	}

	switch roleMap := s.Data["resources"].(type) {
	case map[string]any:
		if raw, ok := roleMap[resource]; ok {
			if role, ok := raw.(string); ok {
				return UserRole(role), true
			}
		}
	case map[string]string:
		if role, ok := roleMap[resource]; ok {
			return UserRole(role), true
		}
	}

	return "", false
}

// effectiveRole resolves the role used for permission checks on a resource:
// the grant when present, the global role otherwise.
func (s *SessionObject) effectiveRole(resource string) UserRole {
	if role, ok := s.resourceRole(resource); ok {
		return role
	}
	return s.getGlobalRole()
}

// CanRead checks if the role can read a specific resource
func (s *SessionObject) CanRead(resource string) bool {
	return s.effectiveRole(resource).CanRead()
}

// CanEdit checks if the role can edit a specific resource
func (s *SessionObject) CanEdit(resource string) bool {
	return s.effectiveRole(resource).CanEdit()
}

// CanCreate checks if the role can create a specific resource
func (s *SessionObject) CanCreate(resource string) bool {
	return s.effectiveRole(resource).CanCreate()
}

// CanDelete checks if the role can delete a specific resource
func (s *SessionObject) CanDelete(resource string) bool {
	return s.effectiveRole(resource).CanDelete()
}

// HasRole checks if the user has a specific role
func (s *SessionObject) HasRole(role string) bool {
	return string(s.getGlobalRole()) == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (s *SessionObject) IsAtLeast(minRole UserRole) bool {
	return s.getGlobalRole().IsAtLeast(minRole)
}

// getGlobalRole reads the global role from session data. Missing or
// unparseable roles fall back to student, the least privileged role.
func (s *SessionObject) getGlobalRole() UserRole {
	if s.Data == nil {
		return RoleStudent
	}
	roleStr, ok := s.Data["role"].(string)
	if !ok {
		return RoleStudent
	}
	role, valid := ParseRole(roleStr)
	if !valid {
		return RoleStudent
	}
	return role
}

// TODO: gate behind a development flag
func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s aud=%v iss=%s iat=%s data=%v",
		s.UserID,
		s.Audience,
		s.Issuer,
		issuedAt,
		s.Data,
	)
}

// sessionFromAuthClaims creates a SessionObject from structured AuthClaims
func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToParseData
	}

	data := map[string]any{"role": claims.Role()}
	if claims.Username() != "" {
		data["username"] = claims.Username()
	}

	var audience []string
	issuer := claims.Subject()
	if jwtClaims, ok := claims.(*JWTClaims); ok {
		if len(jwtClaims.Resources) > 0 {
			data["resources"] = jwtClaims.Resources
		}
		if len(jwtClaims.Metadata) > 0 {
			data["metadata"] = jwtClaims.Metadata
		}
		audience = append(audience, jwtClaims.RegisteredClaims.Audience...)
		if jwtClaims.RegisteredClaims.Issuer != "" {
			issuer = jwtClaims.RegisteredClaims.Issuer
		}
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.UserID(),
		Audience:       audience,
		Issuer:         issuer,
		Data:           data,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}

// sessionFromClaims builds a SessionObject out of raw JWT map claims. It
// supports tokens stored by middleware that only parsed, not typed, the
// payload.
func sessionFromClaims(claims jwt.Claims) (*SessionObject, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	eat, err := claims.GetExpirationTime()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	session := &SessionObject{
		UserID:   sub,
		Audience: aud,
		Issuer:   iss,
	}
	if iat != nil {
		session.IssuedAt = &iat.Time
	}
	if eat != nil {
		session.ExpirationDate = &eat.Time
	}

	if mp, ok := claims.(jwt.MapClaims); ok {
		session.Data = dataFromMapClaims(mp)
	}

	return session, nil
}

func dataFromMapClaims(mp jwt.MapClaims) map[string]any {
	data := make(map[string]any)
	if role, ok := mp["role"].(string); ok {
		data["role"] = role
	}
	if uname, ok := mp["uname"].(string); ok {
		data["username"] = uname
	}
	if res, ok := mp["res"].(map[string]any); ok {
		data["resources"] = res
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
