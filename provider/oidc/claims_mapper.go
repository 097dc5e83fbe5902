package oidc

import (
	"context"
	"strings"

	auth "github.com/klasshub/go-lms-auth"
)

// ClaimsMapper transforms issuer claims into local JWTClaims.
type ClaimsMapper interface {
	// Map converts issuer-specific claims to auth.JWTClaims.
	// Implementations should populate RegisteredClaims, UID, UserRole,
	// Resources, and Metadata so downstream guards keep working.
	Map(ctx context.Context, externalClaims any) (*auth.JWTClaims, error)
}

// OIDCClaimsMapper maps issuer claims onto local sessions. Course roles
// come from a dedicated claim when the issuer emits one, otherwise they
// are derived from "course:<id>:<role>" permission entries.
type OIDCClaimsMapper struct {
	Namespace string

	DefaultRole         string
	CourseRoleExtractor func(claims *IDTokenClaims) map[string]string
	RoleClaimKey        string
	PermissionsClaimKey string
	CourseRolesClaimKey string
}

// Map implements ClaimsMapper.
func (m *OIDCClaimsMapper) Map(ctx context.Context, externalClaims any) (*auth.JWTClaims, error) {
	idClaims, ok := externalClaims.(*IDTokenClaims)
	if !ok || idClaims == nil {
		return nil, auth.ErrUnableToMapClaims
	}

	role := m.extractRole(idClaims)
	courseRoles := m.extractCourseRoles(idClaims)
	permissions := m.permissionsFromClaims(idClaims)

	metadata := map[string]any{}
	if idClaims.Email != "" {
		metadata["email"] = idClaims.Email
	}
	if idClaims.EmailVerified {
		metadata["email_verified"] = idClaims.EmailVerified
	}
	if idClaims.Name != "" {
		metadata["name"] = idClaims.Name
	}
	if idClaims.Nickname != "" {
		metadata["nickname"] = idClaims.Nickname
	}
	if idClaims.Picture != "" {
		metadata["picture"] = idClaims.Picture
	}
	if len(permissions) > 0 {
		metadata["permissions"] = permissions
	}
	if idClaims.Scope != "" {
		metadata["scope"] = idClaims.Scope
	}
	if idClaims.RegisteredClaims.Subject != "" {
		metadata["oidc_sub"] = idClaims.RegisteredClaims.Subject
	}

	claims := &auth.JWTClaims{
		RegisteredClaims: idClaims.RegisteredClaims,
		UID:              idClaims.RegisteredClaims.Subject,
		Uname:            m.extractUsername(idClaims),
		UserRole:         role,
		Resources:        courseRoles,
		Metadata:         metadata,
	}

	return claims, nil
}

func (m *OIDCClaimsMapper) extractRole(claims *IDTokenClaims) string {
	if raw := m.claimString(claims, m.roleClaimKeys()...); raw != "" {
		if parsed, ok := auth.ParseRole(raw); ok {
			return string(parsed)
		}
	}

	if m.DefaultRole != "" {
		return m.DefaultRole
	}
	return string(auth.RoleStudent)
}

func (m *OIDCClaimsMapper) extractUsername(claims *IDTokenClaims) string {
	if claims.Nickname != "" {
		return claims.Nickname
	}
	if claims.Email != "" {
		return strings.SplitN(claims.Email, "@", 2)[0]
	}
	return ""
}

func (m *OIDCClaimsMapper) extractCourseRoles(claims *IDTokenClaims) map[string]string {
	if m.CourseRoleExtractor != nil {
		return m.CourseRoleExtractor(claims)
	}

	courseRoles := m.claimMap(claims, m.courseRoleClaimKeys()...)
	if len(courseRoles) > 0 {
		return courseRoles
	}

	if len(claims.CourseRoles) > 0 {
		return claims.CourseRoles
	}

	courseRoles = make(map[string]string)
	for _, perm := range m.permissionsFromClaims(claims) {
		parts := strings.SplitN(perm, ":", 3)
		if len(parts) != 3 || parts[0] != "course" {
			continue
		}
		courseID := strings.TrimSpace(parts[1])
		role := strings.TrimSpace(parts[2])
		if courseID == "" || role == "" {
			continue
		}
		courseRoles[courseID] = role
	}

	if len(courseRoles) == 0 {
		return nil
	}

	return courseRoles
}

func (m *OIDCClaimsMapper) permissionsFromClaims(claims *IDTokenClaims) []string {
	if claims == nil {
		return nil
	}

	if perms := m.claimSlice(claims, m.permissionsClaimKeys()...); len(perms) > 0 {
		return perms
	}

	if len(claims.Permissions) > 0 {
		return append([]string(nil), claims.Permissions...)
	}

	if claims.Scope != "" {
		return strings.Fields(claims.Scope)
	}

	return nil
}

func (m *OIDCClaimsMapper) roleClaimKeys() []string {
	return uniqueKeys(
		m.RoleClaimKey,
		m.namespacedKey("role"),
		"role",
	)
}

func (m *OIDCClaimsMapper) permissionsClaimKeys() []string {
	return uniqueKeys(
		m.PermissionsClaimKey,
		m.namespacedKey("permissions"),
		"permissions",
	)
}

func (m *OIDCClaimsMapper) courseRoleClaimKeys() []string {
	return uniqueKeys(
		m.CourseRolesClaimKey,
		m.namespacedKey("course_roles"),
		"course_roles",
	)
}

func (m *OIDCClaimsMapper) claimString(claims *IDTokenClaims, keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val, ok := claimValue(claims, key); ok {
			if str := stringFromAny(val); str != "" {
				return str
			}
		}
	}
	return ""
}

func (m *OIDCClaimsMapper) claimSlice(claims *IDTokenClaims, keys ...string) []string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val, ok := claimValue(claims, key); ok {
			if slice := stringSliceFromAny(val); len(slice) > 0 {
				return slice
			}
		}
	}
	return nil
}

func (m *OIDCClaimsMapper) claimMap(claims *IDTokenClaims, keys ...string) map[string]string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val, ok := claimValue(claims, key); ok {
			if mapped := mapStringStringFromAny(val); len(mapped) > 0 {
				return mapped
			}
		}
	}
	return nil
}

func (m *OIDCClaimsMapper) namespacePrefix() string {
	namespace := strings.TrimSpace(m.Namespace)
	if namespace == "" {
		return ""
	}
	if strings.HasSuffix(namespace, "/") || strings.HasSuffix(namespace, ":") {
		return namespace
	}
	return namespace + "/"
}

func (m *OIDCClaimsMapper) namespacedKey(key string) string {
	if key == "" {
		return ""
	}
	prefix := m.namespacePrefix()
	if prefix == "" {
		return ""
	}
	return prefix + key
}

func claimValue(claims *IDTokenClaims, key string) (any, bool) {
	if claims == nil || key == "" {
		return nil, false
	}
	if claims.Raw != nil {
		if val, ok := claims.Raw[key]; ok {
			return val, true
		}
	}
	return nil, false
}

func stringFromAny(val any) string {
	switch typed := val.(type) {
	case string:
		return typed
	}
	return ""
}

func stringSliceFromAny(val any) []string {
	switch typed := val.(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, entry := range typed {
			if str, ok := entry.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if typed == "" {
			return nil
		}
		return []string{typed}
	}
	return nil
}

func mapStringStringFromAny(val any) map[string]string {
	switch typed := val.(type) {
	case map[string]string:
		out := make(map[string]string, len(typed))
		for key, value := range typed {
			out[key] = value
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(typed))
		for key, value := range typed {
			if str, ok := value.(string); ok {
				out[key] = str
			}
		}
		return out
	}
	return nil
}

func uniqueKeys(values ...string) []string {
	seen := map[string]struct{}{}
	keys := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		keys = append(keys, value)
	}
	return keys
}
