package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}
var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// ActorContext is the request-scoped view of the authenticated actor that
// downstream course and admin handlers consume.
type ActorContext struct {
	ActorID       string
	Username      string
	Role          string
	ResourceRoles map[string]string
}

// ActorContextFromClaims projects AuthClaims into an ActorContext.
func ActorContextFromClaims(claims AuthClaims) *ActorContext {
	if claims == nil {
		return nil
	}

	actor := &ActorContext{
		ActorID:  claims.UserID(),
		Username: claims.Username(),
		Role:     claims.Role(),
	}

	if jwtClaims, ok := claims.(*JWTClaims); ok && len(jwtClaims.Resources) > 0 {
		actor.ResourceRoles = make(map[string]string, len(jwtClaims.Resources))
		for k, v := range jwtClaims.Resources {
			actor.ResourceRoles[k] = v
		}
	}

	return actor
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithActorContext sets the ActorContext in the given context
func WithActorContext(r context.Context, actor *ActorContext) context.Context {
	return context.WithValue(r, actorCtxKey, actor)
}

// GetActorContext extracts the ActorContext from the standard context
func GetActorContext(ctx context.Context) (*ActorContext, bool) {
	raw, ok := ctx.Value(actorCtxKey).(*ActorContext)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by JWT middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// Can is a convenience function to check permissions directly from the standard context
// Use CanFromRouter for router-based contexts.
func Can(ctx context.Context, resource, permission string) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}

	return checkPermission(claims, resource, permission)
}

// CanFromRouter is a convenience function to check permissions directly from the router context
func CanFromRouter(ctx router.Context, resource, permission string) bool {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return false
	}

	return checkPermission(claims, resource, permission)
}

// CanAccessCourse reports whether the calling actor holds a grant for the
// course. Admin tokens always pass; everyone else needs the approval gate
// to have placed the course in their resource map.
func CanAccessCourse(ctx context.Context, courseID string) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}

	if jwtClaims, ok := claims.(*JWTClaims); ok {
		return jwtClaims.CanAccessCourse(courseID)
	}

	return claims.HasRole(string(RoleAdmin))
}

func checkPermission(claims AuthClaims, resource, permission string) bool {
	switch permission {
	case "read":
		return claims.CanRead(resource)
	case "edit":
		return claims.CanEdit(resource)
	case "create":
		return claims.CanCreate(resource)
	case "delete":
		return claims.CanDelete(resource)
	default:
		return false
	}
}
