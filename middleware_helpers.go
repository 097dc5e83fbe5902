package auth

import (
	"context"

	"github.com/klasshub/go-lms-auth/middleware/jwtware"
)

// ValidationListener re-exports the jwtware listener type so callers wiring
// middleware do not need a second import.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter bridges jwtware claims into the request context:
// it stores the claims plus a derived actor context so downstream guards
// can read both without touching the middleware package.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}

	enriched := WithClaimsContext(c, authClaims)
	actor := ActorContextFromClaims(authClaims)
	if actor == nil {
		return enriched
	}
	return WithActorContext(enriched, actor)
}

// RegisterValidationListeners appends listeners to the middleware config,
// tolerating a nil config and an empty listener list.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
