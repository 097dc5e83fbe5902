package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Logger is the minimal logging surface the package needs
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider hands out named loggers so each component can log under
// its own scope (e.g. "auth.verifier", "auth.user_provider").
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// ResolveLogger picks a scoped logger from the provider when one exists,
// otherwise it falls back to the explicit logger or the package default.
func ResolveLogger(name string, provider LoggerProvider, fallback Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return provider, l
		}
	}
	if fallback != nil {
		return provider, fallback
	}
	return provider, defLogger{}
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// RoleCapableSession is a Session that can answer permission questions.
type RoleCapableSession interface {
	Session
	RoleValidator
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	Impersonate(ctx context.Context, identifier string) (string, error)
	SessionFromToken(token string) (Session, error)
	IdentityFromSession(ctx context.Context, session Session) (Identity, error)
}

type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

type HTTPAuthenticator interface {
	Middleware
	Login(c router.Context, payload LoginPayload) (string, error)
	Logout(c router.Context)
	SetRedirect(c router.Context)
	GetRedirect(c router.Context, def ...string) string
	GetRedirectOrDefault(c router.Context) string
	MakeClientRouteAuthErrorHandler(optionalAuth bool) func(c router.Context, err error) error
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// StatusCarrier is an Identity that also exposes its lifecycle status.
type StatusCarrier interface {
	Status() UserStatus
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetExtendedTokenDuration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenService mints and validates session tokens
type TokenService interface {
	Generate(identity Identity, resourceRoles map[string]string) (string, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

// ResourceRoleProvider resolves resource-scoped roles for an identity.
// The course approval gate feeds this: each granted course shows up in
// the token's resource map.
type ResourceRoleProvider interface {
	FindResourceRoles(ctx context.Context, identity Identity) (map[string]string, error)
}

type noopResourceRoleProvider struct{}

func (noopResourceRoleProvider) FindResourceRoles(context.Context, Identity) (map[string]string, error) {
	return nil, nil
}

// Mailer dispatches transactional email. Implementations are expected to
// be fire-and-forget: the auth flows log failures but never block on them.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, to, subject, body string) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, to, subject, body string) error {
	if f == nil {
		return nil
	}
	return f(ctx, to, subject, body)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
