package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// ScopedTokenOptions controls MintScopedToken. Zero values fall back to
// the token service defaults (issuer, audience, TTL) and time.Now for
// the issuance time.
type ScopedTokenOptions struct {
	TTL      time.Duration
	Issuer   string
	Audience []string
	IssuedAt time.Time
	Scopes   []string
}

type tokenDefaults struct {
	issuer   string
	audience jwt.ClaimStrings
	ttl      time.Duration
}

type tokenDefaultsProvider interface {
	tokenDefaults() tokenDefaults
}

// MintScopedToken issues a short-lived JWT carrying optional scope claims.
// The provider bridge uses it between the callback and complete-setup so
// the browser holds a setup-scoped token rather than a full session.
func MintScopedToken(tokenService TokenService, identity Identity, resourceRoles map[string]string, opts ScopedTokenOptions) (string, time.Time, error) {
	if tokenService == nil {
		return "", time.Time{}, goerrors.New("token service is required", goerrors.CategoryBadInput)
	}
	if identity == nil {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	issuer, audience, ttl := opts.Issuer, opts.Audience, opts.TTL
	if dp, ok := tokenService.(tokenDefaultsProvider); ok {
		defaults := dp.tokenDefaults()
		if issuer == "" {
			issuer = defaults.issuer
		}
		if len(audience) == 0 {
			audience = defaults.audience
		}
		if ttl == 0 {
			ttl = defaults.ttl
		}
	}
	if ttl < 0 {
		return "", time.Time{}, goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput)
	}

	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	expiresAt := issuedAt.Add(ttl)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID(),
			Audience:  append(jwt.ClaimStrings(nil), audience...),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:       identity.ID(),
		Uname:     identity.Username(),
		UserRole:  identity.Role(),
		Resources: resourceRoles,
		Scopes:    append([]string(nil), opts.Scopes...),
	}
	ensureTokenID(&claims.RegisteredClaims)

	token, err := tokenService.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}
