package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// DefaultTokenExpiration is the session token lifetime in hours. Tokens
// are stateless; rotating the signing key is the only way to revoke them.
const DefaultTokenExpiration = 24 * 7

// TokenServiceImpl signs and validates HS256 session tokens.
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService builds a TokenService. A non-positive expiration falls
// back to DefaultTokenExpiration.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	if tokenExpiration <= 0 {
		tokenExpiration = DefaultTokenExpiration
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
	}
}

// Generate mints a session token for the identity, embedding per-course
// roles in the resources claim.
func (ts *TokenServiceImpl) Generate(identity Identity, resourceRoles map[string]string) (string, error) {
	now := time.Now()
	lifetime := time.Duration(ts.tokenExpiration) * time.Hour

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		UID:       identity.ID(),
		Uname:     identity.Username(),
		UserRole:  identity.Role(),
		Resources: resourceRoles,
	}
	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs pre-built claims with the configured key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Validate parses a raw token, enforcing HMAC signing plus the configured
// issuer and audience, and returns the structured claims.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	var opts []jwt.ParserOption
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		opts = append(opts, jwt.WithAudience(ts.audience...))
	}

	keyfunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, keyfunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode or validate claims")
		return nil, ErrUnableToDecodeSession
	}
	return claims, nil
}

func (ts *TokenServiceImpl) tokenDefaults() tokenDefaults {
	return tokenDefaults{
		issuer:   ts.issuer,
		audience: append(jwt.ClaimStrings(nil), ts.audience...),
		ttl:      time.Duration(ts.tokenExpiration) * time.Hour,
	}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims != nil && claims.ID == "" {
		claims.ID = newTokenID()
	}
}
