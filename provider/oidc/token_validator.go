package oidc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/klasshub/go-lms-auth"
)

// TokenValidator validates issuer-signed JWTs using the issuer's JWKS.
type TokenValidator struct {
	config       Config
	issuer       string
	jwks         *keyfunc.JWKS
	claimsMapper ClaimsMapper
}

// NewTokenValidator creates a token validator for the configured issuer.
// It fetches the JWKS eagerly and keeps it fresh in the background until
// Close is called.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	issuer := cfg.issuerURL()
	if issuer == "" {
		return nil, fmt.Errorf("oidc: issuer is required")
	}

	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc: invalid issuer URL: %w", err)
	}
	if issuerURL.Scheme == "" || issuerURL.Host == "" {
		return nil, fmt.Errorf("oidc: invalid issuer URL: %s", issuer)
	}

	refresh := cfg.RefreshInterval
	if refresh == 0 {
		refresh = 5 * time.Minute
	}

	ctx := context.Background()
	if cfg.ContextFunc != nil {
		ctx = cfg.ContextFunc()
	}

	jwks, err := keyfunc.Get(cfg.jwksEndpoint(), keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   refresh,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to fetch JWKS: %w", err)
	}

	mapper := cfg.ClaimsMapper
	if mapper == nil {
		mapper = &OIDCClaimsMapper{}
	}

	return &TokenValidator{
		config:       cfg,
		issuer:       issuer,
		jwks:         jwks,
		claimsMapper: mapper,
	}, nil
}

// Validate implements auth.TokenValidator.
func (v *TokenValidator) Validate(tokenString string) (auth.AuthClaims, error) {
	ctx := context.Background()
	if v.config.ContextFunc != nil {
		ctx = v.config.ContextFunc()
	}

	claims := &IDTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}

	return v.claimsMapper.Map(ctx, claims)
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func (v *TokenValidator) checkAudience(claims *IDTokenClaims) error {
	if len(v.config.Audience) == 0 {
		return nil
	}

	for _, want := range v.config.Audience {
		for _, got := range claims.Audience {
			if want == got {
				return nil
			}
		}
	}

	return normalizeValidationError(jwt.ErrTokenInvalidAudience)
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := auth.ErrTokenMalformed.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = auth.ErrTokenExpired.Clone()
	}

	if clone == nil {
		return err
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "oidc",
		"cause":    err.Error(),
	})
}
