package oidc

import (
	"context"
	"strings"
	"time"
)

// Config holds OIDC issuer configuration for token validation.
type Config struct {
	// Issuer is the token issuer URL (e.g., "https://id.example.com/").
	Issuer string

	// Audience is the API identifier(s) to validate against. Empty means
	// skip the audience check.
	Audience []string

	// JWKSURL overrides the JWKS endpoint (optional).
	// Default: "{Issuer}.well-known/jwks.json".
	JWKSURL string

	// RefreshInterval is how often to refresh JWKS keys in the background.
	// Default: 5 minutes.
	RefreshInterval time.Duration

	// ClaimsMapper customizes claim mapping (optional).
	ClaimsMapper ClaimsMapper

	// ContextFunc provides a context for JWKS refresh and validation.
	// Default: context.Background.
	ContextFunc func() context.Context
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(issuer string, audience []string) Config {
	return Config{
		Issuer:          issuer,
		Audience:        audience,
		RefreshInterval: 5 * time.Minute,
	}
}

func (c Config) issuerURL() string {
	return normalizeIssuer(c.Issuer)
}

func (c Config) jwksEndpoint() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}

	issuer := c.issuerURL()
	if issuer == "" {
		return ""
	}

	return issuer + ".well-known/jwks.json"
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return issuer
	}
	if strings.HasSuffix(issuer, "/") {
		return issuer
	}
	return issuer + "/"
}
