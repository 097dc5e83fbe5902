package social

import (
	"context"
	"time"
)

// SocialProvider is implemented by each OAuth2 identity provider the
// bridge can talk to.
type SocialProvider interface {
	// Name returns the provider identifier (e.g., "github", "google").
	Name() string

	// AuthCodeURL builds the authorization redirect URL. The state
	// parameter must round-trip untouched for CSRF protection.
	AuthCodeURL(state string, opts ...AuthCodeOption) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error)

	// UserInfo fetches the user's profile using the access token.
	UserInfo(ctx context.Context, token *Token) (*SocialProfile, error)

	// ValidateToken checks if a token is still valid (optional).
	ValidateToken(ctx context.Context, token *Token) error

	// RefreshToken refreshes an expired access token (if supported).
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

// Token is a normalized OAuth2 token response.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	Raw          map[string]any
}

// SocialProfile is the provider-agnostic view of an external identity.
type SocialProfile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	Name           string
	FirstName      string
	LastName       string
	Username       string
	AvatarURL      string
	ProfileURL     string
	Raw            map[string]any
}

// AuthCodeConfig carries the resolved authorization-URL options.
type AuthCodeConfig struct {
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
}

// AuthCodeOption configures the authorization URL.
type AuthCodeOption func(*AuthCodeConfig)

// WithScopes appends scopes to the auth request.
func WithScopes(scopes ...string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Scopes = append(c.Scopes, scopes...)
	}
}

// WithPKCE enables PKCE with the given code challenge.
func WithPKCE(codeChallenge, method string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.CodeChallenge = codeChallenge
		c.CodeChallengeMethod = method
	}
}

// WithPrompt sets the prompt parameter (e.g., "consent", "select_account").
func WithPrompt(prompt string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Prompt = prompt
	}
}

// ExchangeConfig carries the resolved token-exchange options.
type ExchangeConfig struct {
	CodeVerifier string
}

// ExchangeOption configures the token exchange.
type ExchangeOption func(*ExchangeConfig)

// WithCodeVerifier sets the PKCE code verifier for token exchange.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.CodeVerifier = verifier
	}
}

// ApplyAuthCodeOptions resolves AuthCodeOption values on top of the
// provider's base scopes.
func ApplyAuthCodeOptions(scopes []string, opts ...AuthCodeOption) AuthCodeConfig {
	cfg := AuthCodeConfig{Scopes: append([]string(nil), scopes...)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ApplyExchangeOptions resolves ExchangeOption values.
func ApplyExchangeOptions(opts ...ExchangeOption) ExchangeConfig {
	cfg := ExchangeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
