package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klasshub/go-lms-auth/social"
)

const providerName = "github"

const (
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// Provider implements social.SocialProvider for GitHub.
type Provider struct {
	config     Config
	httpClient *http.Client
}

// New creates a new GitHub provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{config: cfg, httpClient: cfg.HTTPClient}
}

// Name implements social.SocialProvider.
func (p *Provider) Name() string { return providerName }

// AuthCodeURL implements social.SocialProvider.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(p.config.Scopes, opts...)
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	params := url.Values{}
	params.Set("client_id", p.config.ClientID)
	params.Set("redirect_uri", p.config.CallbackURL)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)

	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params.Set("code_challenge", cfg.CodeChallenge)
		params.Set("code_challenge_method", method)
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements social.SocialProvider.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	form := url.Values{}
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", p.config.CallbackURL)
	if cfg.CodeVerifier != "" {
		form.Set("code_verifier", cfg.CodeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload tokenPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newProviderError("exchange", resp.StatusCode, "invalid_response", "failed to decode token response", err, nil)
	}

	// GitHub answers 200 even for OAuth errors, so the error field has
	// to be checked regardless of status.
	if resp.StatusCode != http.StatusOK || payload.Error != "" {
		return nil, newProviderError("exchange", resp.StatusCode, payload.Error, payload.ErrorDesc, nil, payload.errorMetadata())
	}
	if payload.AccessToken == "" {
		return nil, newProviderError("exchange", resp.StatusCode, "missing_access_token", "missing access token", nil, nil)
	}

	return &social.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
		Scopes:      scopeList(payload.Scope),
	}, nil
}

// UserInfo implements social.SocialProvider. The profile email comes
// from the emails endpoint when possible since the user record's email
// field is often private.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	user, err := p.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	email, verified, err := p.fetchPrimaryEmail(ctx, token.AccessToken)
	if err != nil {
		email, verified = user.Email, false
	}

	return user.profile(email, verified), nil
}

// ValidateToken implements social.SocialProvider.
func (p *Provider) ValidateToken(ctx context.Context, token *social.Token) error {
	_, err := p.fetchUser(ctx, token.AccessToken)
	return err
}

// RefreshToken implements social.SocialProvider. Classic GitHub OAuth
// tokens never expire and cannot be refreshed.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return nil, fmt.Errorf("github: token refresh not supported")
}

// apiGet performs an authenticated GET against the GitHub API and
// returns the raw body for 200 responses.
func (p *Provider) apiGet(ctx context.Context, op, endpoint, accessToken string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, newProviderError(op, resp.StatusCode, "", apiMessage(body), nil, nil)
	}

	return body, resp.StatusCode, nil
}

func (p *Provider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	body, status, err := p.apiGet(ctx, "user_info", p.config.UserURL, accessToken)
	if err != nil {
		return nil, err
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, newProviderError("user_info", status, "invalid_response", "failed to decode user response", err, nil)
	}

	return &user, nil
}

func (p *Provider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, bool, error) {
	body, status, err := p.apiGet(ctx, "emails", p.config.EmailsURL, accessToken)
	if err != nil {
		return "", false, err
	}

	var emails []githubEmail
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", false, newProviderError("emails", status, "invalid_response", "failed to decode emails response", err, nil)
	}

	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}

	return "", false, newProviderError("emails", status, "email_not_found", "no valid email found", nil, nil)
}

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
	ErrorURI    string `json:"error_uri"`
}

func (r tokenPayload) errorMetadata() map[string]any {
	meta := map[string]any{}
	if r.Error != "" {
		meta["error"] = r.Error
	}
	if r.ErrorDesc != "" {
		meta["error_description"] = r.ErrorDesc
	}
	if r.ErrorURI != "" {
		meta["error_uri"] = r.ErrorURI
	}
	if r.Scope != "" {
		meta["scope"] = r.Scope
	}
	return meta
}

func apiMessage(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return "github request failed"
}

// scopeList splits GitHub's comma-separated scope string.
func scopeList(scope string) []string {
	if scope == "" {
		return nil
	}

	parts := strings.Split(scope, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func newProviderError(operation string, status int, code, description string, err error, raw map[string]any) *social.ProviderError {
	return &social.ProviderError{
		Provider:    providerName,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
