package google

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

const providerName = "google"

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements social.SocialProvider for Google.
type Provider struct {
	config     Config
	httpClient *http.Client
}

// New creates a new Google provider.
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
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
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
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)
	params.Set("access_type", "offline")

	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params.Set("code_challenge", cfg.CodeChallenge)
		params.Set("code_challenge_method", method)
	}
	if cfg.Prompt != "" {
		params.Set("prompt", cfg.Prompt)
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
	form.Set("grant_type", "authorization_code")
	if cfg.CodeVerifier != "" {
		form.Set("code_verifier", cfg.CodeVerifier)
	}

	payload, err := p.requestToken(ctx, "exchange", form)
	if err != nil {
		return nil, err
	}

	return &social.Token{
		AccessToken:  payload.AccessToken,
		TokenType:    payload.TokenType,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    payload.expiry(),
		Scopes:       scopeFields(payload.Scope),
		Raw: map[string]any{
			"id_token": payload.IDToken,
		},
	}, nil
}

// UserInfo implements social.SocialProvider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		code, description, raw := decodeErrorBody(body)
		return nil, newProviderError("user_info", resp.StatusCode, code, description, nil, raw)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, newProviderError("user_info", resp.StatusCode, "invalid_response", "failed to decode userinfo response", err, nil)
	}

	return info.profile(), nil
}

// ValidateToken implements social.SocialProvider.
func (p *Provider) ValidateToken(ctx context.Context, token *social.Token) error {
	if !token.ExpiresAt.IsZero() && time.Now().After(token.ExpiresAt) {
		return fmt.Errorf("google: token expired")
	}
	return nil
}

// RefreshToken implements social.SocialProvider.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	form := url.Values{}
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	payload, err := p.requestToken(ctx, "refresh", form)
	if err != nil {
		return nil, err
	}

	// Google omits the refresh token on refresh responses; keep the one
	// we already hold.
	return &social.Token{
		AccessToken:  payload.AccessToken,
		TokenType:    payload.TokenType,
		RefreshToken: refreshToken,
		ExpiresAt:    payload.expiry(),
		Scopes:       scopeFields(payload.Scope),
	}, nil
}

// requestToken posts a form to the token endpoint and normalizes every
// failure mode into a ProviderError tagged with op.
func (p *Provider) requestToken(ctx context.Context, op string, form url.Values) (*tokenPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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
		return nil, newProviderError(op, resp.StatusCode, "invalid_response", "failed to decode token response", err, nil)
	}

	if resp.StatusCode != http.StatusOK || payload.Error != "" {
		code, desc, raw := payload.Error, payload.ErrorDesc, payload.errorMetadata()
		if code == "" && desc == "" {
			code, desc, raw = decodeErrorBody(body)
		}
		return nil, newProviderError(op, resp.StatusCode, code, desc, nil, raw)
	}
	if payload.AccessToken == "" {
		return nil, newProviderError(op, resp.StatusCode, "missing_access_token", "missing access token", nil, nil)
	}

	return &payload, nil
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

func (r tokenPayload) expiry() time.Time {
	if r.ExpiresIn <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
}

func (r tokenPayload) errorMetadata() map[string]any {
	meta := map[string]any{}
	if r.Error != "" {
		meta["error"] = r.Error
	}
	if r.ErrorDesc != "" {
		meta["error_description"] = r.ErrorDesc
	}
	if r.Scope != "" {
		meta["scope"] = r.Scope
	}
	return meta
}

// decodeErrorBody handles both Google error shapes: the flat OAuth
// {error, error_description} form and the nested API {error: {code,
// message, status}} form.
func decodeErrorBody(body []byte) (string, string, map[string]any) {
	var flat struct {
		Error string `json:"error"`
		Desc  string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && (flat.Error != "" || flat.Desc != "") {
		return flat.Error, flat.Desc, map[string]any{
			"error":             flat.Error,
			"error_description": flat.Desc,
		}
	}

	var nested struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && (nested.Error.Message != "" || nested.Error.Status != "") {
		code := nested.Error.Status
		if code == "" && nested.Error.Code != 0 {
			code = fmt.Sprintf("%d", nested.Error.Code)
		}
		return code, nested.Error.Message, map[string]any{
			"status":  nested.Error.Status,
			"message": nested.Error.Message,
			"code":    nested.Error.Code,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "google request failed"
	}
	return "", msg, nil
}

func scopeFields(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
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
