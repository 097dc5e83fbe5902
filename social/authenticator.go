package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-featuregate/gate"
	auth "github.com/klasshub/go-lms-auth"
)

// FeatureGate answers whether a named feature is enabled for the caller.
type FeatureGate interface {
	Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error)
}

// SocialAuthConfig configures the social authenticator.
type SocialAuthConfig struct {
	BaseURL              string
	CallbackPath         string
	DefaultRedirectURL   string
	StateEncryptionKey   []byte
	StateHMACKey         []byte
	StateTTL             time.Duration
	AllowSignup          bool
	AllowLinking         bool
	RequireEmailVerified bool
	DefaultRole          string
}

func (c SocialAuthConfig) withDefaults() SocialAuthConfig {
	if c.StateTTL == 0 {
		c.StateTTL = 10 * time.Minute
	}
	if c.DefaultRole == "" {
		c.DefaultRole = string(auth.RoleStudent)
	}
	return c
}

// SocialAuthenticator orchestrates social login flows.
type SocialAuthenticator struct {
	providers       map[string]SocialProvider
	stateManager    StateManager
	linkingStrategy LinkingStrategy
	accountRepo     SocialAccountRepository
	userRepo        auth.Users
	roleProvider    auth.ResourceRoleProvider
	tokenService    auth.TokenService
	activitySink    auth.ActivitySink
	featureGate     FeatureGate
	config          SocialAuthConfig
}

// SocialAuthOption configures the social authenticator.
type SocialAuthOption func(*SocialAuthenticator)

// NewSocialAuthenticator creates a new social authenticator.
func NewSocialAuthenticator(
	accountRepo SocialAccountRepository,
	userRepo auth.Users,
	tokenService auth.TokenService,
	config SocialAuthConfig,
	opts ...SocialAuthOption,
) *SocialAuthenticator {
	sa := &SocialAuthenticator{
		providers:    make(map[string]SocialProvider),
		accountRepo:  accountRepo,
		userRepo:     userRepo,
		tokenService: tokenService,
		config:       config.withDefaults(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	if sa.stateManager == nil {
		sa.stateManager = NewEncryptedStateManager(
			sa.config.StateEncryptionKey,
			sa.config.StateHMACKey,
			sa.config.StateTTL,
		)
	}

	if sa.linkingStrategy == nil {
		sa.linkingStrategy = &DefaultLinkingStrategy{
			AllowSignup:          sa.config.AllowSignup,
			AllowLinking:         sa.config.AllowLinking,
			RequireEmailVerified: sa.config.RequireEmailVerified,
			DefaultRole:          sa.config.DefaultRole,
		}
	}

	return sa
}

// WithProvider registers a social provider.
func WithProvider(provider SocialProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if provider == nil {
			return
		}
		sa.providers[provider.Name()] = provider
	}
}

// WithStateManager sets a custom state manager.
func WithStateManager(sm StateManager) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.stateManager = sm
	}
}

// WithLinkingStrategy sets a custom user linking strategy.
func WithLinkingStrategy(ls LinkingStrategy) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.linkingStrategy = ls
	}
}

// WithLinkingPolicy sets a policy function used by the default resolver.
func WithLinkingPolicy(policy LinkingPolicy) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.linkingStrategy = &PolicyLinkingStrategy{Policy: policy}
	}
}

// WithResourceRoleProvider sets the provider used to load per-course roles
// into the issued JWT.
func WithResourceRoleProvider(rp auth.ResourceRoleProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.roleProvider = rp
	}
}

// WithActivitySink sets the activity sink for audit logging.
func WithActivitySink(sink auth.ActivitySink) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.activitySink = sink
	}
}

// WithFeatureGate sets the gate consulted before social signups.
func WithFeatureGate(fg FeatureGate) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.featureGate = fg
	}
}

// Actions.
const (
	ActionLogin  = "login"
	ActionSignup = "signup"
	ActionLink   = "link"
)

type beginAuthConfig struct {
	action      string
	redirectURL string
	linkUserID  string
}

// BeginAuthOption configures the auth initiation.
type BeginAuthOption func(*beginAuthConfig)

// ForAction sets the auth action (login, signup, link).
func ForAction(action string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.action = action
	}
}

// WithRedirectURL sets the post-auth redirect URL.
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.redirectURL = url
	}
}

// ForLinkingUser sets the user ID for account linking.
func ForLinkingUser(userID string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.linkUserID = userID
		c.action = ActionLink
	}
}

// BeginAuth starts the OAuth flow for a provider.
func (sa *SocialAuthenticator) BeginAuth(
	ctx context.Context,
	providerName string,
	opts ...BeginAuthOption,
) (*AuthRedirect, error) {
	provider, err := sa.lookupProvider(providerName)
	if err != nil {
		return nil, err
	}

	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	cfg := &beginAuthConfig{
		action:      ActionLogin,
		redirectURL: sa.config.DefaultRedirectURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	if cfg.action == ActionSignup {
		if err := sa.signupAllowed(ctx); err != nil {
			return nil, err
		}
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	now := time.Now()
	stateToken, err := sa.stateManager.Encode(&OAuthState{
		Nonce:        generateNonce(),
		Provider:     providerName,
		CodeVerifier: codeVerifier,
		RedirectURL:  cfg.redirectURL,
		Action:       cfg.action,
		LinkUserID:   cfg.linkUserID,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(sa.config.StateTTL).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(stateToken, WithPKCE(computeCodeChallenge(codeVerifier), "S256")),
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// CompleteAuth finishes the OAuth flow after callback.
func (sa *SocialAuthenticator) CompleteAuth(
	ctx context.Context,
	providerName string,
	code string,
	stateToken string,
) (*AuthResult, error) {
	state, err := sa.verifyState(ctx, providerName, stateToken)
	if err != nil {
		return nil, err
	}

	provider, err := sa.lookupProvider(providerName)
	if err != nil {
		return nil, err
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}

	result, identity, err := sa.resolveIdentity(ctx, state, profile)
	if err != nil {
		return nil, err
	}

	if err := sa.saveAccount(ctx, providerName, result.User.ID.String(), profile, token); err != nil {
		return nil, err
	}

	jwtToken, err := sa.issueToken(ctx, identity)
	if err != nil {
		return nil, err
	}

	sa.recordSocialLogin(ctx, providerName, identity, profile, state, result.IsNewUser)

	return &AuthResult{
		User:            identity,
		Token:           jwtToken,
		IsNewUser:       result.IsNewUser,
		PendingApproval: result.User.Status == auth.UserStatusPending,
		Provider:        providerName,
		Profile:         profile,
		RedirectURL:     state.RedirectURL,
	}, nil
}

func (sa *SocialAuthenticator) lookupProvider(name string) (SocialProvider, error) {
	provider, ok := sa.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return provider, nil
}

// verifyState decodes the round-tripped state token and re-checks the signup
// gate, which may have flipped between the redirect and the callback.
func (sa *SocialAuthenticator) verifyState(ctx context.Context, providerName, stateToken string) (*OAuthState, error) {
	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if state.Provider != providerName {
		return nil, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}

	if time.Now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}

	if state.Action == ActionSignup {
		if err := sa.signupAllowed(ctx); err != nil {
			return nil, err
		}
	}

	return state, nil
}

func (sa *SocialAuthenticator) resolveIdentity(ctx context.Context, state *OAuthState, profile *SocialProfile) (*LinkingResult, auth.Identity, error) {
	if sa.linkingStrategy == nil {
		return nil, nil, ErrLinkingNotAllowed
	}

	result, err := sa.linkingStrategy.ResolveUser(ctx, LinkingContext{
		Profile:     profile,
		Action:      state.Action,
		LinkUserID:  state.LinkUserID,
		AccountRepo: sa.accountRepo,
		UserRepo:    sa.userRepo,
	})
	if err != nil {
		return nil, nil, err
	}
	if result == nil || result.User == nil {
		return nil, nil, auth.ErrIdentityNotFound
	}

	identity := auth.NewIdentityFromUser(result.User)
	if identity == nil {
		return nil, nil, auth.ErrIdentityNotFound
	}

	if err := ensureIdentityCanLogin(identity); err != nil {
		return nil, nil, err
	}

	return result, identity, nil
}

func (sa *SocialAuthenticator) saveAccount(ctx context.Context, providerName, userID string, profile *SocialProfile, token *Token) error {
	if sa.accountRepo == nil {
		return ErrLinkingNotAllowed
	}

	account := &SocialAccount{
		UserID:         userID,
		Provider:       providerName,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		Name:           profile.Name,
		Username:       profile.Username,
		AvatarURL:      profile.AvatarURL,
	}
	if token != nil {
		account.AccessToken = token.AccessToken
		account.RefreshToken = token.RefreshToken
		account.ProfileData = profile.Raw
		if !token.ExpiresAt.IsZero() {
			expiresAt := token.ExpiresAt
			account.TokenExpiresAt = &expiresAt
		}
	}

	if err := sa.accountRepo.Upsert(ctx, account); err != nil {
		return fmt.Errorf("failed to save social account: %w", err)
	}
	return nil
}

func (sa *SocialAuthenticator) issueToken(ctx context.Context, identity auth.Identity) (string, error) {
	resourceRoles := map[string]string{}
	if sa.roleProvider != nil {
		roles, err := sa.roleProvider.FindResourceRoles(ctx, identity)
		if err != nil {
			return "", err
		}
		resourceRoles = roles
	}

	jwtToken, err := sa.tokenService.Generate(identity, resourceRoles)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return jwtToken, nil
}

func (sa *SocialAuthenticator) recordSocialLogin(ctx context.Context, providerName string, identity auth.Identity, profile *SocialProfile, state *OAuthState, isNewUser bool) {
	if sa.activitySink == nil {
		return
	}
	_ = sa.activitySink.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventSocialLogin,
		UserID:     identity.ID(),
		Actor:      auth.ActorRef{Type: "social", ID: providerName},
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"provider":         providerName,
			"provider_user_id": profile.ProviderUserID,
			"action":           state.Action,
			"is_new_user":      isNewUser,
		},
	})
}

// ListProviders returns all registered providers.
func (sa *SocialAuthenticator) ListProviders() []ProviderInfo {
	var providers []ProviderInfo
	for name, p := range sa.providers {
		providers = append(providers, ProviderInfo{
			Name:    name,
			AuthURL: p.AuthCodeURL(""),
		})
	}
	return providers
}

// ProviderInfo describes an available provider.
type ProviderInfo struct {
	Name    string
	AuthURL string
}

// AuthRedirect contains the authorization URL for redirecting users.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// AuthResult contains the result of a successful authentication.
type AuthResult struct {
	User            auth.Identity
	Token           string
	IsNewUser       bool
	PendingApproval bool
	Provider        string
	Profile         *SocialProfile
	RedirectURL     string
}

func (sa *SocialAuthenticator) signupAllowed(ctx context.Context) error {
	if sa.featureGate == nil {
		return nil
	}
	enabled, err := sa.featureGate.Enabled(ctx, gate.FeatureUsersSignup)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrSignupNotAllowed
	}
	return nil
}

type statusAwareIdentity interface {
	Status() auth.UserStatus
}

// ensureIdentityCanLogin blocks suspended, rejected, and archived accounts.
// Pending accounts still get a token: the approval gate lives at the course
// layer, not the login door.
func ensureIdentityCanLogin(identity auth.Identity) error {
	if identity == nil {
		return auth.ErrIdentityNotFound
	}

	si, ok := identity.(statusAwareIdentity)
	if !ok {
		return nil
	}

	switch si.Status() {
	case auth.UserStatusSuspended:
		return auth.ErrUserSuspended
	case auth.UserStatusRejected:
		return auth.ErrUserRejected
	case auth.UserStatusArchived:
		return auth.ErrUserArchived
	default:
		return nil
	}
}
