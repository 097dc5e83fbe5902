package social

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/stretchr/testify/require"
)

type recordingGate struct {
	disabled map[string]bool
	seen     []string
	err      error
}

func (g *recordingGate) Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error) {
	g.seen = append(g.seen, key)
	if g.err != nil {
		return false, g.err
	}
	return !g.disabled[key], nil
}

type countingProvider struct {
	name      string
	exchanges int
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	return "https://idp.example/authorize?state=" + state
}

func (p *countingProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	p.exchanges++
	return &Token{AccessToken: "token"}, nil
}

func (p *countingProvider) UserInfo(ctx context.Context, token *Token) (*SocialProfile, error) {
	return &SocialProfile{}, nil
}

func (p *countingProvider) ValidateToken(ctx context.Context, token *Token) error {
	return nil
}

func (p *countingProvider) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	return nil, nil
}

func newGatedAuthenticator(provider SocialProvider, fg FeatureGate, sm StateManager) *SocialAuthenticator {
	return NewSocialAuthenticator(nil, nil, nil, SocialAuthConfig{},
		WithStateManager(sm),
		WithProvider(provider),
		WithFeatureGate(fg),
	)
}

func TestSocialAuthenticatorBeginAuthSignupDeniedByFeatureGate(t *testing.T) {
	fg := &recordingGate{disabled: map[string]bool{gate.FeatureUsersSignup: true}}
	provider := &stubProvider{name: "google", authBase: "https://idp.example/authorize"}
	sa := newGatedAuthenticator(provider, fg, &stubStateManager{})

	_, err := sa.BeginAuth(context.Background(), "google", ForAction(ActionSignup))
	require.ErrorIs(t, err, ErrSignupNotAllowed)
	require.Equal(t, []string{gate.FeatureUsersSignup}, fg.seen)
}

func TestSocialAuthenticatorBeginAuthGateErrorSurfaces(t *testing.T) {
	gateErr := errors.New("gate backend down")
	fg := &recordingGate{err: gateErr}
	provider := &stubProvider{name: "google", authBase: "https://idp.example/authorize"}
	sa := newGatedAuthenticator(provider, fg, &stubStateManager{})

	_, err := sa.BeginAuth(context.Background(), "google", ForAction(ActionSignup))
	require.ErrorIs(t, err, gateErr)
}

func TestSocialAuthenticatorBeginAuthLoginSkipsGate(t *testing.T) {
	fg := &recordingGate{disabled: map[string]bool{gate.FeatureUsersSignup: true}}
	provider := &stubProvider{name: "google", authBase: "https://idp.example/authorize"}
	sa := newGatedAuthenticator(provider, fg, &stubStateManager{})

	_, err := sa.BeginAuth(context.Background(), "google", ForAction(ActionLogin))
	require.NoError(t, err)
	require.Empty(t, fg.seen)
}

func TestSocialAuthenticatorCompleteAuthSignupDeniedByFeatureGate(t *testing.T) {
	fg := &recordingGate{disabled: map[string]bool{gate.FeatureUsersSignup: true}}
	provider := &countingProvider{name: "google"}
	sm := &stubStateManager{}
	sa := newGatedAuthenticator(provider, fg, sm)

	stateToken, err := sm.Encode(&OAuthState{
		Provider:  "google",
		Action:    ActionSignup,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = sa.CompleteAuth(context.Background(), "google", "code", stateToken)
	require.ErrorIs(t, err, ErrSignupNotAllowed)
	// The gate must trip before any provider round-trip.
	require.Equal(t, 0, provider.exchanges)
	require.Equal(t, []string{gate.FeatureUsersSignup}, fg.seen)
}
