package social

import (
	"context"
	"database/sql"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccountStore struct {
	accounts map[string]*SocialAccount
}

func providerKey(provider, providerUserID string) string {
	return provider + ":" + providerUserID
}

func (s *fakeAccountStore) FindByProviderID(ctx context.Context, provider, providerUserID string) (*SocialAccount, error) {
	if account, ok := s.accounts[providerKey(provider, providerUserID)]; ok {
		return account, nil
	}
	return nil, sql.ErrNoRows
}

func (s *fakeAccountStore) FindByUserID(ctx context.Context, userID string) ([]*SocialAccount, error) {
	return nil, nil
}

func (s *fakeAccountStore) Upsert(ctx context.Context, account *SocialAccount) error {
	if s.accounts == nil {
		s.accounts = map[string]*SocialAccount{}
	}
	s.accounts[providerKey(account.Provider, account.ProviderUserID)] = account
	return nil
}

func (s *fakeAccountStore) Delete(ctx context.Context, id string) error {
	return nil
}

func (s *fakeAccountStore) DeleteByUserAndProvider(ctx context.Context, userID, provider string) error {
	return nil
}

type fakeUserStore struct {
	auth.Users
	records   map[string]*auth.User
	created   []*auth.User
	createErr error
	getErr    map[string]error
}

func (s *fakeUserStore) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	if err, ok := s.getErr[identifier]; ok {
		return nil, err
	}
	if user, ok := s.records[identifier]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *fakeUserStore) Create(ctx context.Context, record *auth.User, criteria ...repository.InsertCriteria) (*auth.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.created = append(s.created, record)
	if s.records == nil {
		s.records = map[string]*auth.User{}
	}
	if record.Email != "" {
		s.records[record.Email] = record
	}
	s.records[record.ID.String()] = record
	return record, nil
}

func permissiveStrategy() *DefaultLinkingStrategy {
	return &DefaultLinkingStrategy{
		AllowSignup:          true,
		AllowLinking:         true,
		RequireEmailVerified: true,
		DefaultRole:          "student",
	}
}

func TestDefaultLinkingStrategyResolvesExistingAccount(t *testing.T) {
	user := &auth.User{ID: uuid.New(), Email: "jan.kowalski@school.edu"}
	accountRepo := &fakeAccountStore{
		accounts: map[string]*SocialAccount{
			providerKey("github", "123"): {
				UserID:         user.ID.String(),
				Provider:       "github",
				ProviderUserID: "123",
			},
		},
	}
	userRepo := &fakeUserStore{
		records: map[string]*auth.User{user.ID.String(): user},
	}

	result, err := permissiveStrategy().ResolveUser(context.Background(), LinkingContext{
		Profile: &SocialProfile{
			Provider:       "github",
			ProviderUserID: "123",
			EmailVerified:  true,
		},
		AccountRepo: accountRepo,
		UserRepo:    userRepo,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, user, result.User)
	assert.False(t, result.IsNewUser)
}

func TestDefaultLinkingStrategySignsUpUnknownProfile(t *testing.T) {
	userRepo := &fakeUserStore{}

	profile := &SocialProfile{
		Provider:       "github",
		ProviderUserID: "456",
		Email:          "maria.santos@school.edu",
		EmailVerified:  true,
		Name:           "Maria Santos",
		AvatarURL:      "https://cdn.school.edu/avatars/maria.png",
	}

	result, err := permissiveStrategy().ResolveUser(context.Background(), LinkingContext{
		Profile:     profile,
		Action:      ActionLogin,
		AccountRepo: &stubAccountRepo{},
		UserRepo:    userRepo,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsNewUser)
	require.Len(t, userRepo.created, 1)
	assert.Equal(t, profile.Email, result.User.Email)
	assert.Equal(t, auth.RoleStudent, result.User.Role)

	// New social users wait for the admin decision like everyone else.
	assert.Equal(t, auth.UserStatusPending, result.User.Status)
	assert.True(t, result.User.EmailValidated)

	// ID comes from the email so a later password setup converges on the
	// same record.
	wantID, err := hashid.NewUUID(profile.Email)
	require.NoError(t, err)
	assert.Equal(t, wantID, result.User.ID)
}

func TestDefaultLinkingStrategyRefusesTakenEmail(t *testing.T) {
	user := &auth.User{ID: uuid.New(), Email: "registrar@school.edu"}
	userRepo := &fakeUserStore{
		records: map[string]*auth.User{user.Email: user},
	}

	strategy := permissiveStrategy()
	strategy.AllowLinking = false

	_, err := strategy.ResolveUser(context.Background(), LinkingContext{
		Profile: &SocialProfile{
			Provider:      "github",
			Email:         user.Email,
			EmailVerified: true,
		},
		AccountRepo: &stubAccountRepo{},
		UserRepo:    userRepo,
	})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestDefaultLinkingStrategyRejectsUnverifiedEmail(t *testing.T) {
	strategy := &DefaultLinkingStrategy{
		AllowSignup:          true,
		RequireEmailVerified: true,
	}

	_, err := strategy.ResolveUser(context.Background(), LinkingContext{
		Profile: &SocialProfile{
			Provider:       "github",
			ProviderUserID: "789",
			Email:          "unverified@school.edu",
			EmailVerified:  false,
		},
		AccountRepo: &stubAccountRepo{},
		UserRepo:    &fakeUserStore{},
	})
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}
