package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/klasshub/go-lms-auth/social"
	"github.com/uptrace/bun"
)

// SocialAccountModel is the bun row for a linked provider identity.
type SocialAccountModel struct {
	bun.BaseModel `bun:"table:social_accounts"`

	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid"`
	UserID         uuid.UUID      `bun:"user_id,notnull,type:uuid"`
	Provider       string         `bun:"provider,notnull"`
	ProviderUserID string         `bun:"provider_user_id,notnull"`
	Email          string         `bun:"email"`
	Name           string         `bun:"name"`
	Username       string         `bun:"username"`
	AvatarURL      string         `bun:"avatar_url"`
	AccessToken    string         `bun:"access_token"`
	RefreshToken   string         `bun:"refresh_token"`
	TokenExpiresAt *time.Time     `bun:"token_expires_at"`
	ProfileData    map[string]any `bun:"profile_data,type:jsonb"`
	CreatedAt      time.Time      `bun:"created_at,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,default:current_timestamp"`
}

// SocialAccountRepository is the bun-backed
// social.SocialAccountRepository implementation.
type SocialAccountRepository struct {
	db *bun.DB
}

// NewSocialAccountRepository creates a new repository.
func NewSocialAccountRepository(db *bun.DB) *SocialAccountRepository {
	return &SocialAccountRepository{db: db}
}

// FindByProviderID implements social.SocialAccountRepository.
func (r *SocialAccountRepository) FindByProviderID(ctx context.Context, provider, providerUserID string) (*social.SocialAccount, error) {
	row := &SocialAccountModel{}
	err := r.db.NewSelect().
		Model(row).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// FindByUserID implements social.SocialAccountRepository.
func (r *SocialAccountRepository) FindByUserID(ctx context.Context, userID string) ([]*social.SocialAccount, error) {
	var rows []SocialAccountModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*social.SocialAccount{}, nil
		}
		return nil, err
	}

	accounts := make([]*social.SocialAccount, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toDomain()
	}
	return accounts, nil
}

// Upsert implements social.SocialAccountRepository. The
// (provider, provider_user_id) pair is the natural key: re-linking the
// same external identity refreshes tokens and profile data in place.
func (r *SocialAccountRepository) Upsert(ctx context.Context, account *social.SocialAccount) error {
	row := modelFromAccount(account)
	row.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (provider, provider_user_id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("username = EXCLUDED.username").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("token_expires_at = EXCLUDED.token_expires_at").
		Set("profile_data = EXCLUDED.profile_data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// Delete implements social.SocialAccountRepository.
func (r *SocialAccountRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().
		Model((*SocialAccountModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// DeleteByUserAndProvider implements social.SocialAccountRepository.
func (r *SocialAccountRepository) DeleteByUserAndProvider(ctx context.Context, userID, provider string) error {
	_, err := r.db.NewDelete().
		Model((*SocialAccountModel)(nil)).
		Where("user_id = ? AND provider = ?", userID, provider).
		Exec(ctx)
	return err
}

func (m *SocialAccountModel) toDomain() *social.SocialAccount {
	return &social.SocialAccount{
		ID:             m.ID.String(),
		UserID:         m.UserID.String(),
		Provider:       m.Provider,
		ProviderUserID: m.ProviderUserID,
		Email:          m.Email,
		Name:           m.Name,
		Username:       m.Username,
		AvatarURL:      m.AvatarURL,
		AccessToken:    m.AccessToken,
		RefreshToken:   m.RefreshToken,
		TokenExpiresAt: m.TokenExpiresAt,
		ProfileData:    m.ProfileData,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func parseOrNil(s string) uuid.UUID {
	if s == "" {
		return uuid.Nil
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func modelFromAccount(a *social.SocialAccount) *SocialAccountModel {
	if a == nil {
		return &SocialAccountModel{ID: uuid.New(), ProfileData: map[string]any{}}
	}

	id := parseOrNil(a.ID)
	if id == uuid.Nil {
		id = uuid.New()
	}

	profile := a.ProfileData
	if profile == nil {
		profile = map[string]any{}
	}

	return &SocialAccountModel{
		ID:             id,
		UserID:         parseOrNil(a.UserID),
		Provider:       a.Provider,
		ProviderUserID: a.ProviderUserID,
		Email:          a.Email,
		Name:           a.Name,
		Username:       a.Username,
		AvatarURL:      a.AvatarURL,
		AccessToken:    a.AccessToken,
		RefreshToken:   a.RefreshToken,
		TokenExpiresAt: a.TokenExpiresAt,
		ProfileData:    profile,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
