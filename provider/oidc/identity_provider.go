package oidc

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	auth "github.com/klasshub/go-lms-auth"
)

// IdentifierProviderOIDC is the default provider name for issuer subjects.
const IdentifierProviderOIDC = "oidc"

// IdentityProviderConfig configures the issuer-backed identity provider.
type IdentityProviderConfig struct {
	// Provider namespaces stored identifiers. Default: "oidc".
	Provider string

	// LocalUsers is the local account store.
	LocalUsers auth.Users

	// IdentifierStore maps issuer subjects to local users.
	IdentifierStore IdentifierStore

	// SyncOnValidate upserts a local account whenever mapped claims come
	// through, so issuer-only users gain a local row.
	SyncOnValidate bool
}

// IdentifierStore maps external identifiers (issuer subjects, provider
// user IDs) to a local user.
type IdentifierStore interface {
	FindUserID(ctx context.Context, provider, identifier string) (string, error)
	Upsert(ctx context.Context, userID, provider, identifier string) error
}

// IdentityProvider implements auth.IdentityProvider for accounts that
// authenticate against an external issuer. Passwords never transit here;
// the issuer owns them.
type IdentityProvider struct {
	config          IdentityProviderConfig
	provider        string
	localUsers      auth.Users
	identifierStore IdentifierStore
}

// NewIdentityProvider creates an issuer-backed identity provider.
func NewIdentityProvider(cfg IdentityProviderConfig) (*IdentityProvider, error) {
	if cfg.LocalUsers == nil {
		return nil, fmt.Errorf("oidc: local user store is required")
	}

	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = IdentifierProviderOIDC
	}

	return &IdentityProvider{
		config:          cfg,
		provider:        provider,
		localUsers:      cfg.LocalUsers,
		identifierStore: cfg.IdentifierStore,
	}, nil
}

// FindIdentityByIdentifier implements auth.IdentityProvider. It resolves
// issuer subjects through the identifier store first, then falls back to
// treating the identifier as a local email or username.
func (p *IdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (auth.Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, auth.ErrIdentityNotFound
	}

	if p.identifierStore != nil {
		userID, err := p.identifierStore.FindUserID(ctx, p.provider, identifier)
		if err == nil && userID != "" {
			localUser, err := p.localUsers.GetByIdentifier(ctx, userID)
			if err == nil && localUser != nil {
				return auth.NewIdentityFromUser(localUser), nil
			}
			if err != nil && !repository.IsRecordNotFound(err) && err != sql.ErrNoRows {
				return nil, fmt.Errorf("oidc: failed to resolve local user: %w", err)
			}
		} else if err != nil && !repository.IsRecordNotFound(err) && err != sql.ErrNoRows {
			return nil, fmt.Errorf("oidc: failed to resolve identifier: %w", err)
		}
	}

	localUser, err := p.localUsers.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
			return nil, auth.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("oidc: failed to resolve local user: %w", err)
	}

	return auth.NewIdentityFromUser(localUser), nil
}

// VerifyIdentity is not supported; the issuer handles authentication.
func (p *IdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (auth.Identity, error) {
	return nil, fmt.Errorf("oidc: direct password verification not supported; use the issuer login flow")
}

// SyncClaims upserts a local account for validated issuer claims and
// records the subject mapping. The account lands pending so the admin
// approval flow still runs before any course opens up.
func (p *IdentityProvider) SyncClaims(ctx context.Context, claims *auth.JWTClaims) (*auth.User, error) {
	if claims == nil {
		return nil, fmt.Errorf("oidc: claims are required")
	}

	localUser := mapClaimsToUser(claims, p.provider)
	if localUser == nil {
		return nil, fmt.Errorf("oidc: claims carry no usable identity")
	}

	subject := claims.UserID()
	if p.identifierStore != nil && subject != "" {
		localID, err := p.identifierStore.FindUserID(ctx, p.provider, subject)
		if err == nil && localID != "" {
			if parsed, parseErr := uuid.Parse(localID); parseErr == nil {
				localUser.ID = parsed
			}
		} else if err != nil && !repository.IsRecordNotFound(err) && err != sql.ErrNoRows {
			return nil, err
		}
	}

	if localUser.ID == uuid.Nil {
		localUser.ID = uuid.New()
	}

	localUser, err := p.localUsers.Upsert(ctx, localUser, repository.UpdateSkipZeroValues())
	if err != nil {
		return nil, err
	}

	if p.identifierStore != nil && subject != "" {
		_ = p.identifierStore.Upsert(ctx, localUser.ID.String(), p.provider, subject)
	}

	return localUser, nil
}

func mapClaimsToUser(claims *auth.JWTClaims, provider string) *auth.User {
	subject := claims.UserID()
	email := metadataString(claims.Metadata, "email")
	if subject == "" && email == "" {
		return nil
	}

	firstName, lastName := splitName(metadataString(claims.Metadata, "name"))
	nickname := metadataString(claims.Metadata, "nickname")
	if firstName == "" && nickname != "" {
		firstName = nickname
	}

	username := nickname
	if username == "" && email != "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	if username == "" {
		username = sanitizeIdentifier(subject)
	}

	role := auth.RoleStudent
	if parsed, ok := auth.ParseRole(claims.Role()); ok {
		role = parsed
	}

	emailVerified := false
	if raw, ok := claims.Metadata["email_verified"].(bool); ok {
		emailVerified = raw
	}

	user := &auth.User{
		Role:           role,
		Status:         auth.UserStatusPending,
		FirstName:      firstName,
		LastName:       lastName,
		Username:       username,
		Email:          email,
		EmailValidated: emailVerified,
		ProfilePicture: metadataString(claims.Metadata, "picture"),
		Metadata: map[string]any{
			"external_subject":  subject,
			"external_provider": provider,
		},
	}

	// Derive the ID from the email so a later password setup converges
	// on the same row instead of forking the account.
	if email != "" {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}
	}

	return user
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if raw, ok := metadata[key].(string); ok {
		return raw
	}
	return ""
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}

	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func sanitizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "user"
	}
	cleaned := strings.NewReplacer("|", "_", ":", "_", "@", "_", " ", "_").Replace(identifier)
	if cleaned == "" {
		return "user"
	}
	return cleaned
}
