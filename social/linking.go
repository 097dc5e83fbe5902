package social

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	auth "github.com/klasshub/go-lms-auth"
)

// LinkingStrategy resolves a provider profile to a local user account.
type LinkingStrategy interface {
	ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error)
}

// LinkingPolicy decides which linking mode and flags apply to a request.
type LinkingPolicy func(ctx context.Context, lc LinkingContext) (LinkDecision, error)

// LinkDecision controls resolution behavior for a single auth flow.
type LinkDecision struct {
	Mode                 string
	AllowSignup          bool
	AllowLinking         bool
	RequireEmailVerified bool
}

// Linking modes (used by LinkingPolicy decisions).
const (
	LinkModeAutoCreate    = "auto_create"
	LinkModeEmailMatch    = "email_match"
	LinkModeExplicitOnly  = "explicit_only"
	LinkModeRejectUnknown = "reject_unknown"
)

// LinkingContext provides context for user resolution.
type LinkingContext struct {
	Profile     *SocialProfile
	Action      string
	Mode        string
	LinkUserID  string
	AccountRepo SocialAccountRepository
	UserRepo    auth.Users
}

func (lc LinkingContext) withMode(mode string) LinkingContext {
	if mode == "" {
		return lc
	}
	out := lc
	out.Mode = mode
	return out
}

// LinkingResult contains the resolved user and metadata.
type LinkingResult struct {
	User      *auth.User
	IsNewUser bool
	Linked    bool
}

// PolicyLinkingStrategy evaluates a LinkingPolicy per request, then runs
// the default resolution with the decided flags.
type PolicyLinkingStrategy struct {
	Policy LinkingPolicy
}

func (s *PolicyLinkingStrategy) ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if s == nil || s.Policy == nil {
		return nil, ErrLinkingNotAllowed
	}

	decision, err := s.Policy(ctx, lc)
	if err != nil {
		return nil, err
	}

	resolver := &DefaultLinkingStrategy{
		AllowSignup:          decision.AllowSignup,
		AllowLinking:         decision.AllowLinking,
		RequireEmailVerified: decision.RequireEmailVerified,
	}
	return resolver.ResolveUser(ctx, lc.withMode(decision.Mode))
}

// DefaultLinkingStrategy implements the standard resolution order:
// existing link, explicit link request, email match, then signup.
type DefaultLinkingStrategy struct {
	AllowSignup          bool
	AllowLinking         bool
	RequireEmailVerified bool
	DefaultRole          string

	OnUserCreated   func(ctx context.Context, user *auth.User, profile *SocialProfile) error
	OnAccountLinked func(ctx context.Context, user *auth.User, profile *SocialProfile) error
}

func (s *DefaultLinkingStrategy) ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if lc.Profile == nil {
		return nil, ErrUserInfoFailed
	}
	if lc.AccountRepo == nil || lc.UserRepo == nil {
		return nil, ErrLinkingNotAllowed
	}
	if s.RequireEmailVerified && !lc.Profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if result, found, err := s.resolveExistingLink(ctx, lc); err != nil || found {
		return result, err
	}

	if lc.Action == ActionLink && lc.LinkUserID != "" {
		return s.resolveExplicitLink(ctx, lc)
	}

	if lc.Mode == LinkModeExplicitOnly {
		return nil, ErrLinkingNotAllowed
	}

	if result, found, err := s.resolveByEmail(ctx, lc); err != nil || found {
		return result, err
	}

	if lc.Mode == LinkModeEmailMatch || lc.Mode == LinkModeRejectUnknown || !s.AllowSignup {
		return nil, ErrSignupNotAllowed
	}

	return s.signup(ctx, lc)
}

func (s *DefaultLinkingStrategy) resolveExistingLink(ctx context.Context, lc LinkingContext) (*LinkingResult, bool, error) {
	existing, err := lc.AccountRepo.FindByProviderID(ctx, lc.Profile.Provider, lc.Profile.ProviderUserID)
	if err != nil {
		if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to find linked account: %w", err)
	}
	if existing == nil {
		return nil, false, nil
	}

	user, err := lc.UserRepo.GetByIdentifier(ctx, existing.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find linked user: %w", err)
	}
	return &LinkingResult{User: user}, true, nil
}

func (s *DefaultLinkingStrategy) resolveExplicitLink(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if !s.AllowLinking {
		return nil, ErrLinkingNotAllowed
	}

	user, err := lc.UserRepo.GetByIdentifier(ctx, lc.LinkUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user to link: %w", err)
	}
	if err := s.notifyLinked(ctx, user, lc.Profile); err != nil {
		return nil, err
	}
	return &LinkingResult{User: user, Linked: true}, nil
}

func (s *DefaultLinkingStrategy) resolveByEmail(ctx context.Context, lc LinkingContext) (*LinkingResult, bool, error) {
	if lc.Profile.Email == "" || lc.Mode == LinkModeRejectUnknown {
		return nil, false, nil
	}

	user, err := lc.UserRepo.GetByIdentifier(ctx, lc.Profile.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, false, nil
	}

	if !s.AllowLinking {
		return nil, false, ErrEmailAlreadyExists
	}
	if err := s.notifyLinked(ctx, user, lc.Profile); err != nil {
		return nil, false, err
	}
	return &LinkingResult{User: user, Linked: true}, true, nil
}

func (s *DefaultLinkingStrategy) signup(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	created, err := lc.UserRepo.Create(ctx, s.createUserFromProfile(lc.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if s.OnUserCreated != nil {
		if err := s.OnUserCreated(ctx, created, lc.Profile); err != nil {
			return nil, err
		}
	}
	return &LinkingResult{User: created, IsNewUser: true}, nil
}

func (s *DefaultLinkingStrategy) notifyLinked(ctx context.Context, user *auth.User, profile *SocialProfile) error {
	if s.OnAccountLinked == nil {
		return nil
	}
	return s.OnAccountLinked(ctx, user, profile)
}

func (s *DefaultLinkingStrategy) createUserFromProfile(profile *SocialProfile) *auth.User {
	role := auth.RoleStudent
	if s.DefaultRole != "" {
		if parsed, ok := auth.ParseRole(s.DefaultRole); ok {
			role = parsed
		}
	}

	// Provider emails count as verified, but the account still waits for an
	// admin decision before any course opens up.
	user := &auth.User{
		Email:          profile.Email,
		EmailValidated: profile.EmailVerified,
		Role:           role,
		Status:         auth.UserStatusPending,
		ProfilePicture: profile.AvatarURL,
		Metadata: map[string]any{
			"social_provider": profile.Provider,
			"avatar_url":      profile.AvatarURL,
		},
	}

	// Derive the ID from the email so a later password setup through the
	// provider bridge lands on the same row.
	if profile.Email != "" {
		if id, err := hashid.NewUUID(profile.Email); err == nil {
			user.ID = id
		}
	}

	switch {
	case profile.FirstName != "":
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
	case profile.Name != "":
		parts := strings.SplitN(profile.Name, " ", 2)
		user.FirstName = parts[0]
		if len(parts) > 1 {
			user.LastName = parts[1]
		}
	}

	switch {
	case profile.Username != "":
		user.Username = profile.Username
	case profile.Email != "":
		user.Username = strings.Split(profile.Email, "@")[0]
	case profile.ProviderUserID != "":
		user.Username = fmt.Sprintf("%s_%s", profile.Provider, profile.ProviderUserID)
	}

	return user
}

func fixedPolicy(decision LinkDecision) LinkingPolicy {
	return func(context.Context, LinkingContext) (LinkDecision, error) {
		return decision, nil
	}
}

// PolicyAutoCreate creates a new user if one does not exist.
func PolicyAutoCreate() LinkingPolicy {
	return fixedPolicy(LinkDecision{
		Mode:                 LinkModeAutoCreate,
		AllowSignup:          true,
		AllowLinking:         true,
		RequireEmailVerified: true,
	})
}

// PolicyExplicitOnly only links when explicitly requested.
func PolicyExplicitOnly() LinkingPolicy {
	return fixedPolicy(LinkDecision{
		Mode:                 LinkModeExplicitOnly,
		AllowLinking:         true,
		RequireEmailVerified: true,
	})
}

// PolicyEmailMatch only links when email matches a verified account.
func PolicyEmailMatch() LinkingPolicy {
	return fixedPolicy(LinkDecision{
		Mode:                 LinkModeEmailMatch,
		AllowLinking:         true,
		RequireEmailVerified: true,
	})
}

// PolicyRejectUnknown rejects accounts that do not already exist.
func PolicyRejectUnknown() LinkingPolicy {
	return fixedPolicy(LinkDecision{
		Mode:                 LinkModeRejectUnknown,
		RequireEmailVerified: true,
	})
}
