package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// AccountRegistrerer is the interface we need to handle new user registrations
type AccountRegistrerer interface {
	RegisterUser(ctx context.Context, email, username, password string) (*User, error)
}

// UserTracker is a store we can use to retrieve users
type UserTracker interface {
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSucccessfulLogin(ctx context.Context, user *User) error
}

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// ErrUserSuspended is returned when a suspended account tries to log in.
var ErrUserSuspended = errors.New("account is suspended", errors.CategoryAuthz).
	WithTextCode("ACCOUNT_SUSPENDED").
	WithCode(errors.CodeForbidden)

// ErrUserRejected is returned when a rejected account tries to log in.
var ErrUserRejected = errors.New("account was not approved", errors.CategoryAuthz).
	WithTextCode("ACCOUNT_REJECTED").
	WithCode(errors.CodeForbidden)

// ErrUserArchived is returned when an archived account tries to log in.
var ErrUserArchived = errors.New("account is archived", errors.CategoryAuthz).
	WithTextCode("ACCOUNT_ARCHIVED").
	WithCode(errors.CodeForbidden)

// UserProvider handles users
type UserProvider struct {
	store     UserTracker
	Validator func(*User) error
	logger    Logger
	provider  LoggerProvider
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker) *UserProvider {
	loggerProvider, logger := ResolveLogger("auth.user_provider", nil, nil)
	return &UserProvider{
		store:     store,
		logger:    logger,
		provider:  loggerProvider,
		Validator: defaultValidator,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.provider, u.logger = ResolveLogger("auth.user_provider", u.provider, l)
	return u
}

// WithLoggerProvider overrides the logger provider used by the user provider.
func (u *UserProvider) WithLoggerProvider(provider LoggerProvider) *UserProvider {
	u.provider, u.logger = ResolveLogger("auth.user_provider", provider, u.logger)
	return u
}

// VerifyIdentity will find the user, compare to the password, and return identity
func (u UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	if err := u.enforceAttemptWindow(user); err != nil {
		return nil, err
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		// count the miss against the login_attempts window
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	// a good password resets login_attempts and login_attempt_at
	if err := u.store.TrackSucccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login: %v", err)
	}

	return u.identityFor(user)
}

func (u UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	return u.identityFor(user)
}

// enforceAttemptWindow zeroes the failure counter once the cooldown lapses
// and rejects accounts that burned through their attempts inside it.
func (u UserProvider) enforceAttemptWindow(user *User) error {
	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}
		if expired {
			user.LoginAttempts = 0
		}
	}

	if user.LoginAttempts > MaxLoginAttempts {
		return ErrTooManyLoginAttempts
	}
	return nil
}

func (u UserProvider) identityFor(user *User) (Identity, error) {
	if err := u.validate(user); err != nil {
		return nil, err
	}

	return authIdentity{
		id:       user.ID.String(),
		email:    user.Email,
		username: user.Username,
		role:     string(user.Role),
		status:   user.Status,
	}, nil
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

type authIdentity struct {
	id       string
	username string
	email    string
	role     string
	status   UserStatus
}

var _ Identity = authIdentity{}
var _ StatusCarrier = authIdentity{}

func (a authIdentity) ID() string       { return a.id }
func (a authIdentity) Username() string { return a.username }
func (a authIdentity) Email() string    { return a.email }
func (a authIdentity) Role() string     { return a.role }

func (a authIdentity) Status() UserStatus {
	if a.status == "" {
		return UserStatusActive
	}
	return a.status
}

func defaultValidator(u *User) error {
	switch u.Role {
	case RoleStudent, RoleAdmin:
		return nil
	default:
		return errors.New("user has an unknown or invalid role", errors.CategoryAuth).
			WithTextCode("INVALID_ROLE").
			WithMetadata(map[string]any{"role": u.Role, "user_id": u.ID.String()})
	}
}

func ensureAuthenticatableUser(user *User) error {
	if user == nil {
		return ErrIdentityNotFound
	}

	user.EnsureStatus()
	return statusAuthError(user.Status)
}

// statusAuthError maps account status to a login block. Pending accounts
// can log in, they just cannot reach course material until approved.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusSuspended:
		return ErrUserSuspended
	case UserStatusRejected:
		return ErrUserRejected
	case UserStatusArchived:
		return ErrUserArchived
	default:
		return nil
	}
}
