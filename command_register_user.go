package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// FeatureGate answers whether a feature is enabled for the current
// request. Matches the go-featuregate resolver surface.
type FeatureGate interface {
	Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error)
}

type RegisterUserMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Password  string `json:"password"`
	UseHashid bool
	OnResponse func(u *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates the account in the pending state and kicks
// off the email challenge. The account stays pending until an admin
// approves it, regardless of email verification.
type RegisterUserHandler struct {
	repo        RepositoryManager
	verifier    EmailVerifier
	featureGate FeatureGate
}

func NewRegisterUserHandler(repo RepositoryManager, verifier EmailVerifier) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		verifier: verifier,
	}
}

// WithFeatureGate gates self-registration behind the signup feature flag.
func (h *RegisterUserHandler) WithFeatureGate(featureGate FeatureGate) *RegisterUserHandler {
	h.featureGate = featureGate
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if h.featureGate != nil {
		enabled, err := h.featureGate.Enabled(ctx, gate.FeatureUsersSignup)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve signup feature gate")
		}
		if !enabled {
			return ErrSignupDisabled
		}
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email); err == nil && existing != nil {
			return ErrDuplicateIdentifier.WithMetadata(map[string]any{
				"email": event.Email,
			})
		} else if err != nil && !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing user")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Username = getUsername(event.Username, event.Email)
		if role, ok := ParseRole(event.Role); ok {
			user.Role = role
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if h.verifier != nil {
		if _, err := h.verifier.IssueCode(ctx, user); err != nil {
			return err
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
