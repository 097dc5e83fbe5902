package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type CompleteSetupMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	OnResponse func(u *User)
}

func (e CompleteSetupMessage) Type() string { return "user.complete_setup" }

// CompleteSetupResponse reports whether an email address already finished
// local credential setup. Drives the client's login-vs-setup decision.
type CompleteSetupResponse struct {
	Found    bool `json:"found"`
	HasSetup bool `json:"has_setup"`
}

type CheckSetupMessage struct {
	Email      string `json:"email"`
	OnResponse func(r *CompleteSetupResponse)
}

func (e CheckSetupMessage) Type() string { return "user.check_setup" }

// CompleteSetupHandler finishes account setup for identities that arrived
// through the external provider bridge: roster imports and OAuth sign-ins
// land without local credentials. The user ID is derived from the email so
// both paths converge on the same record.
type CompleteSetupHandler struct {
	repo RepositoryManager
}

func NewCompleteSetupHandler(repo RepositoryManager) *CompleteSetupHandler {
	return &CompleteSetupHandler{repo: repo}
}

func (h *CompleteSetupHandler) Execute(ctx context.Context, event CompleteSetupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account setup")
	default:
		return h.execute(ctx, event)
	}
}

func (h *CompleteSetupHandler) execute(ctx context.Context, event CompleteSetupMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		record := &User{
			Email:     event.Email,
			FirstName: event.FirstName,
			LastName:  event.LastName,
			Username:  getUsername("", event.Email),
		}
		if id, err := hashid.NewUUID(event.Email); err == nil {
			record.ID = id
		}

		if user, err = h.repo.Users().GetOrCreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not resolve user for setup")
		}

		// provider identities are pre-verified, the credential update
		// flips is_email_verified alongside the hash
		if err := h.repo.Users().SetCredentialsTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store credentials")
		}

		user.PasswordHash = hash
		user.EmailValidated = true

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account setup transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

// CheckSetupHandler answers whether an account exists and already holds
// local credentials.
type CheckSetupHandler struct {
	repo RepositoryManager
}

func NewCheckSetupHandler(repo RepositoryManager) *CheckSetupHandler {
	return &CheckSetupHandler{repo: repo}
}

func (h *CheckSetupHandler) Execute(ctx context.Context, event CheckSetupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during setup check")
	default:
		return h.execute(ctx, event)
	}
}

func (h *CheckSetupHandler) execute(ctx context.Context, event CheckSetupMessage) error {
	resp := &CompleteSetupResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Email)
	if err != nil {
		// unknown emails are part of the expected flow, not an application error
		if goerrors.IsNotFound(err) {
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during setup check")
	}

	resp.Found = true
	resp.HasSetup = user.PasswordHash != ""

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
