package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultVerificationTTL is how long a code stays valid after issue.
	DefaultVerificationTTL = 10 * time.Minute
	// DefaultResendCooldown is the minimum gap between two code emails.
	DefaultResendCooldown = 60 * time.Second
	// DefaultCodeDigits is the length of the numeric code.
	DefaultCodeDigits = 6
)

// EmailVerifier drives the one-time code flow: issue a code at
// registration, resend on request, and flip is_email_verified on a match.
type EmailVerifier interface {
	IssueCode(ctx context.Context, user *User) (*VerificationCode, error)
	Resend(ctx context.Context, user *User) (*VerificationCode, error)
	Verify(ctx context.Context, user *User, code string) error
}

type emailVerifier struct {
	repo         RepositoryManager
	mailer       Mailer
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
	ttl          time.Duration
	cooldown     time.Duration
	digits       int
}

var _ EmailVerifier = (*emailVerifier)(nil)

type VerifierOption func(*emailVerifier)

func WithVerifierMailer(m Mailer) VerifierOption {
	return func(v *emailVerifier) {
		v.mailer = normalizeMailer(m)
	}
}

func WithVerifierLogger(logger Logger) VerifierOption {
	return func(v *emailVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithVerifierActivitySink(sink ActivitySink) VerifierOption {
	return func(v *emailVerifier) {
		v.activitySink = normalizeActivitySink(sink)
	}
}

// WithVerifierClock injects a custom clock (useful for tests).
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *emailVerifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

func WithVerifierTTL(ttl time.Duration) VerifierOption {
	return func(v *emailVerifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

func WithVerifierCooldown(cooldown time.Duration) VerifierOption {
	return func(v *emailVerifier) {
		if cooldown > 0 {
			v.cooldown = cooldown
		}
	}
}

func NewEmailVerifier(repo RepositoryManager, opts ...VerifierOption) EmailVerifier {
	v := &emailVerifier{
		repo:         repo,
		mailer:       NoopMailer{},
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
		ttl:          DefaultVerificationTTL,
		cooldown:     DefaultResendCooldown,
		digits:       DefaultCodeDigits,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

func (v *emailVerifier) IssueCode(ctx context.Context, user *User) (*VerificationCode, error) {
	if user == nil || user.ID == uuid.Nil {
		return nil, goerrors.New("cannot issue verification code without a user", goerrors.CategoryBadInput)
	}

	code, err := generateNumericCode(v.digits)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	now := v.now()
	record := &VerificationCode{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: now.Add(v.ttl),
		CreatedAt: now,
	}

	record, err = v.repo.VerificationCodes().Issue(ctx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification code")
	}

	v.dispatchCode(ctx, user, record)

	v.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventVerificationIssued,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"expires_at": record.ExpiresAt,
		},
	})

	return record, nil
}

func (v *emailVerifier) Resend(ctx context.Context, user *User) (*VerificationCode, error) {
	if user == nil {
		return nil, goerrors.New("cannot resend verification code without a user", goerrors.CategoryBadInput)
	}

	latest, err := v.repo.VerificationCodes().GetLatestByUser(ctx, user.ID)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}

	if latest != nil {
		elapsed := v.now().Sub(latest.CreatedAt)
		if elapsed < v.cooldown {
			return nil, ErrResendCooldown.WithMetadata(map[string]any{
				"retry_in_seconds": int((v.cooldown - elapsed).Seconds()),
			})
		}
	}

	return v.IssueCode(ctx, user)
}

func (v *emailVerifier) Verify(ctx context.Context, user *User, code string) error {
	if user == nil {
		return ErrCodeInvalid
	}

	now := v.now()

	return v.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		latest, err := v.repo.VerificationCodes().GetLatestByUserTx(ctx, tx, user.ID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrCodeInvalid
			}
			return err
		}

		if latest.ConsumedAt != nil || latest.Code != code {
			return ErrCodeInvalid
		}

		if !now.Before(latest.ExpiresAt) {
			return ErrCodeExpired
		}

		consumed, err := v.repo.VerificationCodes().ConsumeTx(ctx, tx, latest.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrCodeInvalid
		}

		if err := v.repo.Users().MarkEmailVerifiedTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
		}

		user.EmailValidated = true

		v.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventEmailVerified,
			UserID:    user.ID.String(),
		})

		return nil
	})
}

func (v *emailVerifier) dispatchCode(ctx context.Context, user *User, record *VerificationCode) {
	mailer := normalizeMailer(v.mailer)
	subject := "Your verification code"
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		record.Code,
		int(v.ttl.Minutes()),
	)

	if err := mailer.Send(ctx, user.Email, subject, body); err != nil {
		v.logger.Error("verification mail to %s failed: %v", user.Email, err)
	}
}

func (v *emailVerifier) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = v.now()
	}

	sink := normalizeActivitySink(v.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		v.logger.Warn("verifier activity sink error: %v", err)
	}
}

func generateNumericCode(digits int) (string, error) {
	if digits <= 0 {
		digits = DefaultCodeDigits
	}

	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}
