package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteCreateUsersTable = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    user_role TEXT NOT NULL,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    username TEXT NOT NULL UNIQUE,
    profile_picture TEXT,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    is_email_verified BOOLEAN DEFAULT FALSE,
    status TEXT NOT NULL,
    login_attempts INTEGER DEFAULT 0,
    login_attempt_at TIMESTAMP NULL,
    loggedin_at TIMESTAMP NULL,
    suspended_at TIMESTAMP NULL,
    approved_at TIMESTAMP NULL,
    metadata TEXT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP NULL
);`

func setupVerifierEnv(t *testing.T) (auth.RepositoryManager, *auth.User, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateUsersTable)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateVerificationCodes)
	require.NoError(t, err)

	repo := auth.NewRepositoryManager(bunDB)

	user, err := repo.Users().Create(context.Background(), &auth.User{
		ID:        uuid.New(),
		Role:      auth.RoleStudent,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "ada.lovelace",
		Email:     "ada@example.com",
		Status:    auth.UserStatusPending,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return repo, user, cleanup
}

func TestVerifierIssueCodeSendsMailAndRecordsActivity(t *testing.T) {
	repo, user, cleanup := setupVerifierEnv(t)
	defer cleanup()

	base := time.Now().UTC().Truncate(time.Second)
	sink := &capturingSink{}

	var sentTo, sentBody string
	verifier := auth.NewEmailVerifier(repo,
		auth.WithVerifierClock(func() time.Time { return base }),
		auth.WithVerifierActivitySink(sink),
		auth.WithVerifierMailer(auth.MailerFunc(func(ctx context.Context, to, subject, body string) error {
			sentTo = to
			sentBody = body
			return nil
		})),
	)

	record, err := verifier.IssueCode(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Len(t, record.Code, auth.DefaultCodeDigits)
	assert.Equal(t, base.Add(auth.DefaultVerificationTTL), record.ExpiresAt)
	assert.Equal(t, user.ID, record.UserID)

	assert.Equal(t, user.Email, sentTo)
	assert.Contains(t, sentBody, record.Code)

	require.Len(t, sink.events, 1)
	assert.Equal(t, auth.ActivityEventVerificationIssued, sink.events[0].EventType)
	assert.Equal(t, user.ID.String(), sink.events[0].UserID)
}

func TestVerifierIssueCodeRequiresUser(t *testing.T) {
	repo, _, cleanup := setupVerifierEnv(t)
	defer cleanup()

	verifier := auth.NewEmailVerifier(repo)

	_, err := verifier.IssueCode(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a user")
}

func TestVerifierVerifyHappyPath(t *testing.T) {
	repo, user, cleanup := setupVerifierEnv(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	sink := &capturingSink{}

	verifier := auth.NewEmailVerifier(repo,
		auth.WithVerifierClock(func() time.Time { return base }),
		auth.WithVerifierActivitySink(sink),
	)

	record, err := verifier.IssueCode(ctx, user)
	require.NoError(t, err)

	require.NoError(t, verifier.Verify(ctx, user, record.Code))
	assert.True(t, user.EmailValidated)

	stored, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.EmailValidated)

	var verified bool
	for _, evt := range sink.events {
		if evt.EventType == auth.ActivityEventEmailVerified {
			verified = true
		}
	}
	assert.True(t, verified)

	// the code is single use
	err = verifier.Verify(ctx, user, record.Code)
	assert.ErrorIs(t, err, auth.ErrCodeInvalid)
}

func TestVerifierVerifyWrongCodeLeavesChallengeLive(t *testing.T) {
	repo, user, cleanup := setupVerifierEnv(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	verifier := auth.NewEmailVerifier(repo,
		auth.WithVerifierClock(func() time.Time { return base }),
	)

	record, err := verifier.IssueCode(ctx, user)
	require.NoError(t, err)

	wrong := "000000"
	if record.Code == wrong {
		wrong = "000001"
	}

	err = verifier.Verify(ctx, user, wrong)
	assert.ErrorIs(t, err, auth.ErrCodeInvalid)

	// a mismatch does not burn the live code
	require.NoError(t, verifier.Verify(ctx, user, record.Code))
}

func TestVerifierVerifyExpiry(t *testing.T) {
	repo, user, cleanup := setupVerifierEnv(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	now := base

	verifier := auth.NewEmailVerifier(repo,
		auth.WithVerifierClock(func() time.Time { return now }),
		auth.WithVerifierTTL(10*time.Minute),
	)

	record, err := verifier.IssueCode(ctx, user)
	require.NoError(t, err)

	t.Run("Expired exactly at the deadline", func(t *testing.T) {
		now = base.Add(10 * time.Minute)
		err := verifier.Verify(ctx, user, record.Code)
		assert.ErrorIs(t, err, auth.ErrCodeExpired)
	})

	t.Run("Valid just before the deadline", func(t *testing.T) {
		now = base.Add(10*time.Minute - time.Second)
		require.NoError(t, verifier.Verify(ctx, user, record.Code))
	})
}

func TestVerifierVerifyWithoutChallenge(t *testing.T) {
	repo, user, cleanup := setupVerifierEnv(t)
	defer cleanup()

	verifier := auth.NewEmailVerifier(repo)

	err := verifier.Verify(context.Background(), user, "123456")
	assert.ErrorIs(t, err, auth.ErrCodeInvalid)

	err = verifier.Verify(context.Background(), nil, "123456")
	assert.ErrorIs(t, err, auth.ErrCodeInvalid)
}

func TestVerifierResendCooldown(t *testing.T) {
	repo, user, cleanup := setupVerifierEnv(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	now := base

	verifier := auth.NewEmailVerifier(repo,
		auth.WithVerifierClock(func() time.Time { return now }),
		auth.WithVerifierCooldown(60*time.Second),
	)

	first, err := verifier.IssueCode(ctx, user)
	require.NoError(t, err)

	now = base.Add(10 * time.Second)
	_, err = verifier.Resend(ctx, user)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "VERIFICATION_RESEND_COOLDOWN", richErr.TextCode)
	assert.Equal(t, 50, richErr.Metadata["retry_in_seconds"])

	now = base.Add(61 * time.Second)
	second, err := verifier.Resend(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, second)

	// the fresh code supersedes the original
	consumed, err := repo.VerificationCodes().Consume(ctx, first.ID, now)
	require.NoError(t, err)
	assert.False(t, consumed)

	require.NoError(t, verifier.Verify(ctx, user, second.Code))
}
