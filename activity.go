package auth

import (
	"context"
	"time"
)

// ActivityEventType names an auditable action in the auth flows.
type ActivityEventType string

const (
	ActivityEventUserStatusChanged    ActivityEventType = "user.status.changed"
	ActivityEventUserRegistered       ActivityEventType = "user.registered"
	ActivityEventEmailVerified        ActivityEventType = "user.email.verified"
	ActivityEventVerificationIssued   ActivityEventType = "user.verification.issued"
	ActivityEventAccountApproved      ActivityEventType = "user.account.approved"
	ActivityEventAccountRejected      ActivityEventType = "user.account.rejected"
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventSocialLogin          ActivityEventType = "auth.social.login"
	ActivityEventImpersonationSuccess ActivityEventType = "auth.impersonation.success"
	ActivityEventImpersonationFailure ActivityEventType = "auth.impersonation.failure"
	ActivityEventSetupCompleted       ActivityEventType = "auth.setup.completed"
)

// ActivityEvent is the audit record emitted by login, registration,
// verification, and lifecycle transitions.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives activity events. Implementations decide where
// they go: database table, metrics counter, log stream.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to ActivitySink.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error { return nil }

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
