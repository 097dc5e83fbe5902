package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ApproveAccountMessage struct {
	UserID     string   `json:"user_id"`
	Approve    bool     `json:"approve"`
	CourseIDs  []string `json:"course_ids"`
	ActorID    string   `json:"-"`
	Reason     string   `json:"reason"`
	OnResponse func(r *ApproveAccountResponse)
}

func (e ApproveAccountMessage) Type() string { return "user.approval" }

type ApproveAccountResponse struct {
	User   *User          `json:"user"`
	Grants []*CourseGrant `json:"grants"`
}

// ApproveAccountHandler applies an admin's approval decision. Approval
// activates the account and replaces the grant set with exactly the course
// IDs in the message; omitted courses are revoked. Rejection clears all
// grants. Both happen in one transaction.
type ApproveAccountHandler struct {
	repo         RepositoryManager
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

type ApproveAccountOption func(*ApproveAccountHandler)

func WithApprovalActivitySink(sink ActivitySink) ApproveAccountOption {
	return func(h *ApproveAccountHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

func WithApprovalLogger(logger Logger) ApproveAccountOption {
	return func(h *ApproveAccountHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithApprovalClock(clock func() time.Time) ApproveAccountOption {
	return func(h *ApproveAccountHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

func NewApproveAccountHandler(repo RepositoryManager, opts ...ApproveAccountOption) *ApproveAccountHandler {
	h := &ApproveAccountHandler{
		repo:         repo,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

func (h *ApproveAccountHandler) Execute(ctx context.Context, event ApproveAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account approval")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ApproveAccountHandler) execute(ctx context.Context, event ApproveAccountMessage) error {
	resp := &ApproveAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.New("user id is not a valid UUID", goerrors.CategoryBadInput).
			WithTextCode("INVALID_USER_ID").
			WithMetadata(map[string]any{"user_id": event.UserID})
	}

	var from, to UserStatus

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, userID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryNotFound, "user not found")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for approval")
		}

		user.EnsureStatus()
		from = user.Status

		target := UserStatusRejected
		if event.Approve {
			target = UserStatusActive
		}
		to = target

		if err := validateApprovalTransition(from, target); err != nil {
			return err
		}

		statusOpts := []StatusUpdateOption{}
		if target == UserStatusActive {
			now := h.now()
			statusOpts = append(statusOpts, WithApprovedAt(&now))
		}

		updated, err := h.repo.Users().UpdateStatusTx(ctx, tx, user.ID, target, statusOpts...)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user status")
		}

		courseIDs := event.CourseIDs
		if !event.Approve {
			courseIDs = nil
		}

		grants, err := h.repo.CourseGrants().ReplaceForUserTx(ctx, tx, user.ID, courseIDs, event.ActorID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace course grants")
		}

		user.Status = target
		if updated != nil && updated.ApprovedAt != nil {
			user.ApprovedAt = updated.ApprovedAt
		}

		resp.User = user
		resp.Grants = grants

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account approval transaction failed")
	}

	h.recordDecision(ctx, event, from, to)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// validateApprovalTransition mirrors the lifecycle rules: approval works
// from pending or rejected (and is a no-op from active, so re-submitting a
// decision with a new grant set works), rejection only from pending.
func validateApprovalTransition(from, target UserStatus) error {
	if from == target {
		return nil
	}

	switch target {
	case UserStatusActive:
		if from == UserStatusPending || from == UserStatusRejected {
			return nil
		}
	case UserStatusRejected:
		if from == UserStatusPending {
			return nil
		}
	}

	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from": from,
		"to":   target,
	})
}

func (h *ApproveAccountHandler) recordDecision(ctx context.Context, event ApproveAccountMessage, from, to UserStatus) {
	eventType := ActivityEventAccountRejected
	if event.Approve {
		eventType = ActivityEventAccountApproved
	}

	metadata := map[string]any{}
	if event.Approve {
		metadata["course_ids"] = event.CourseIDs
	}
	if event.Reason != "" {
		metadata["reason"] = event.Reason
	}

	sink := normalizeActivitySink(h.activitySink)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: event.ActorID, Type: "user"},
		UserID:     event.UserID,
		FromStatus: from,
		ToStatus:   to,
		Metadata:   metadata,
		OccurredAt: h.now(),
	}); err != nil {
		h.logger.Warn("approval activity sink error: %v", err)
	}
}
