package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationCodes stores the one-time email codes. A user has at most one
// live code: issuing a new one supersedes whatever was outstanding.
type VerificationCodes interface {
	repository.Repository[*VerificationCode]

	Issue(ctx context.Context, record *VerificationCode) (*VerificationCode, error)
	IssueTx(ctx context.Context, tx bun.IDB, record *VerificationCode) (*VerificationCode, error)
	GetLiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*VerificationCode, error)
	GetLiveByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, now time.Time) (*VerificationCode, error)
	GetLatestByUser(ctx context.Context, userID uuid.UUID) (*VerificationCode, error)
	GetLatestByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*VerificationCode, error)
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
}

type verificationCodes struct {
	repository.Repository[*VerificationCode]
	db *bun.DB
}

var _ VerificationCodes = (*verificationCodes)(nil)

func NewVerificationCodesRepository(db *bun.DB) VerificationCodes {
	repo := repository.NewRepository[*VerificationCode](db, repository.ModelHandlers[*VerificationCode]{
		NewRecord: func() *VerificationCode { return &VerificationCode{} },
		GetID: func(v *VerificationCode) uuid.UUID {
			if v == nil {
				return uuid.Nil
			}
			return v.ID
		},
		SetID: func(v *VerificationCode, id uuid.UUID) {
			if v != nil {
				v.ID = id
			}
		},
	})

	return &verificationCodes{
		Repository: repo,
		db:         db,
	}
}

func (r *verificationCodes) Issue(ctx context.Context, record *VerificationCode) (*VerificationCode, error) {
	return r.IssueTx(ctx, r.db, record)
}

// IssueTx consumes any live code the user still has before inserting the new
// one, so only the latest code can verify the email.
func (r *verificationCodes) IssueTx(ctx context.Context, tx bun.IDB, record *VerificationCode) (*VerificationCode, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now()
	if !record.CreatedAt.IsZero() {
		now = record.CreatedAt
	}

	_, err := tx.NewUpdate().
		Model((*VerificationCode)(nil)).
		Set("consumed_at = ?", now).
		Where("user_id = ?", record.UserID).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *verificationCodes) GetLiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*VerificationCode, error) {
	return r.GetLiveByUserTx(ctx, r.db, userID, now)
}

func (r *verificationCodes) GetLiveByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, now time.Time) (*VerificationCode, error) {
	record := &VerificationCode{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.consumed_at IS NULL").
		Where("?TableAlias.expires_at > ?", now).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *verificationCodes) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*VerificationCode, error) {
	return r.GetLatestByUserTx(ctx, r.db, userID)
}

func (r *verificationCodes) GetLatestByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*VerificationCode, error) {
	record := &VerificationCode{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *verificationCodes) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.ConsumeTx(ctx, r.db, id, at)
}

// ConsumeTx marks the code used. The guard on consumed_at makes concurrent
// submissions of the same code race safely: only one caller gets true.
func (r *verificationCodes) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*VerificationCode)(nil)).
		Set("consumed_at = ?", at).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}
