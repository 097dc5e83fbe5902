package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	VerificationCodes() VerificationCodes
	CourseGrants() CourseGrants
}

type mngr struct {
	db            *bun.DB
	users         Users
	verifications VerificationCodes
	courseGrants  CourseGrants
}

func NewRepositoryManager(db *bun.DB, opts ...UsersOption) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db, opts...),
		verifications: NewVerificationCodesRepository(db),
		courseGrants:  NewCourseGrantsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.verifications == nil {
		return errors.New("repository verificationCodes should be initialized")
	}

	if m.courseGrants == nil {
		return errors.New("repository courseGrants should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) VerificationCodes() VerificationCodes {
	return m.verifications
}

func (m mngr) CourseGrants() CourseGrants {
	return m.courseGrants
}
