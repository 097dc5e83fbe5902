package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CourseGrants stores which courses a user may access. The approval gate
// writes the full set at once: ReplaceForUser swaps the user's grants for
// exactly the provided course IDs, it never merges.
type CourseGrants interface {
	repository.Repository[*CourseGrant]

	ListForUser(ctx context.Context, userID uuid.UUID) ([]*CourseGrant, error)
	ListForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*CourseGrant, error)
	ReplaceForUser(ctx context.Context, userID uuid.UUID, courseIDs []string, grantedBy string) ([]*CourseGrant, error)
	ReplaceForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, courseIDs []string, grantedBy string) ([]*CourseGrant, error)
}

type courseGrants struct {
	repository.Repository[*CourseGrant]
	db *bun.DB
}

var _ CourseGrants = (*courseGrants)(nil)

func NewCourseGrantsRepository(db *bun.DB) CourseGrants {
	repo := repository.NewRepository[*CourseGrant](db, repository.ModelHandlers[*CourseGrant]{
		NewRecord: func() *CourseGrant { return &CourseGrant{} },
		GetID: func(g *CourseGrant) uuid.UUID {
			if g == nil {
				return uuid.Nil
			}
			return g.ID
		},
		SetID: func(g *CourseGrant, id uuid.UUID) {
			if g != nil {
				g.ID = id
			}
		},
	})

	return &courseGrants{
		Repository: repo,
		db:         db,
	}
}

func (r *courseGrants) ListForUser(ctx context.Context, userID uuid.UUID) ([]*CourseGrant, error) {
	return r.ListForUserTx(ctx, r.db, userID)
}

func (r *courseGrants) ListForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*CourseGrant, error) {
	var records []*CourseGrant
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *courseGrants) ReplaceForUser(ctx context.Context, userID uuid.UUID, courseIDs []string, grantedBy string) ([]*CourseGrant, error) {
	return r.ReplaceForUserTx(ctx, r.db, userID, courseIDs, grantedBy)
}

func (r *courseGrants) ReplaceForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, courseIDs []string, grantedBy string) ([]*CourseGrant, error) {
	_, err := tx.NewDelete().
		Model((*CourseGrant)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if len(courseIDs) == 0 {
		return []*CourseGrant{}, nil
	}

	records := make([]*CourseGrant, 0, len(courseIDs))
	seen := make(map[string]struct{}, len(courseIDs))
	for _, courseID := range courseIDs {
		if courseID == "" {
			continue
		}
		if _, dup := seen[courseID]; dup {
			continue
		}
		seen[courseID] = struct{}{}

		records = append(records, &CourseGrant{
			ID:        uuid.New(),
			UserID:    userID,
			CourseID:  courseID,
			GrantedBy: grantedBy,
		})
	}

	if len(records) == 0 {
		return records, nil
	}

	_, err = tx.NewInsert().
		Model(&records).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// CourseGrantsRoleProvider projects a user's grants into the resource role
// map embedded in session tokens.
type CourseGrantsRoleProvider struct {
	grants CourseGrants
	logger Logger
}

var _ ResourceRoleProvider = (*CourseGrantsRoleProvider)(nil)

func NewCourseGrantsRoleProvider(grants CourseGrants, logger Logger) *CourseGrantsRoleProvider {
	if logger == nil {
		logger = defLogger{}
	}
	return &CourseGrantsRoleProvider{
		grants: grants,
		logger: logger,
	}
}

func (p *CourseGrantsRoleProvider) FindResourceRoles(ctx context.Context, identity Identity) (map[string]string, error) {
	if identity == nil || p.grants == nil {
		return nil, nil
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		p.logger.Warn("resource roles: identity ID is not a UUID: %s", identity.ID())
		return nil, nil
	}

	records, err := p.grants.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	roles := make(map[string]string, len(records))
	for _, record := range records {
		roles[record.CourseID] = identity.Role()
	}

	return roles, nil
}
