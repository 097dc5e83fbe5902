package auth_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteCreateCourseGrants = `CREATE TABLE course_grants (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    granted_by TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

func setupCourseGrantsRepo(t *testing.T) (auth.CourseGrants, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateCourseGrants)
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return auth.NewCourseGrantsRepository(bunDB), cleanup
}

func grantCourseIDs(grants []*auth.CourseGrant) []string {
	ids := make([]string, 0, len(grants))
	for _, g := range grants {
		ids = append(ids, g.CourseID)
	}
	return ids
}

func TestCourseGrantsReplaceForUser(t *testing.T) {
	repo, cleanup := setupCourseGrantsRepo(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.New()

	grants, err := repo.ReplaceForUser(ctx, userID, []string{"course-algebra", "course-geometry"}, "admin-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"course-algebra", "course-geometry"}, grantCourseIDs(grants))

	// replace swaps the whole set, it never merges
	grants, err = repo.ReplaceForUser(ctx, userID, []string{"course-physics"}, "admin-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"course-physics"}, grantCourseIDs(grants))

	stored, err := repo.ListForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "course-physics", stored[0].CourseID)
	assert.Equal(t, "admin-2", stored[0].GrantedBy)
}

func TestCourseGrantsReplaceForUserDeduplicates(t *testing.T) {
	repo, cleanup := setupCourseGrantsRepo(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.New()

	grants, err := repo.ReplaceForUser(ctx, userID, []string{"course-algebra", "course-algebra", "", "course-geometry"}, "admin-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"course-algebra", "course-geometry"}, grantCourseIDs(grants))
}

func TestCourseGrantsReplaceForUserEmptyClears(t *testing.T) {
	repo, cleanup := setupCourseGrantsRepo(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.ReplaceForUser(ctx, userID, []string{"course-algebra"}, "admin-1")
	require.NoError(t, err)

	grants, err := repo.ReplaceForUser(ctx, userID, nil, "admin-1")
	require.NoError(t, err)
	assert.Empty(t, grants)

	stored, err := repo.ListForUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCourseGrantsScopedToUser(t *testing.T) {
	repo, cleanup := setupCourseGrantsRepo(t)
	defer cleanup()

	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	_, err := repo.ReplaceForUser(ctx, alice, []string{"course-algebra"}, "admin-1")
	require.NoError(t, err)
	_, err = repo.ReplaceForUser(ctx, bob, []string{"course-geometry"}, "admin-1")
	require.NoError(t, err)

	// clearing alice must not touch bob
	_, err = repo.ReplaceForUser(ctx, alice, nil, "admin-1")
	require.NoError(t, err)

	stored, err := repo.ListForUser(ctx, bob)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "course-geometry", stored[0].CourseID)
}

func TestCourseGrantsRoleProviderProjectsGrants(t *testing.T) {
	repo, cleanup := setupCourseGrantsRepo(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.ReplaceForUser(ctx, userID, []string{"course-algebra", "course-geometry"}, "admin-1")
	require.NoError(t, err)

	provider := auth.NewCourseGrantsRoleProvider(repo, nil)

	identity := &mockIdentity{
		id:       userID.String(),
		username: "tester",
		email:    "tester@example.com",
		role:     string(auth.RoleStudent),
	}

	roles, err := provider.FindResourceRoles(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"course-algebra":  "student",
		"course-geometry": "student",
	}, roles)
}

func TestCourseGrantsRoleProviderSkipsNonUUIDIdentity(t *testing.T) {
	repo, cleanup := setupCourseGrantsRepo(t)
	defer cleanup()

	provider := auth.NewCourseGrantsRoleProvider(repo, nil)

	roles, err := provider.FindResourceRoles(context.Background(), &mockIdentity{id: "external|abc123"})
	require.NoError(t, err)
	assert.Nil(t, roles)
}
