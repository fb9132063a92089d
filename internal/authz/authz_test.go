// internal/authz/authz_test.go
package authz

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

func TestRoleForStage(t *testing.T) {
	assert.Equal(t, RoleJuniorReviewer, RoleForStage(models.StageJunior))
	assert.Equal(t, RoleMidReviewer, RoleForStage(models.StageMid))
	assert.Equal(t, RoleSeniorReviewer, RoleForStage(models.StageSenior))
	assert.Equal(t, RoleCommittee, RoleForStage(models.StageCommittee))
}

func TestStaticAuthorizer(t *testing.T) {
	auth := NewStaticAuthorizer(map[string]Role{
		"rev-jr":  RoleJuniorReviewer,
		"rev-sr":  RoleSeniorReviewer,
		"rev-adm": RoleAdmin,
	})
	ctx := context.Background()

	ok, err := auth.CanReview(ctx, "rev-jr", models.StageJunior)
	require.NoError(t, err)
	assert.True(t, ok)

	// Role bound to one stage only.
	ok, err = auth.CanReview(ctx, "rev-jr", models.StageSenior)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = auth.CanReview(ctx, "rev-sr", models.StageJunior)
	require.NoError(t, err)
	assert.False(t, ok)

	// Admin clears every stage.
	for _, stage := range []models.Stage{models.StageJunior, models.StageMid, models.StageSenior, models.StageCommittee} {
		ok, err = auth.CanReview(ctx, "rev-adm", stage)
		require.NoError(t, err)
		assert.True(t, ok, "admin rejected at %s", stage)
	}

	// Unknown reviewer is unauthorized, not an error.
	ok, err = auth.CanReview(ctx, "nobody", models.StageJunior)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresAuthorizer_CachesRoleLookups(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mock.ExpectQuery("SELECT role FROM reviewers").
		WithArgs("rev-mid").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("MID_REVIEWER"))

	auth := NewPostgresAuthorizer(db, rdb, time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	ok, err := auth.CanReview(ctx, "rev-mid", models.StageMid)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second check is answered from the cache; no second query expected.
	ok, err = auth.CanReview(ctx, "rev-mid", models.StageMid)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = auth.CanReview(ctx, "rev-mid", models.StageCommittee)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuthorizer_UnknownReviewerCachedNegative(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mock.ExpectQuery("SELECT role FROM reviewers").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	auth := NewPostgresAuthorizer(db, rdb, time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	ok, err := auth.CanReview(ctx, "ghost", models.StageJunior)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = auth.CanReview(ctx, "ghost", models.StageJunior)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
