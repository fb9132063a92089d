// internal/authz/postgres.go
package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

// PostgresAuthorizer resolves reviewer roles from the reviewers table, with a
// redis role cache in front of it. Roles change rarely; a short TTL keeps
// revocations timely without hitting the database on every decision.
type PostgresAuthorizer struct {
	db     *sql.DB
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewPostgresAuthorizer(db *sql.DB, rdb *redis.Client, ttl time.Duration, log logger.Logger) *PostgresAuthorizer {
	return &PostgresAuthorizer{
		db:     db,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "authz"}),
	}
}

func roleCacheKey(reviewerID string) string {
	return fmt.Sprintf("authz:role:%s", reviewerID)
}

func (a *PostgresAuthorizer) CanReview(ctx context.Context, reviewerID string, stage models.Stage) (bool, error) {
	role, err := a.roleFor(ctx, reviewerID)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}
	return role == RoleAdmin || role == RoleForStage(stage), nil
}

func (a *PostgresAuthorizer) roleFor(ctx context.Context, reviewerID string) (Role, error) {
	key := roleCacheKey(reviewerID)

	if a.redis != nil {
		cached, err := a.redis.Get(ctx, key).Result()
		if err == nil {
			return Role(cached), nil
		}
		if err != redis.Nil {
			a.logger.Warn("role cache read failed", map[string]interface{}{
				"reviewerId": reviewerID,
				"error":      err.Error(),
			})
		}
	}

	var role string
	err := a.db.QueryRowContext(ctx,
		`SELECT role FROM reviewers WHERE id = $1 AND active`, reviewerID).Scan(&role)
	if err == sql.ErrNoRows {
		// Unknown reviewers are cached too, as the empty role, so repeated
		// attempts from a bad id do not hammer the database.
		role = ""
	} else if err != nil {
		return "", errors.NewDatabaseQueryFailed("reviewer role lookup", err)
	}

	if a.redis != nil {
		if err := a.redis.Set(ctx, key, role, a.ttl).Err(); err != nil {
			a.logger.Warn("role cache write failed", map[string]interface{}{
				"reviewerId": reviewerID,
				"error":      err.Error(),
			})
		}
	}
	return Role(role), nil
}
