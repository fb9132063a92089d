// internal/authz/authz.go

// Package authz decides whether a reviewer may act at a review stage. Stage
// gating is by role: each pending stage maps to exactly one reviewer role,
// and admins may act at any stage.
package authz

import (
	"context"

	"suitability-pipeline/internal/models"
)

// Role is a reviewer's authorization level.
type Role string

const (
	RoleJuniorReviewer Role = "JUNIOR_REVIEWER"
	RoleMidReviewer    Role = "MID_REVIEWER"
	RoleSeniorReviewer Role = "SENIOR_REVIEWER"
	RoleCommittee      Role = "COMMITTEE"
	RoleAdmin          Role = "ADMIN"
)

// RoleForStage returns the role required to decide at a stage.
func RoleForStage(stage models.Stage) Role {
	switch stage {
	case models.StageJunior:
		return RoleJuniorReviewer
	case models.StageMid:
		return RoleMidReviewer
	case models.StageSenior:
		return RoleSeniorReviewer
	case models.StageCommittee:
		return RoleCommittee
	default:
		return ""
	}
}

// Authorizer answers whether a reviewer can decide at a stage. Implementations
// must treat an unknown reviewer as unauthorized, not as an error.
type Authorizer interface {
	CanReview(ctx context.Context, reviewerID string, stage models.Stage) (bool, error)
}

// StaticAuthorizer resolves roles from a fixed reviewer-to-role map. Suitable
// for tests and single-tenant deployments with a handful of reviewers.
type StaticAuthorizer struct {
	roles map[string]Role
}

func NewStaticAuthorizer(roles map[string]Role) *StaticAuthorizer {
	copied := make(map[string]Role, len(roles))
	for k, v := range roles {
		copied[k] = v
	}
	return &StaticAuthorizer{roles: copied}
}

func (a *StaticAuthorizer) CanReview(_ context.Context, reviewerID string, stage models.Stage) (bool, error) {
	role, ok := a.roles[reviewerID]
	if !ok {
		return false, nil
	}
	return role == RoleAdmin || role == RoleForStage(stage), nil
}
