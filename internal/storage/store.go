// internal/storage/store.go
package storage

import (
	"context"
	"time"

	"suitability-pipeline/internal/models"
)

// CaseStore is the durable persistence boundary for questionnaires, work
// items, and recommendation results. Claim and advance serialization lives
// here: ClaimWorkItem is an atomic check-and-set on the assigned reviewer,
// and UpdateWorkItem enforces an optimistic version check so a stage
// transitions exactly once per decision. Listing reads are snapshots and may
// be eventually consistent with in-flight writes.
type CaseStore interface {
	// SaveQuestionnaire persists a newly scored questionnaire and flips any
	// previous questionnaire for the same customer to non-latest.
	SaveQuestionnaire(ctx context.Context, q *models.Questionnaire) error
	QuestionnaireByID(ctx context.Context, id string) (*models.Questionnaire, error)
	LatestQuestionnaire(ctx context.Context, customerID string) (*models.Questionnaire, error)
	QuestionnaireHistory(ctx context.Context, customerID string) ([]*models.Questionnaire, error)
	// UpdateQuestionnaireScore replaces score, category, and breakdown in
	// place (the explicit recalculation operation).
	UpdateQuestionnaireScore(ctx context.Context, id string, score int, category models.RiskCategory, breakdown models.ScoreBreakdown) error

	CreateWorkItem(ctx context.Context, item *models.WorkItem) error
	WorkItemByID(ctx context.Context, id string) (*models.WorkItem, error)
	// ClaimWorkItem assigns the reviewer if the item is unassigned. Claiming
	// an item already held by the same reviewer succeeds; a different holder
	// fails with ALREADY_CLAIMED. At most one concurrent claimer wins.
	ClaimWorkItem(ctx context.Context, id, reviewerID string) (*models.WorkItem, error)
	// UpdateWorkItem writes the item's mutable fields and appended decisions,
	// guarded by expectedVersion; a mismatch fails with STALE_VERSION and the
	// stored item is untouched. On success the item's version is bumped.
	UpdateWorkItem(ctx context.Context, item *models.WorkItem, expectedVersion int64) error
	// PendingWorkItems lists items at one pending status, highest priority
	// first and FIFO by creation time within equal priority.
	PendingWorkItems(ctx context.Context, status models.Status) ([]*models.WorkItem, error)
	WorkItemsByReviewer(ctx context.Context, reviewerID string) ([]*models.WorkItem, error)
	// OverdueWorkItems lists non-terminal items whose SLA deadline has passed.
	OverdueWorkItems(ctx context.Context, now time.Time) ([]*models.WorkItem, error)
	CountWorkItemsByStatus(ctx context.Context) (map[models.Status]int, error)

	// SaveRecommendation persists a result and flips any previous result for
	// the same customer to non-latest.
	SaveRecommendation(ctx context.Context, r *models.RecommendationResult) error
	LatestRecommendation(ctx context.Context, customerID string) (*models.RecommendationResult, error)
	RecommendationHistory(ctx context.Context, customerID string) ([]*models.RecommendationResult, error)
}
