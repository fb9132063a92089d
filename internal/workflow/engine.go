// internal/workflow/engine.go

// Package workflow moves work items through the four-stage review chain.
// Every operation runs synchronously to completion; claim and advance
// conflicts are serialized by the case store, not by locks held here.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"suitability-pipeline/internal/authz"
	"suitability-pipeline/internal/common/config"
	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/common/metrics"
	"suitability-pipeline/internal/models"
	"suitability-pipeline/internal/notify"
	"suitability-pipeline/internal/recommend"
	"suitability-pipeline/internal/storage"
)

// Recommender is the slice of the recommendation engine the workflow invokes
// on final approval.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*models.RecommendationResult, error)
}

// Statistics is a snapshot of the review queue for reporting.
type Statistics struct {
	ByStatus map[models.Status]int `json:"byStatus"`
	Pending  int                   `json:"pending"`
	Approved int                   `json:"approved"`
	Rejected int                   `json:"rejected"`
}

// Engine orchestrates work item state. The injected clock keeps SLA math
// deterministic in tests.
type Engine struct {
	store       storage.CaseStore
	authorizer  authz.Authorizer
	recommender Recommender
	notifier    notify.Notifier
	slaHours    config.SLAHours
	bands       config.PriorityBands
	now         func() time.Time
	logger      logger.Logger
}

func NewEngine(
	store storage.CaseStore,
	authorizer authz.Authorizer,
	recommender Recommender,
	notifier notify.Notifier,
	cfg config.WorkflowConfig,
	log logger.Logger,
) *Engine {
	return &Engine{
		store:       store,
		authorizer:  authorizer,
		recommender: recommender,
		notifier:    notifier,
		slaHours:    cfg.SLAHours,
		bands:       cfg.PriorityBands,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.WithFields(map[string]interface{}{"component": "workflow"}),
	}
}

// WithClock substitutes the engine's clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Create opens a work item at the junior stage for a scored questionnaire.
func (e *Engine) Create(ctx context.Context, customerID string, score int, category models.RiskCategory) (*models.WorkItem, error) {
	if score < 0 || score > 100 {
		return nil, errors.NewInvalidScore(score)
	}

	now := e.now()
	item := &models.WorkItem{
		ID:           uuid.NewString(),
		CustomerID:   customerID,
		Status:       models.StatusPendingJunior,
		Priority:     e.priorityFor(score),
		SLADeadline:  now.Add(e.slaFor(models.StageJunior)),
		RiskScore:    score,
		RiskCategory: category,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateWorkItem(ctx, item); err != nil {
		return nil, err
	}

	metrics.WorkItemsCreated.WithLabelValues(string(item.Priority)).Inc()
	e.logger.Info("work item created", map[string]interface{}{
		"workItemId": item.ID,
		"customerId": customerID,
		"score":      score,
		"priority":   item.Priority,
		"deadline":   item.SLADeadline,
	})
	return item, nil
}

// Claim assigns the work item to the reviewer. Claiming does not change the
// stage or the deadline; re-claiming an item you already hold is a no-op.
func (e *Engine) Claim(ctx context.Context, workItemID, reviewerID string) (*models.WorkItem, error) {
	item, err := e.store.WorkItemByID(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if item.Status.Terminal() {
		return nil, errors.NewTerminalState(workItemID, string(item.Status))
	}

	allowed, err := e.authorizer.CanReview(ctx, reviewerID, item.Status.Stage())
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errors.NewUnauthorized(reviewerID, string(item.Status.Stage()))
	}

	claimed, err := e.store.ClaimWorkItem(ctx, workItemID, reviewerID)
	if err != nil {
		if errors.HasCode(err, errors.CodeAlreadyClaimed) {
			metrics.ClaimConflicts.Inc()
		}
		return nil, err
	}
	return claimed, nil
}

// Advance records the reviewer's decision for the current stage and moves the
// item. Reject terminates from any stage; Approve steps to the next stage, or
// to Approved from Committee. On any non-terminal transition the assignment
// is cleared and the deadline recomputed for the new stage.
func (e *Engine) Advance(ctx context.Context, workItemID, reviewerID string, decision models.Decision, comment string) (*models.WorkItem, error) {
	item, err := e.store.WorkItemByID(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if item.Status.Terminal() {
		return nil, errors.NewTerminalState(workItemID, string(item.Status))
	}

	stage := item.Status.Stage()
	allowed, err := e.authorizer.CanReview(ctx, reviewerID, stage)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errors.NewUnauthorized(reviewerID, string(stage))
	}

	now := e.now()
	expectedVersion := item.Version
	item.Decisions = append(item.Decisions, models.StageDecision{
		Stage:      stage,
		ReviewerID: reviewerID,
		Decision:   decision,
		Comment:    comment,
		DecidedAt:  now,
	})

	switch decision {
	case models.DecisionReject:
		item.Status = models.StatusRejected
	case models.DecisionApprove:
		if next, ok := nextStage(stage); ok {
			item.Status = next.PendingStatus()
			item.ReviewerID = nil
			item.SLADeadline = now.Add(e.slaFor(next))
		} else {
			item.Status = models.StatusApproved
		}
	default:
		return nil, errors.NewInvalidInput("decision must be APPROVE or REJECT")
	}

	if err := e.store.UpdateWorkItem(ctx, item, expectedVersion); err != nil {
		return nil, err
	}

	metrics.StageTransitions.WithLabelValues(string(stage), string(decision)).Inc()
	e.logger.Info("work item advanced", map[string]interface{}{
		"workItemId": item.ID,
		"customerId": item.CustomerID,
		"stage":      stage,
		"decision":   decision,
		"reviewerId": reviewerID,
		"newStatus":  item.Status,
	})

	if item.Status.Terminal() {
		e.notifyDecision(ctx, item)
	}
	if item.Status == models.StatusApproved {
		// Approval is final once recorded; a recommendation failure is
		// reported, never rolled back into the review outcome.
		e.recommendForApproved(ctx, item)
	}
	return item, nil
}

// PendingAtStage lists unfinished items waiting at a stage, highest priority
// first and FIFO within equal priority.
func (e *Engine) PendingAtStage(ctx context.Context, stage models.Stage) ([]*models.WorkItem, error) {
	status := stage.PendingStatus()
	if status == "" {
		return nil, errors.NewInvalidInput("unknown stage: " + string(stage))
	}
	return e.store.PendingWorkItems(ctx, status)
}

// AssignedTo lists unfinished items held by a reviewer.
func (e *Engine) AssignedTo(ctx context.Context, reviewerID string) ([]*models.WorkItem, error) {
	return e.store.WorkItemsByReviewer(ctx, reviewerID)
}

// Overdue lists unfinished items past their SLA deadline. Breach is reported,
// never enforced; the item stays where it is.
func (e *Engine) Overdue(ctx context.Context) ([]*models.WorkItem, error) {
	return e.store.OverdueWorkItems(ctx, e.now())
}

// Stats summarizes the queue by status.
func (e *Engine) Stats(ctx context.Context) (*Statistics, error) {
	counts, err := e.store.CountWorkItemsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Statistics{ByStatus: counts}
	for status, n := range counts {
		switch status {
		case models.StatusApproved:
			stats.Approved += n
		case models.StatusRejected:
			stats.Rejected += n
		default:
			stats.Pending += n
		}
	}
	return stats, nil
}

func (e *Engine) notifyDecision(ctx context.Context, item *models.WorkItem) {
	approved := item.Status == models.StatusApproved
	if err := e.notifier.ReviewDecided(ctx, item.CustomerID, approved); err != nil {
		e.logger.Error("review decision notification failed", map[string]interface{}{
			"workItemId": item.ID,
			"customerId": item.CustomerID,
			"error":      err.Error(),
		})
	}
}

func (e *Engine) recommendForApproved(ctx context.Context, item *models.WorkItem) {
	q, err := e.store.LatestQuestionnaire(ctx, item.CustomerID)
	if err != nil {
		metrics.RecommendationFailures.WithLabelValues(string(errors.CodeOf(err))).Inc()
		e.logger.Error("recommendation skipped, questionnaire unavailable", map[string]interface{}{
			"workItemId": item.ID,
			"customerId": item.CustomerID,
			"error":      err.Error(),
		})
		return
	}

	result, err := e.recommender.Recommend(ctx, recommend.Request{
		CustomerID:  item.CustomerID,
		WorkItemID:  item.ID,
		Score:       item.RiskScore,
		Category:    item.RiskCategory,
		Amount:      q.InvestAmount,
		Preferences: q.Answers,
	})
	if err != nil {
		metrics.RecommendationFailures.WithLabelValues(string(errors.CodeOf(err))).Inc()
		e.logger.Error("recommendation failed after approval", map[string]interface{}{
			"workItemId": item.ID,
			"customerId": item.CustomerID,
			"error":      err.Error(),
		})
		return
	}

	if err := e.store.SaveRecommendation(ctx, result); err != nil {
		metrics.RecommendationFailures.WithLabelValues(string(errors.CodeOf(err))).Inc()
		e.logger.Error("recommendation persist failed", map[string]interface{}{
			"workItemId": item.ID,
			"customerId": item.CustomerID,
			"error":      err.Error(),
		})
		return
	}

	if err := e.notifier.RecommendationGenerated(ctx, item.CustomerID); err != nil {
		e.logger.Error("recommendation notification failed", map[string]interface{}{
			"workItemId": item.ID,
			"customerId": item.CustomerID,
			"error":      err.Error(),
		})
	}
}

func (e *Engine) priorityFor(score int) models.Priority {
	switch {
	case score >= e.bands.Critical:
		return models.PriorityCritical
	case score >= e.bands.High:
		return models.PriorityHigh
	case score >= e.bands.Medium:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func (e *Engine) slaFor(stage models.Stage) time.Duration {
	hours := 0
	switch stage {
	case models.StageJunior:
		hours = e.slaHours.Junior
	case models.StageMid:
		hours = e.slaHours.Mid
	case models.StageSenior:
		hours = e.slaHours.Senior
	case models.StageCommittee:
		hours = e.slaHours.Committee
	}
	return time.Duration(hours) * time.Hour
}

func nextStage(stage models.Stage) (models.Stage, bool) {
	switch stage {
	case models.StageJunior:
		return models.StageMid, true
	case models.StageMid:
		return models.StageSenior, true
	case models.StageSenior:
		return models.StageCommittee, true
	default:
		return "", false
	}
}
