// internal/assessment/service.go

// Package assessment is the customer-facing entry point of the pipeline: it
// validates a submitted questionnaire, scores it, persists the result, and
// opens a review work item.
package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/common/metrics"
	"suitability-pipeline/internal/common/validation"
	"suitability-pipeline/internal/models"
	"suitability-pipeline/internal/scoring"
	"suitability-pipeline/internal/storage"
	"suitability-pipeline/internal/workflow"
)

// Submission is one customer's questionnaire submission.
type Submission struct {
	CustomerID   string            `json:"customerId"`
	Age          *int              `json:"age,omitempty"`
	Telephone    string            `json:"telephone,omitempty"`
	AnnualIncome float64           `json:"annualIncome"`
	InvestAmount float64           `json:"investAmount"`
	Answers      map[string]string `json:"answers"`
}

// Outcome is what a successful submission produces: the scored questionnaire
// and the review work item opened for it.
type Outcome struct {
	Questionnaire *models.Questionnaire `json:"questionnaire"`
	WorkItem      *models.WorkItem      `json:"workItem"`
}

type Service struct {
	store    storage.CaseStore
	scorer   *scoring.Engine
	workflow *workflow.Engine
	logger   logger.Logger
}

func NewService(store storage.CaseStore, scorer *scoring.Engine, wf *workflow.Engine, log logger.Logger) *Service {
	return &Service{
		store:    store,
		scorer:   scorer,
		workflow: wf,
		logger:   log.WithFields(map[string]interface{}{"component": "assessment"}),
	}
}

// Submit validates, scores, and persists a questionnaire, then opens a work
// item at the junior review stage.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	if sub.CustomerID == "" {
		return nil, errors.NewInvalidInput("customer id is required")
	}

	problems, err := validation.ValidateAnswers(sub.Answers)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, errors.NewInvalidInput(validation.Describe(problems)).
			WithField("customerId", sub.CustomerID)
	}

	result, err := s.scorer.Score(scoring.Profile{
		CustomerID:   sub.CustomerID,
		Age:          sub.Age,
		Telephone:    sub.Telephone,
		AnnualIncome: sub.AnnualIncome,
		InvestAmount: sub.InvestAmount,
	}, sub.Answers)
	if err != nil {
		return nil, err
	}

	q := &models.Questionnaire{
		ID:           uuid.NewString(),
		CustomerID:   sub.CustomerID,
		Answers:      sub.Answers,
		Age:          sub.Age,
		AnnualIncome: sub.AnnualIncome,
		InvestAmount: sub.InvestAmount,
		HorizonYears: result.HorizonYears,
		MaxLoss:      result.MaxLoss,
		Target:       result.Target,
		Score:        result.Score,
		Category:     result.Category,
		Breakdown:    result.Breakdown,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.SaveQuestionnaire(ctx, q); err != nil {
		return nil, err
	}
	metrics.AssessmentsScored.WithLabelValues(string(q.Category)).Inc()

	item, err := s.workflow.Create(ctx, sub.CustomerID, q.Score, q.Category)
	if err != nil {
		return nil, err
	}

	s.logger.Info("questionnaire submitted", map[string]interface{}{
		"customerId":      sub.CustomerID,
		"questionnaireId": q.ID,
		"workItemId":      item.ID,
		"score":           q.Score,
		"category":        q.Category,
	})
	return &Outcome{Questionnaire: q, WorkItem: item}, nil
}

// Recalculate re-scores a stored questionnaire with the current weight
// configuration and writes the new score in place. No new work item is
// opened; the review outcome of the original submission stands.
func (s *Service) Recalculate(ctx context.Context, questionnaireID string) (*models.Questionnaire, error) {
	q, err := s.store.QuestionnaireByID(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}

	result, err := s.scorer.Score(scoring.Profile{
		CustomerID:   q.CustomerID,
		Age:          q.Age,
		AnnualIncome: q.AnnualIncome,
		InvestAmount: q.InvestAmount,
	}, q.Answers)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateQuestionnaireScore(ctx, q.ID, result.Score, result.Category, result.Breakdown); err != nil {
		return nil, err
	}
	q.Score = result.Score
	q.Category = result.Category
	q.Breakdown = result.Breakdown

	s.logger.Info("questionnaire rescored", map[string]interface{}{
		"questionnaireId": q.ID,
		"customerId":      q.CustomerID,
		"score":           q.Score,
		"category":        q.Category,
	})
	return q, nil
}

// Latest returns the customer's current questionnaire.
func (s *Service) Latest(ctx context.Context, customerID string) (*models.Questionnaire, error) {
	return s.store.LatestQuestionnaire(ctx, customerID)
}

// History returns the customer's questionnaires, newest first.
func (s *Service) History(ctx context.Context, customerID string) ([]*models.Questionnaire, error) {
	return s.store.QuestionnaireHistory(ctx, customerID)
}

// LatestRecommendation returns the customer's current portfolio
// recommendation, if one exists.
func (s *Service) LatestRecommendation(ctx context.Context, customerID string) (*models.RecommendationResult, error) {
	return s.store.LatestRecommendation(ctx, customerID)
}

// RecommendationHistory returns all recommendations for a customer, newest
// first.
func (s *Service) RecommendationHistory(ctx context.Context, customerID string) ([]*models.RecommendationResult, error) {
	return s.store.RecommendationHistory(ctx, customerID)
}
