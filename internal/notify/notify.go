// internal/notify/notify.go

// Package notify publishes pipeline events to interested parties. Delivery is
// best-effort: a failed publish never rolls back the state change that
// triggered it.
package notify

import (
	"context"

	"suitability-pipeline/internal/common/logger"
)

// Event names carried in published payloads.
const (
	EventReviewDecided          = "review.decided"
	EventRecommendationGenerated = "recommendation.generated"
)

// Notifier publishes customer-facing pipeline events.
type Notifier interface {
	// ReviewDecided announces a terminal review outcome for a customer.
	ReviewDecided(ctx context.Context, customerID string, approved bool) error
	// RecommendationGenerated announces that a new portfolio recommendation
	// is available for a customer.
	RecommendationGenerated(ctx context.Context, customerID string) error
}

// LogNotifier writes events to the log instead of an external channel. The
// default when notifications are disabled.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithFields(map[string]interface{}{"component": "notify"})}
}

func (n *LogNotifier) ReviewDecided(_ context.Context, customerID string, approved bool) error {
	n.logger.Info("review decided", map[string]interface{}{
		"event":      EventReviewDecided,
		"customerId": customerID,
		"approved":   approved,
	})
	return nil
}

func (n *LogNotifier) RecommendationGenerated(_ context.Context, customerID string) error {
	n.logger.Info("recommendation generated", map[string]interface{}{
		"event":      EventRecommendationGenerated,
		"customerId": customerID,
	})
	return nil
}
