// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssessmentsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_assessments_scored_total",
			Help: "Total questionnaires scored, by resulting risk category",
		},
		[]string{"category"},
	)

	WorkItemsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_work_items_created_total",
			Help: "Total work items created, by priority",
		},
		[]string{"priority"},
	)

	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_transitions_total",
			Help: "Total work item transitions, by source stage and decision",
		},
		[]string{"stage", "decision"},
	)

	ClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_claim_conflicts_total",
			Help: "Total claim attempts rejected because another reviewer held the item",
		},
	)

	RecommendationsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_recommendations_generated_total",
			Help: "Total recommendation results produced",
		},
	)

	RecommendationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_recommendation_failures_total",
			Help: "Total recommendation attempts that failed, by error code",
		},
		[]string{"error_code"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_notifications_sent_total",
			Help: "Total notification events published, by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "pipeline_recommendation_duration_seconds",
			Help: "Duration of recommendation generation in seconds",
		},
	)
)
