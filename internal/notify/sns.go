// internal/notify/sns.go
package notify

import (
	"context"
	"encoding/json"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/common/metrics"
)

// Publisher is the slice of the SNS client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSNotifier publishes JSON events to per-event SNS topics.
type SNSNotifier struct {
	publisher           Publisher
	reviewDecidedTopic  string
	recommendationTopic string
	logger              logger.Logger
}

func NewSNSNotifier(publisher Publisher, reviewDecidedTopic, recommendationTopic string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		publisher:           publisher,
		reviewDecidedTopic:  reviewDecidedTopic,
		recommendationTopic: recommendationTopic,
		logger:              log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

type eventPayload struct {
	Event      string    `json:"event"`
	CustomerID string    `json:"customerId"`
	Approved   *bool     `json:"approved,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (n *SNSNotifier) ReviewDecided(ctx context.Context, customerID string, approved bool) error {
	return n.publish(ctx, n.reviewDecidedTopic, eventPayload{
		Event:      EventReviewDecided,
		CustomerID: customerID,
		Approved:   &approved,
		OccurredAt: time.Now().UTC(),
	})
}

func (n *SNSNotifier) RecommendationGenerated(ctx context.Context, customerID string) error {
	return n.publish(ctx, n.recommendationTopic, eventPayload{
		Event:      EventRecommendationGenerated,
		CustomerID: customerID,
		OccurredAt: time.Now().UTC(),
	})
}

func (n *SNSNotifier) publish(ctx context.Context, topicARN string, payload eventPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.NewNotificationSendFailed(payload.Event, err)
	}

	_, err = n.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(topicARN),
		Message:  awssdk.String(string(raw)),
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(payload.Event, "failure").Inc()
		n.logger.Error("event publish failed", map[string]interface{}{
			"event":      payload.Event,
			"customerId": payload.CustomerID,
			"topic":      topicARN,
			"error":      err.Error(),
		})
		return errors.NewNotificationSendFailed(payload.Event, err)
	}

	metrics.NotificationsSent.WithLabelValues(payload.Event, "success").Inc()
	n.logger.Info("event published", map[string]interface{}{
		"event":      payload.Event,
		"customerId": payload.CustomerID,
		"topic":      topicARN,
	})
	return nil
}
