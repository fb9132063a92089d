// internal/notify/notify_test.go
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

type capturingPublisher struct {
	inputs []*sns.PublishInput
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	p.inputs = append(p.inputs, input)
	if p.err != nil {
		return nil, p.err
	}
	return &sns.PublishOutput{}, nil
}

func TestSNSNotifier_ReviewDecided(t *testing.T) {
	pub := &capturingPublisher{}
	n := NewSNSNotifier(pub, "arn:topic:review", "arn:topic:reco", logger.NewNoOpLogger())

	require.NoError(t, n.ReviewDecided(context.Background(), "cust-001", true))
	require.Len(t, pub.inputs, 1)
	assert.Equal(t, "arn:topic:review", *pub.inputs[0].TopicArn)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*pub.inputs[0].Message), &payload))
	assert.Equal(t, EventReviewDecided, payload["event"])
	assert.Equal(t, "cust-001", payload["customerId"])
	assert.Equal(t, true, payload["approved"])
}

func TestSNSNotifier_RecommendationGenerated(t *testing.T) {
	pub := &capturingPublisher{}
	n := NewSNSNotifier(pub, "arn:topic:review", "arn:topic:reco", logger.NewNoOpLogger())

	require.NoError(t, n.RecommendationGenerated(context.Background(), "cust-002"))
	require.Len(t, pub.inputs, 1)
	assert.Equal(t, "arn:topic:reco", *pub.inputs[0].TopicArn)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*pub.inputs[0].Message), &payload))
	assert.Equal(t, EventRecommendationGenerated, payload["event"])
	_, hasApproved := payload["approved"]
	assert.False(t, hasApproved)
}

func TestSNSNotifier_PublishFailure(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("throttled")}
	n := NewSNSNotifier(pub, "arn:topic:review", "arn:topic:reco", logger.NewNoOpLogger())

	err := n.ReviewDecided(context.Background(), "cust-003", false)
	require.Error(t, err)
	assert.True(t, pipeerrors.HasCode(err, pipeerrors.CodeNotificationSendFailed))
	assert.True(t, pipeerrors.IsRetryable(err))
}

type capturingSender struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (s *capturingSender) SendEmail(_ context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return &ses.SendEmailOutput{}, nil
}

func TestOverdueAlerter_SendsDigest(t *testing.T) {
	sender := &capturingSender{}
	alerter := NewOverdueAlerter(sender, "pipeline@bank.example", "ops@bank.example", logger.NewNoOpLogger())

	now := time.Now().UTC()
	reviewer := "rev-mid-1"
	items := []*models.WorkItem{
		{
			ID: "wi-001", CustomerID: "cust-001", Status: models.StatusPendingMid,
			Priority: models.PriorityCritical, SLADeadline: now.Add(-3 * time.Hour),
			ReviewerID: &reviewer,
		},
		{
			ID: "wi-002", CustomerID: "cust-002", Status: models.StatusPendingJunior,
			Priority: models.PriorityLow, SLADeadline: now.Add(-10 * time.Minute),
		},
	}

	require.NoError(t, alerter.Alert(context.Background(), items, now))
	require.Len(t, sender.inputs, 1)

	body := *sender.inputs[0].Message.Body.Text.Data
	assert.Contains(t, body, "wi-001")
	assert.Contains(t, body, "rev-mid-1")
	assert.Contains(t, body, "wi-002")
	assert.Contains(t, body, "unassigned")
	assert.Contains(t, *sender.inputs[0].Message.Subject.Data, "2 overdue")
}

func TestOverdueAlerter_EmptyListIsNoOp(t *testing.T) {
	sender := &capturingSender{}
	alerter := NewOverdueAlerter(sender, "pipeline@bank.example", "ops@bank.example", logger.NewNoOpLogger())

	require.NoError(t, alerter.Alert(context.Background(), nil, time.Now().UTC()))
	assert.Empty(t, sender.inputs)
}
