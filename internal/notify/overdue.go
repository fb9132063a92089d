// internal/notify/overdue.go
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/common/metrics"
	"suitability-pipeline/internal/models"
)

const eventOverdueAlert = "review.overdue_alert"

// EmailSender is the slice of the SES client the alerter needs.
type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// OverdueAlerter emails the operations inbox a digest of work items past
// their SLA deadline. One email per sweep, not per item.
type OverdueAlerter struct {
	sender    EmailSender
	from      string
	recipient string
	logger    logger.Logger
}

func NewOverdueAlerter(sender EmailSender, from, recipient string, log logger.Logger) *OverdueAlerter {
	return &OverdueAlerter{
		sender:    sender,
		from:      from,
		recipient: recipient,
		logger:    log.WithFields(map[string]interface{}{"component": "overdue-alerter"}),
	}
}

// Alert sends the digest. A nil or empty item list is a no-op.
func (a *OverdueAlerter) Alert(ctx context.Context, items []*models.WorkItem, now time.Time) error {
	if len(items) == 0 {
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%d review work item(s) are past their SLA deadline as of %s:\n\n",
		len(items), now.Format(time.RFC3339))
	for _, item := range items {
		overdueBy := now.Sub(item.SLADeadline).Round(time.Minute)
		reviewer := "unassigned"
		if item.ReviewerID != nil {
			reviewer = *item.ReviewerID
		}
		fmt.Fprintf(&body, "- %s  customer=%s  stage=%s  priority=%s  reviewer=%s  overdue_by=%s\n",
			item.ID, item.CustomerID, item.Status.Stage(), item.Priority, reviewer, overdueBy)
	}

	_, err := a.sender.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(a.from),
		Destination: &types.Destination{
			ToAddresses: []string{a.recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: awssdk.String(fmt.Sprintf("[suitability-pipeline] %d overdue review(s)", len(items))),
			},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(body.String())},
			},
		},
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(eventOverdueAlert, "failure").Inc()
		return errors.NewNotificationSendFailed(eventOverdueAlert, err)
	}

	metrics.NotificationsSent.WithLabelValues(eventOverdueAlert, "success").Inc()
	a.logger.Info("overdue alert sent", map[string]interface{}{
		"count":     len(items),
		"recipient": a.recipient,
	})
	return nil
}
