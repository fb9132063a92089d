// internal/models/workitem.go
package models

import "time"

// Stage is one of the four sequential review steps.
type Stage string

const (
	StageJunior    Stage = "JUNIOR"
	StageMid       Stage = "MID"
	StageSenior    Stage = "SENIOR"
	StageCommittee Stage = "COMMITTEE"
)

// Status is the workflow state of a work item.
type Status string

const (
	StatusPendingJunior    Status = "PENDING_JUNIOR"
	StatusPendingMid       Status = "PENDING_MID"
	StatusPendingSenior    Status = "PENDING_SENIOR"
	StatusPendingCommittee Status = "PENDING_COMMITTEE"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
)

// Terminal reports whether no further transition is defined out of s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Stage returns the review stage a pending status sits at, or "" for
// terminal states.
func (s Status) Stage() Stage {
	switch s {
	case StatusPendingJunior:
		return StageJunior
	case StatusPendingMid:
		return StageMid
	case StatusPendingSenior:
		return StageSenior
	case StatusPendingCommittee:
		return StageCommittee
	default:
		return ""
	}
}

// PendingStatus returns the pending status for a stage.
func (st Stage) PendingStatus() Status {
	switch st {
	case StageJunior:
		return StatusPendingJunior
	case StageMid:
		return StatusPendingMid
	case StageSenior:
		return StatusPendingSenior
	case StageCommittee:
		return StatusPendingCommittee
	default:
		return ""
	}
}

// Priority of a work item, derived from the risk score at creation.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank orders priorities for queue sorting; higher sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Decision is a reviewer's verdict on the current stage.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// StageDecision is one append-only review record. The per-item decision list
// replaces the original schema's four parallel reviewer/comment/time column
// triplets.
type StageDecision struct {
	Stage      Stage     `json:"stage"`
	ReviewerID string    `json:"reviewerId"`
	Decision   Decision  `json:"decision"`
	Comment    string    `json:"comment"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// WorkItem is one customer's risk-profile case moving through the review
// chain. Risk score and category are copied from the triggering questionnaire
// and never change for the life of the item. Version backs the optimistic
// concurrency check on claim and advance.
type WorkItem struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customerId"`
	Status       Status          `json:"status"`
	Priority     Priority        `json:"priority"`
	SLADeadline  time.Time       `json:"slaDeadline"`
	RiskScore    int             `json:"riskScore"`
	RiskCategory RiskCategory    `json:"riskCategory"`
	ReviewerID   *string         `json:"reviewerId,omitempty"`
	Decisions    []StageDecision `json:"decisions"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// DecisionFor returns the recorded decision for a stage, if any.
func (w *WorkItem) DecisionFor(stage Stage) (StageDecision, bool) {
	for _, d := range w.Decisions {
		if d.Stage == stage {
			return d, true
		}
	}
	return StageDecision{}, false
}
