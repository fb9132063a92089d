// internal/models/questionnaire.go
package models

import "time"

// RiskCategory is the three-tier classification derived from the risk score.
type RiskCategory string

const (
	RiskConservative RiskCategory = "CONSERVATIVE"
	RiskModerate     RiskCategory = "MODERATE"
	RiskAggressive   RiskCategory = "AGGRESSIVE"
)

// Order returns the position of the category on the conservative→aggressive
// axis. Used for the adjacency check in product ranking.
func (c RiskCategory) Order() int {
	switch c {
	case RiskConservative:
		return 1
	case RiskModerate:
		return 2
	case RiskAggressive:
		return 3
	default:
		return 0
	}
}

// AllRiskCategories in conservative→aggressive order.
func AllRiskCategories() []RiskCategory {
	return []RiskCategory{RiskConservative, RiskModerate, RiskAggressive}
}

// ScoreBreakdown records the weighted contribution of each scoring factor.
// Persisted alongside the questionnaire for audit display.
type ScoreBreakdown struct {
	Age           float64 `json:"age"`
	Income        float64 `json:"income"`
	Horizon       float64 `json:"horizon"`
	MaxLoss       float64 `json:"maxLoss"`
	Amount        float64 `json:"amount"`
	Questionnaire float64 `json:"questionnaire"`
}

// Questionnaire is one scored risk-profile submission. Immutable once scored
// except through the explicit recalculation operation, which replaces
// Score/Category/Breakdown in place.
type Questionnaire struct {
	ID           string            `json:"id"`
	CustomerID   string            `json:"customerId"`
	Answers      map[string]string `json:"answers"`
	Age          *int              `json:"age,omitempty"`
	AnnualIncome float64           `json:"annualIncome"`
	InvestAmount float64           `json:"investAmount"`
	HorizonYears int               `json:"horizonYears"`
	MaxLoss      float64           `json:"maxLoss"` // tolerable loss as a 0-1 fraction
	Target       string            `json:"target,omitempty"`
	Score        int               `json:"score"`
	Category     RiskCategory      `json:"category"`
	Breakdown    ScoreBreakdown    `json:"breakdown"`
	IsLatest     bool              `json:"isLatest"`
	CreatedAt    time.Time         `json:"createdAt"`
}
