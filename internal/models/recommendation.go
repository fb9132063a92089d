// internal/models/recommendation.go
package models

import "time"

// AllocationItem is one product's slice of a recommended portfolio.
type AllocationItem struct {
	ProductID   string       `json:"productId"`
	ProductName string       `json:"productName"`
	Category    RiskCategory `json:"category"`
	Amount      float64      `json:"amount"`
	Percent     float64      `json:"percent"` // share of the requested total
	Score       float64      `json:"score"`   // composite ranking score
}

// RecommendationResult is one generated allocation. Created once, immutable
// thereafter; a customer accumulates many over time but only the most recent
// is latest. AllocatedAmount may be below TotalAmount when a bucket had no
// eligible candidates — the shortfall is reported, never redistributed.
type RecommendationResult struct {
	ID              string           `json:"id"`
	CustomerID      string           `json:"customerId"`
	WorkItemID      *string          `json:"workItemId,omitempty"` // nil when generated ad hoc
	Items           []AllocationItem `json:"items"`
	TotalAmount     float64          `json:"totalAmount"`
	AllocatedAmount float64          `json:"allocatedAmount"`
	ExpectedReturn  float64          `json:"expectedReturn"` // amount-weighted, percent
	ExpectedRisk    float64          `json:"expectedRisk"`   // amount-weighted volatility
	Rationale       string           `json:"rationale"`
	IsLatest        bool             `json:"isLatest"`
	CreatedAt       time.Time        `json:"createdAt"`
}
