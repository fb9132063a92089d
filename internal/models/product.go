// internal/models/product.go
package models

// Product is a candidate financial product read from the catalog. The
// pipeline never mutates product data; optional attributes are nil when the
// catalog does not carry them and contribute zero to ranking.
type Product struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Code           string       `json:"code,omitempty"`
	Category       RiskCategory `json:"category"`
	ExpectedReturn *float64     `json:"expectedReturn,omitempty"` // percent per year
	Volatility     *float64     `json:"volatility,omitempty"`     // percent
	SharpeRatio    *float64     `json:"sharpeRatio,omitempty"`
	MinInvestment  *float64     `json:"minInvestment,omitempty"`
	LiquidityScore *int         `json:"liquidityScore,omitempty"` // 0-10
	AvgRating      *float64     `json:"avgRating,omitempty"`      // 0-10
	Currency       string       `json:"currency,omitempty"`
}
