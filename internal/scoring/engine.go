// internal/scoring/engine.go
package scoring

import (
	"fmt"
	"math"
	"strconv"

	"suitability-pipeline/internal/common/config"
	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

// Reserved answer keys consumed by named scoring factors. Everything else is
// treated as a free-form supplementary answer.
const (
	AnswerInvestTime    = "invest_time"
	AnswerMaxLoss       = "max_loss"
	AnswerTarget        = "target"
	AnswerYearForInvest = "year_for_invest"
)

var reservedAnswerKeys = map[string]bool{
	AnswerInvestTime:    true,
	AnswerMaxLoss:       true,
	AnswerTarget:        true,
	AnswerYearForInvest: true,
}

// Profile is the customer data the scoring engine reads. Age is optional;
// when absent but contact data exists, a mid-range default is substituted
// (explicitly logged, since it materially changes the score).
type Profile struct {
	CustomerID   string
	Age          *int
	Telephone    string
	AnnualIncome float64
	InvestAmount float64
}

// Answers is a submitted questionnaire answer map, keys to raw string values.
type Answers map[string]string

// Result is a computed risk score with its category and factor breakdown.
type Result struct {
	Score        int
	Category     models.RiskCategory
	Breakdown    models.ScoreBreakdown
	HorizonYears int
	MaxLoss      float64 // 0-1 fraction
	Target       string
}

// Engine maps a profile and questionnaire answers to a 0-100 risk score and
// a three-tier category. Pure computation; persistence belongs to the caller.
type Engine struct {
	weights    config.ScoringWeights
	thresholds config.Thresholds
	defaultAge int
	logger     logger.Logger
}

func NewEngine(cfg config.ScoringConfig, log logger.Logger) *Engine {
	return &Engine{
		weights:    cfg.Weights,
		thresholds: cfg.Thresholds,
		defaultAge: cfg.DefaultAge,
		logger:     log.WithFields(map[string]interface{}{"component": "scoring"}),
	}
}

// Score computes the weighted six-factor risk score. Required answers are
// invest_time (years) and max_loss (percent of capital, 0-100); their absence
// or a non-numeric value fails with INVALID_INPUT. Optional inputs fall back
// to neutral defaults, each substitution logged.
func (e *Engine) Score(profile Profile, answers Answers) (*Result, error) {
	horizonYears, err := e.requiredInt(answers, AnswerInvestTime)
	if err != nil {
		return nil, err
	}
	maxLossPct, err := e.requiredFloat(answers, AnswerMaxLoss)
	if err != nil {
		return nil, err
	}
	if maxLossPct < 0 || maxLossPct > 100 {
		return nil, errors.NewInvalidInput(fmt.Sprintf("max_loss must be within [0,100], got %v", maxLossPct))
	}
	maxLoss := maxLossPct / 100

	var breakdown models.ScoreBreakdown

	breakdown.Age = e.ageScore(profile) * e.weights.Age
	breakdown.Income = e.incomeScore(profile) * e.weights.Income
	breakdown.Horizon = math.Min(100, float64(horizonYears)*10) * e.weights.Horizon
	breakdown.MaxLoss = maxLoss * 100 * e.weights.MaxLoss
	breakdown.Amount = e.amountScore(profile) * e.weights.Amount
	breakdown.Questionnaire = e.questionnaireScore(answers) * e.weights.Questionnaire

	total := breakdown.Age + breakdown.Income + breakdown.Horizon +
		breakdown.MaxLoss + breakdown.Amount + breakdown.Questionnaire

	score := int(math.Round(math.Max(0, math.Min(100, total))))

	result := &Result{
		Score:        score,
		Category:     e.Categorize(score),
		Breakdown:    breakdown,
		HorizonYears: horizonYears,
		MaxLoss:      maxLoss,
		Target:       answers[AnswerTarget],
	}

	e.logger.Info("risk score computed", map[string]interface{}{
		"customerId": profile.CustomerID,
		"score":      score,
		"category":   result.Category,
		"breakdown":  breakdown,
	})
	return result, nil
}

// Categorize maps a score to its risk category. Monotonic non-decreasing
// across the configured thresholds.
func (e *Engine) Categorize(score int) models.RiskCategory {
	switch {
	case score <= e.thresholds.ConservativeMax:
		return models.RiskConservative
	case score <= e.thresholds.ModerateMax:
		return models.RiskModerate
	default:
		return models.RiskAggressive
	}
}

// ageScore: younger customers tolerate more risk. An age of 100 or above
// scores zero. Without any age-derivable data the factor contributes nothing.
func (e *Engine) ageScore(profile Profile) float64 {
	age := 0
	switch {
	case profile.Age != nil:
		age = *profile.Age
	case profile.Telephone != "":
		age = e.defaultAge
		e.logger.Info("substituted default age", map[string]interface{}{
			"customerId": profile.CustomerID,
			"age":        age,
		})
	default:
		e.logger.Info("age unavailable, factor skipped", map[string]interface{}{
			"customerId": profile.CustomerID,
		})
		return 0
	}
	return math.Max(0, float64(100-age))
}

func (e *Engine) incomeScore(profile Profile) float64 {
	if profile.AnnualIncome <= 0 {
		e.logger.Info("annual income unavailable, factor skipped", map[string]interface{}{
			"customerId": profile.CustomerID,
		})
		return 0
	}
	return incomeBand(profile.AnnualIncome)
}

func incomeBand(income float64) float64 {
	switch {
	case income < 50000:
		return 20
	case income < 100000:
		return 40
	case income < 200000:
		return 60
	case income < 500000:
		return 80
	default:
		return 100
	}
}

func (e *Engine) amountScore(profile Profile) float64 {
	if profile.InvestAmount <= 0 {
		e.logger.Info("invest amount unavailable, factor skipped", map[string]interface{}{
			"customerId": profile.CustomerID,
		})
		return 0
	}
	return amountBand(profile.InvestAmount)
}

func amountBand(amount float64) float64 {
	switch {
	case amount < 10000:
		return 20
	case amount < 50000:
		return 40
	case amount < 100000:
		return 60
	case amount < 500000:
		return 80
	default:
		return 100
	}
}

// questionnaireScore averages free-form numeric answers and scales to 0-100.
// With no numeric answers the factor takes the neutral midpoint 50.
func (e *Engine) questionnaireScore(answers Answers) float64 {
	sum := 0.0
	count := 0
	for key, value := range answers {
		if reservedAnswerKeys[key] {
			continue
		}
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 50
	}
	return sum / float64(count) * 20
}

func (e *Engine) requiredInt(answers Answers, key string) (int, error) {
	raw, ok := answers[key]
	if !ok || raw == "" {
		return 0, errors.NewInvalidInput(fmt.Sprintf("required answer %q is missing", key))
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidInput(fmt.Sprintf("answer %q must be an integer, got %q", key, raw))
	}
	return v, nil
}

func (e *Engine) requiredFloat(answers Answers, key string) (float64, error) {
	raw, ok := answers[key]
	if !ok || raw == "" {
		return 0, errors.NewInvalidInput(fmt.Sprintf("required answer %q is missing", key))
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.NewInvalidInput(fmt.Sprintf("answer %q must be numeric, got %q", key, raw))
	}
	return v, nil
}
