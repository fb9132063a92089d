// internal/scoring/engine_test.go
package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suitability-pipeline/internal/common/config"
	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

func newTestEngine() *Engine {
	cfg := config.ScoringConfig{
		Weights:    config.DefaultScoringWeights(),
		Thresholds: config.DefaultThresholds(),
		DefaultAge: 30,
	}
	return NewEngine(cfg, logger.NewNoOpLogger())
}

func TestScore_ConservativeProfile(t *testing.T) {
	engine := newTestEngine()

	// income 80k -> 40*0.20=8, horizon 2y -> 20*0.15=3, max loss 5% -> 5*0.25=1.25,
	// amount 20k -> 40*0.15=6, questionnaire default 50*0.10=5, no age data.
	// Total 23.25 -> 23 -> conservative.
	profile := Profile{
		CustomerID:   "cust-001",
		AnnualIncome: 80000,
		InvestAmount: 20000,
	}
	answers := Answers{
		"invest_time": "2",
		"max_loss":    "5",
	}

	result, err := engine.Score(profile, answers)
	require.NoError(t, err)

	assert.Equal(t, 23, result.Score)
	assert.Equal(t, models.RiskConservative, result.Category)
	assert.InDelta(t, 8.0, result.Breakdown.Income, 0.001)
	assert.InDelta(t, 3.0, result.Breakdown.Horizon, 0.001)
	assert.InDelta(t, 1.25, result.Breakdown.MaxLoss, 0.001)
	assert.InDelta(t, 6.0, result.Breakdown.Amount, 0.001)
	assert.InDelta(t, 5.0, result.Breakdown.Questionnaire, 0.001)
	assert.Zero(t, result.Breakdown.Age)
	assert.Equal(t, 2, result.HorizonYears)
	assert.InDelta(t, 0.05, result.MaxLoss, 0.0001)
}

func TestScore_AggressiveProfile(t *testing.T) {
	engine := newTestEngine()

	age := 25
	profile := Profile{
		CustomerID:   "cust-002",
		Age:          &age,
		AnnualIncome: 600000,
		InvestAmount: 600000,
	}
	answers := Answers{
		"invest_time": "15",
		"max_loss":    "50",
		"q1":          "5",
		"q2":          "4",
	}

	// age 75*0.15=11.25, income 100*0.20=20, horizon 100*0.15=15,
	// max loss 50*0.25=12.5, amount 100*0.15=15, questionnaire 4.5*20=90*0.10=9.
	// Total 82.75 -> 83 -> aggressive.
	result, err := engine.Score(profile, answers)
	require.NoError(t, err)

	assert.Equal(t, 83, result.Score)
	assert.Equal(t, models.RiskAggressive, result.Category)
}

func TestScore_DefaultAgeFromTelephone(t *testing.T) {
	engine := newTestEngine()

	profile := Profile{
		CustomerID:   "cust-003",
		Telephone:    "13800001111",
		AnnualIncome: 80000,
		InvestAmount: 20000,
	}
	answers := Answers{
		"invest_time": "2",
		"max_loss":    "5",
	}

	result, err := engine.Score(profile, answers)
	require.NoError(t, err)

	// (100-30)*0.15=10.5 on top of the 23.25 base.
	assert.InDelta(t, 10.5, result.Breakdown.Age, 0.001)
	assert.Equal(t, 34, result.Score)
	assert.Equal(t, models.RiskModerate, result.Category)
}

func TestScore_AgeCappedAtHundred(t *testing.T) {
	engine := newTestEngine()

	age := 104
	profile := Profile{
		CustomerID:   "cust-004",
		Age:          &age,
		AnnualIncome: 80000,
		InvestAmount: 20000,
	}
	answers := Answers{
		"invest_time": "2",
		"max_loss":    "5",
	}

	result, err := engine.Score(profile, answers)
	require.NoError(t, err)
	assert.Zero(t, result.Breakdown.Age)
}

func TestScore_HorizonCappedAtHundred(t *testing.T) {
	engine := newTestEngine()

	profile := Profile{CustomerID: "cust-005", AnnualIncome: 80000, InvestAmount: 20000}
	answers := Answers{
		"invest_time": "30",
		"max_loss":    "5",
	}

	result, err := engine.Score(profile, answers)
	require.NoError(t, err)
	assert.InDelta(t, 100*0.15, result.Breakdown.Horizon, 0.001)
}

func TestScore_RequiredAnswers(t *testing.T) {
	engine := newTestEngine()
	profile := Profile{CustomerID: "cust-006", AnnualIncome: 80000, InvestAmount: 20000}

	tests := []struct {
		name    string
		answers Answers
	}{
		{"missing invest_time", Answers{"max_loss": "5"}},
		{"missing max_loss", Answers{"invest_time": "2"}},
		{"non-numeric invest_time", Answers{"invest_time": "soon", "max_loss": "5"}},
		{"non-numeric max_loss", Answers{"invest_time": "2", "max_loss": "a little"}},
		{"max_loss out of range", Answers{"invest_time": "2", "max_loss": "150"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Score(profile, tt.answers)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
		})
	}
}

func TestScore_NonNumericExtraAnswersIgnored(t *testing.T) {
	engine := newTestEngine()

	profile := Profile{CustomerID: "cust-007", AnnualIncome: 80000, InvestAmount: 20000}
	answers := Answers{
		"invest_time": "2",
		"max_loss":    "5",
		"q1":          "3",
		"q2":          "prefer stocks", // ignored
	}

	result, err := engine.Score(profile, answers)
	require.NoError(t, err)
	// Only q1 counts: 3*20=60 -> 6.0 weighted.
	assert.InDelta(t, 6.0, result.Breakdown.Questionnaire, 0.001)
}

func TestCategorize_ThresholdsAndMonotonicity(t *testing.T) {
	engine := newTestEngine()

	assert.Equal(t, models.RiskConservative, engine.Categorize(0))
	assert.Equal(t, models.RiskConservative, engine.Categorize(30))
	assert.Equal(t, models.RiskModerate, engine.Categorize(31))
	assert.Equal(t, models.RiskModerate, engine.Categorize(70))
	assert.Equal(t, models.RiskAggressive, engine.Categorize(71))
	assert.Equal(t, models.RiskAggressive, engine.Categorize(100))

	// Monotonic non-decreasing across the full range.
	prev := engine.Categorize(0).Order()
	for s := 1; s <= 100; s++ {
		cur := engine.Categorize(s).Order()
		assert.GreaterOrEqual(t, cur, prev, "category order regressed at score %d", s)
		prev = cur
	}
}

func TestScore_ClampedToRange(t *testing.T) {
	// A weight set deliberately skewed high to force clamping.
	cfg := config.ScoringConfig{
		Weights: config.ScoringWeights{
			Age: 0.15, Income: 0.20, Horizon: 0.15, MaxLoss: 0.25, Amount: 0.15, Questionnaire: 0.10,
		},
		Thresholds: config.DefaultThresholds(),
		DefaultAge: 30,
	}
	engine := NewEngine(cfg, logger.NewNoOpLogger())

	age := 1
	profile := Profile{CustomerID: "cust-008", Age: &age, AnnualIncome: 900000, InvestAmount: 900000}
	answers := Answers{
		"invest_time": "50",
		"max_loss":    "100",
		"q1":          "9",
	}

	result, err := engine.Score(profile, answers)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Score, 100)
	assert.GreaterOrEqual(t, result.Score, 0)
}
