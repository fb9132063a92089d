// internal/recommend/engine.go

// Package recommend builds portfolio allocations for approved customers. The
// engine splits the requested amount across three risk buckets per the
// customer's strategy band, filters and ranks each bucket's products, and
// allocates evenly over the top picks.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"suitability-pipeline/internal/catalog"
	"suitability-pipeline/internal/common/config"
	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/common/metrics"
	"suitability-pipeline/internal/models"
)

// Preference keys the engine understands. Unknown keys are ignored.
const (
	PrefLiquidity        = "liquidity"
	PrefInvestmentPeriod = "investment_period"
)

// minLiquidityForHighPref is the floor applied when the customer asks for
// high liquidity.
const minLiquidityForHighPref = 8

// shortPeriodRatioShift moves allocation from the aggressive bucket to the
// conservative one for short-horizon customers.
const shortPeriodRatioShift = 0.2

// Request carries everything the engine needs to build one recommendation.
type Request struct {
	CustomerID  string
	WorkItemID  string
	Score       int
	Category    models.RiskCategory
	Amount      float64
	Preferences map[string]string
}

// Engine is a pure computation over the catalog; persistence and notification
// belong to the caller.
type Engine struct {
	bands          []config.StrategyBand
	rankWeights    config.RankWeights
	bucketCap      int
	picksPerBucket int
	catalog        catalog.Catalog
	logger         logger.Logger
}

func NewEngine(cfg config.RecommendationConfig, cat catalog.Catalog, log logger.Logger) *Engine {
	bands := make([]config.StrategyBand, len(cfg.Bands))
	copy(bands, cfg.Bands)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MaxScore < bands[j].MaxScore })
	return &Engine{
		bands:          bands,
		rankWeights:    cfg.RankWeights,
		bucketCap:      cfg.BucketCap,
		picksPerBucket: cfg.PicksPerBucket,
		catalog:        cat,
		logger:         log.WithFields(map[string]interface{}{"component": "recommend"}),
	}
}

// Recommend builds an allocation for the request. An empty bucket leaves its
// share unallocated and is reported in the rationale; only when every bucket
// comes up empty does the engine fail with NO_ELIGIBLE_PRODUCTS.
func (e *Engine) Recommend(ctx context.Context, req Request) (*models.RecommendationResult, error) {
	started := time.Now()
	defer func() {
		metrics.RecommendationDuration.Observe(time.Since(started).Seconds())
	}()

	if req.Score < 0 || req.Score > 100 {
		return nil, errors.NewInvalidScore(req.Score)
	}
	if req.Amount <= 0 {
		return nil, errors.NewInvalidInput(fmt.Sprintf("invest amount must be positive, got %v", req.Amount))
	}

	band := e.bandFor(req.Score)
	ratios := e.applyPreferences(band, req)
	minLiquidity := 0
	if req.Preferences[PrefLiquidity] == "high" {
		minLiquidity = minLiquidityForHighPref
	}

	var (
		items           []models.AllocationItem
		allocated       float64
		weightedReturn  float64
		weightedRisk    float64
		emptyBuckets    []string
		nonEmptyBuckets int
	)

	for _, bucket := range models.AllRiskCategories() {
		share := ratios[bucket]
		if share <= 0 {
			continue
		}
		bucketAmount := req.Amount * share

		products, err := e.catalog.ProductsByCategory(ctx, bucket)
		if err != nil {
			return nil, err
		}

		candidates := e.filter(products, band, bucketAmount, minLiquidity)
		ranked := e.rank(candidates, req.Category)
		if e.bucketCap > 0 && len(ranked) > e.bucketCap {
			ranked = ranked[:e.bucketCap]
		}
		if len(ranked) == 0 {
			emptyBuckets = append(emptyBuckets, string(bucket))
			e.logger.Warn("bucket has no eligible products", map[string]interface{}{
				"customerId": req.CustomerID,
				"bucket":     bucket,
				"amount":     bucketAmount,
			})
			continue
		}
		nonEmptyBuckets++

		picks := ranked
		if e.picksPerBucket > 0 && len(picks) > e.picksPerBucket {
			picks = picks[:e.picksPerBucket]
		}

		// Even split with the rounding remainder folded into the last pick so
		// bucket totals match exactly.
		per := math.Floor(bucketAmount/float64(len(picks))*100) / 100
		for i, pick := range picks {
			amount := per
			if i == len(picks)-1 {
				amount = bucketAmount - per*float64(len(picks)-1)
			}
			items = append(items, models.AllocationItem{
				ProductID:   pick.product.ID,
				ProductName: pick.product.Name,
				Category:    bucket,
				Amount:      round2(amount),
				Score:       round4(pick.score),
			})
			allocated += amount
			if pick.product.ExpectedReturn != nil {
				weightedReturn += *pick.product.ExpectedReturn * amount
			}
			if pick.product.Volatility != nil {
				weightedRisk += *pick.product.Volatility * amount
			}
		}
	}

	if nonEmptyBuckets == 0 {
		metrics.RecommendationFailures.WithLabelValues(string(errors.CodeNoEligibleProducts)).Inc()
		return nil, errors.NewNoEligibleProducts(string(req.Category), req.Score)
	}

	// Percentages are of the requested total, so an unallocated bucket shows
	// up as percentages summing below 100.
	for i := range items {
		items[i].Percent = round4(items[i].Amount / req.Amount * 100)
	}
	if allocated > 0 {
		weightedReturn /= allocated
		weightedRisk /= allocated
	}

	result := &models.RecommendationResult{
		ID:              uuid.NewString(),
		CustomerID:      req.CustomerID,
		Items:           items,
		TotalAmount:     req.Amount,
		AllocatedAmount: round2(allocated),
		ExpectedReturn:  round2(weightedReturn),
		ExpectedRisk:    round2(weightedRisk),
		Rationale:       e.rationale(req, ratios, emptyBuckets),
		CreatedAt:       time.Now().UTC(),
	}
	if req.WorkItemID != "" {
		wid := req.WorkItemID
		result.WorkItemID = &wid
	}

	metrics.RecommendationsGenerated.Inc()
	e.logger.Info("recommendation built", map[string]interface{}{
		"customerId":   req.CustomerID,
		"score":        req.Score,
		"items":        len(items),
		"allocated":    result.AllocatedAmount,
		"emptyBuckets": emptyBuckets,
	})
	return result, nil
}

// bandFor returns the first band whose MaxScore exceeds the score; the last
// band catches everything else.
func (e *Engine) bandFor(score int) config.StrategyBand {
	for _, band := range e.bands {
		if score < band.MaxScore {
			return band
		}
	}
	return e.bands[len(e.bands)-1]
}

// applyPreferences shifts bucket ratios for stated preferences and
// renormalizes so they sum to one. Each adjustment is logged.
func (e *Engine) applyPreferences(band config.StrategyBand, req Request) map[models.RiskCategory]float64 {
	ratios := map[models.RiskCategory]float64{
		models.RiskConservative: band.ConservativeRatio,
		models.RiskModerate:     band.ModerateRatio,
		models.RiskAggressive:   band.AggressiveRatio,
	}

	if req.Preferences[PrefInvestmentPeriod] == "short" {
		ratios[models.RiskConservative] += shortPeriodRatioShift
		ratios[models.RiskAggressive] = math.Max(0, ratios[models.RiskAggressive]-shortPeriodRatioShift)
		e.logger.Info("short-period preference shifted allocation toward conservative", map[string]interface{}{
			"customerId": req.CustomerID,
		})
	}

	sum := 0.0
	for _, r := range ratios {
		sum += r
	}
	if sum > 0 {
		for k := range ratios {
			ratios[k] /= sum
		}
	}
	return ratios
}

// filter drops products failing the band's risk gates, the liquidity floor,
// or the minimum investment for the bucket's amount. A product missing an
// attribute passes the corresponding gate.
func (e *Engine) filter(products []*models.Product, band config.StrategyBand, bucketAmount float64, minLiquidity int) []*models.Product {
	var out []*models.Product
	for _, p := range products {
		if p.SharpeRatio != nil && *p.SharpeRatio < band.MinSharpe {
			continue
		}
		if p.Volatility != nil && *p.Volatility > band.MaxVolatility {
			continue
		}
		if minLiquidity > 0 && p.LiquidityScore != nil && *p.LiquidityScore < minLiquidity {
			continue
		}
		if p.MinInvestment != nil && *p.MinInvestment > bucketAmount {
			continue
		}
		out = append(out, p)
	}
	return out
}

type rankedProduct struct {
	product *models.Product
	score   float64
}

// rank orders candidates by composite quality score, best first. Ties break
// on product id for a stable ordering.
func (e *Engine) rank(products []*models.Product, customerCategory models.RiskCategory) []rankedProduct {
	out := make([]rankedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, rankedProduct{product: p, score: e.composite(p, customerCategory)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].product.ID < out[j].product.ID
	})
	return out
}

// composite blends return, volatility, sharpe, and rating into one score,
// scaled by how closely the product's risk tier matches the customer's.
func (e *Engine) composite(p *models.Product, customerCategory models.RiskCategory) float64 {
	score := 0.0
	if p.ExpectedReturn != nil {
		score += e.rankWeights.Return * norm(*p.ExpectedReturn, 0, 25)
	}
	if p.Volatility != nil {
		score += e.rankWeights.Volatility * (1 - norm(*p.Volatility, 0, 30))
	}
	if p.SharpeRatio != nil {
		score += e.rankWeights.Sharpe * norm(*p.SharpeRatio, 0, 10)
	}
	if p.AvgRating != nil {
		score += e.rankWeights.Rating * norm(*p.AvgRating, 0, 10)
	}
	return score * riskMatchMultiplier(p.Category, customerCategory)
}

// riskMatchMultiplier boosts products in the customer's own risk tier and
// penalizes products two tiers away.
func riskMatchMultiplier(product, customer models.RiskCategory) float64 {
	switch distance := abs(product.Order() - customer.Order()); distance {
	case 0:
		return 1.2
	case 1:
		return 1.0
	default:
		return 0.8
	}
}

func (e *Engine) rationale(req Request, ratios map[models.RiskCategory]float64, emptyBuckets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk score %d (%s): target allocation %.0f%% conservative, %.0f%% moderate, %.0f%% aggressive.",
		req.Score, req.Category,
		ratios[models.RiskConservative]*100,
		ratios[models.RiskModerate]*100,
		ratios[models.RiskAggressive]*100)
	if req.Preferences[PrefInvestmentPeriod] == "short" {
		b.WriteString(" Short investment period preference shifted allocation toward conservative products.")
	}
	if req.Preferences[PrefLiquidity] == "high" {
		b.WriteString(" High liquidity preference restricted candidates to highly liquid products.")
	}
	if len(emptyBuckets) > 0 {
		fmt.Fprintf(&b, " No eligible products in: %s; that share is left unallocated.",
			strings.Join(emptyBuckets, ", "))
	}
	return b.String()
}

func norm(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
