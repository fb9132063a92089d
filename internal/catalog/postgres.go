// internal/catalog/postgres.go
package catalog

import (
	"context"
	"database/sql"

	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

// PostgresCatalog reads active products with their average customer rating
// folded in. Products with no ratings come back with a nil AvgRating.
type PostgresCatalog struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresCatalog(db *sql.DB, log logger.Logger) *PostgresCatalog {
	return &PostgresCatalog{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "catalog"}),
	}
}

func (c *PostgresCatalog) ProductsByCategory(ctx context.Context, category models.RiskCategory) ([]*models.Product, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.code, p.category, p.expected_return, p.volatility,
		        p.sharpe_ratio, p.min_investment, p.liquidity_score, AVG(r.rating), p.currency
		 FROM products p
		 LEFT JOIN product_ratings r ON r.product_id = p.id
		 WHERE p.category = $1 AND p.active
		 GROUP BY p.id
		 ORDER BY p.id`, string(category))
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("products by category", err)
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		var p models.Product
		var cat string
		var expReturn, volatility, sharpe, minInvest, rating sql.NullFloat64
		var liquidity sql.NullInt64
		var code, currency sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &code, &cat, &expReturn, &volatility,
			&sharpe, &minInvest, &liquidity, &rating, &currency); err != nil {
			return nil, errors.NewDatabaseQueryFailed("scan product", err)
		}
		p.Category = models.RiskCategory(cat)
		p.Code = code.String
		p.Currency = currency.String
		if expReturn.Valid {
			p.ExpectedReturn = &expReturn.Float64
		}
		if volatility.Valid {
			p.Volatility = &volatility.Float64
		}
		if sharpe.Valid {
			p.SharpeRatio = &sharpe.Float64
		}
		if minInvest.Valid {
			p.MinInvestment = &minInvest.Float64
		}
		if liquidity.Valid {
			v := int(liquidity.Int64)
			p.LiquidityScore = &v
		}
		if rating.Valid {
			p.AvgRating = &rating.Float64
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailed("products by category", err)
	}
	return out, nil
}
