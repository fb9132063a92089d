// internal/catalog/catalog.go

// Package catalog reads candidate products for the recommendation engine.
// The pipeline treats the catalog as read-only reference data; product
// maintenance happens in a separate system.
package catalog

import (
	"context"

	"suitability-pipeline/internal/models"
)

// Catalog lists active products by risk category.
type Catalog interface {
	ProductsByCategory(ctx context.Context, category models.RiskCategory) ([]*models.Product, error)
}
