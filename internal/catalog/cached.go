// internal/catalog/cached.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

// CachedCatalog is a redis read-through layer in front of another catalog.
// A cache failure is never fatal: reads fall through to the source and the
// miss is logged.
type CachedCatalog struct {
	source Catalog
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedCatalog(source Catalog, rdb *redis.Client, ttl time.Duration, log logger.Logger) *CachedCatalog {
	return &CachedCatalog{
		source: source,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "catalog-cache"}),
	}
}

func cacheKey(category models.RiskCategory) string {
	return fmt.Sprintf("catalog:products:%s", category)
}

func (c *CachedCatalog) ProductsByCategory(ctx context.Context, category models.RiskCategory) ([]*models.Product, error) {
	key := cacheKey(category)

	raw, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var products []*models.Product
		if err := json.Unmarshal(raw, &products); err == nil {
			return products, nil
		}
		c.logger.Warn("corrupt catalog cache entry, refetching", map[string]interface{}{"key": key})
	} else if err != redis.Nil {
		c.logger.Warn("catalog cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	products, err := c.source.ProductsByCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(products); err == nil {
		if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return products, nil
}

// Invalidate drops the cached entry for a category, for use after catalog
// maintenance.
func (c *CachedCatalog) Invalidate(ctx context.Context, category models.RiskCategory) error {
	return c.redis.Del(ctx, cacheKey(category)).Err()
}
