package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/service"
)

// CatalogSyncer seeds the served catalog from the redis cache on startup,
// for replicas that run without a catalog file.
type CatalogSyncer struct {
	cache   CatalogCache
	catalog *service.Catalog
	logger  logger.Logger
}

func NewCatalogSyncer(cache CatalogCache, cat *service.Catalog, log logger.Logger) *CatalogSyncer {
	return &CatalogSyncer{
		cache:   cache,
		catalog: cat,
		logger:  log,
	}
}

// Sync loads the cached catalog. A miss keeps the defaults.
func (cs *CatalogSyncer) Sync(ctx context.Context) error {
	c, ok, err := cs.cache.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	if !ok {
		cs.logger.Info("no cached catalog in redis, using defaults")
		return nil
	}

	cs.catalog.Set(c, "redis")
	cs.logger.Info("synced catalog from redis",
		logger.Int("quick_tags", len(c.QuickTags)))
	return nil
}
