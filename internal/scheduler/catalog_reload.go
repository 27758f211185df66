package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/domain"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/service"
	"github.com/MrSnakeDoc/unilend/internal/sources/catalog"
)

// CatalogCache shares the catalog between replicas. The redis store
// implements it; the memory backend runs without one.
type CatalogCache interface {
	SaveCatalog(ctx context.Context, c domain.Catalog) error
	LoadCatalog(ctx context.Context) (domain.Catalog, bool, error)
}

// CatalogReloader handles periodic reloading of the catalog file
type CatalogReloader struct {
	loader        *catalog.Loader
	catalog       *service.Catalog
	cache         CatalogCache
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewCatalogReloader creates a new catalog reloader. cache may be nil.
func NewCatalogReloader(
	catalogFile string,
	cat *service.Catalog,
	cache CatalogCache,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *CatalogReloader {
	return &CatalogReloader{
		loader:        catalog.NewLoader(catalogFile),
		catalog:       cat,
		cache:         cache,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the catalog once, then reloads it on every tick and manual
// trigger until Stop or ctx is done.
func (cr *CatalogReloader) Start(ctx context.Context) error {
	if err := cr.Reload(ctx); err != nil {
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	ticker := time.NewTicker(cr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := cr.Reload(ctx); err != nil {
					cr.logger.Error("failed to reload catalog", logger.Error(err))
				}
			case <-cr.manualTrigger:
				cr.logger.Info("manual catalog reload triggered")
				if err := cr.Reload(ctx); err != nil {
					cr.logger.Error("failed to reload catalog", logger.Error(err))
				}
			case <-cr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (cr *CatalogReloader) Stop() {
	close(cr.stopCh)
}

// Reload reads the file, replaces the served catalog and refreshes the
// cache. A failed read keeps the current catalog.
func (cr *CatalogReloader) Reload(ctx context.Context) error {
	f, err := cr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", cr.loader.Path(), err)
	}

	c := catalog.Map(f)
	cr.catalog.Set(c, "file")
	cr.logger.Info("catalog loaded",
		logger.String("file", cr.loader.Path()),
		logger.Int("quick_tags", len(c.QuickTags)),
		logger.Int("conditions", len(c.Conditions)),
		logger.Int("formats", len(c.Formats)))

	// Best effort; the in-process catalog is the primary copy.
	if cr.cache != nil {
		if err := cr.cache.SaveCatalog(ctx, c); err != nil {
			cr.logger.Warn("failed to cache catalog in redis", logger.Error(err))
		}
	}
	return nil
}
