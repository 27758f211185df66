package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/unilend/internal/domain"
)

// SaveCatalog caches the catalog so every replica serves the same options.
func (s *Store) SaveCatalog(ctx context.Context, c domain.Catalog) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := s.client.Set(ctx, KeyCatalog, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	return nil
}

// LoadCatalog returns the cached catalog; ok is false on a cache miss.
func (s *Store) LoadCatalog(ctx context.Context) (c domain.Catalog, ok bool, err error) {
	data, err := s.client.Get(ctx, KeyCatalog).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Catalog{}, false, nil
		}
		return domain.Catalog{}, false, fmt.Errorf("failed to get catalog: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Catalog{}, false, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	return c, true, nil
}
