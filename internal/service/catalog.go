// Package service holds the marketplace use cases: listing uploads,
// accounts and sessions, the option catalog, and the live views clients
// stream.
package service

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/domain"
)

// Catalog holds the option lists currently served. Schedulers replace it
// on reload; readers always get a copy.
type Catalog struct {
	mu        sync.RWMutex
	current   domain.Catalog
	updatedAt time.Time
	source    string
}

func NewCatalog() *Catalog {
	return &Catalog{current: domain.DefaultCatalog(), source: "defaults"}
}

func (c *Catalog) Get() domain.Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.Catalog{
		QuickTags:  append([]string{}, c.current.QuickTags...),
		Conditions: append([]string{}, c.current.Conditions...),
		Formats:    append([]string{}, c.current.Formats...),
	}
}

// Set replaces the catalog; source names where it came from ("file",
// "redis", "defaults") for the infra endpoint.
func (c *Catalog) Set(cat domain.Catalog, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = cat
	c.source = source
	c.updatedAt = time.Now()
}

// Info returns the catalog's origin and last update time.
func (c *Catalog) Info() (source string, updatedAt time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source, c.updatedAt
}
