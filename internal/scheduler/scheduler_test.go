package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/docstore/memory"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/service"
)

type memCache struct {
	saved   *domain.Catalog
	loadErr error
}

func (m *memCache) SaveCatalog(_ context.Context, c domain.Catalog) error {
	m.saved = &c
	return nil
}

func (m *memCache) LoadCatalog(_ context.Context) (domain.Catalog, bool, error) {
	if m.loadErr != nil {
		return domain.Catalog{}, false, m.loadErr
	}
	if m.saved == nil {
		return domain.Catalog{}, false, nil
	}
	return *m.saved, true, nil
}

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestCatalogReloader_Reload(t *testing.T) {
	path := writeCatalog(t, "quick_tags: [Law, maths]\n")
	cat := service.NewCatalog()
	cache := &memCache{}

	cr := NewCatalogReloader(path, cat, cache, logger.Nop(), time.Hour, make(chan struct{}))
	if err := cr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	got := cat.Get()
	if len(got.QuickTags) != 2 || got.QuickTags[0] != "law" {
		t.Errorf("QuickTags = %v, want [law maths]", got.QuickTags)
	}
	if len(got.Conditions) == 0 {
		t.Error("Conditions should fall back to defaults")
	}
	if source, _ := cat.Info(); source != "file" {
		t.Errorf("source = %q, want file", source)
	}
	if cache.saved == nil {
		t.Error("catalog was not cached")
	}
}

func TestCatalogReloader_BadFileKeepsCurrent(t *testing.T) {
	cat := service.NewCatalog()
	before := cat.Get()

	cr := NewCatalogReloader(filepath.Join(t.TempDir(), "missing.yaml"), cat, nil, logger.Nop(), time.Hour, nil)
	if err := cr.Reload(context.Background()); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if got := cat.Get(); len(got.QuickTags) != len(before.QuickTags) {
		t.Errorf("catalog changed after a failed reload: %v", got.QuickTags)
	}
}

func TestCatalogReloader_ManualTrigger(t *testing.T) {
	path := writeCatalog(t, "quick_tags: [maths]\n")
	cat := service.NewCatalog()
	trigger := make(chan struct{}, 1)

	cr := NewCatalogReloader(path, cat, nil, logger.Nop(), time.Hour, trigger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := cr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer cr.Stop()

	if err := os.WriteFile(path, []byte("quick_tags: [art]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	trigger <- struct{}{}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if tags := cat.Get().QuickTags; len(tags) == 1 && tags[0] == "art" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("manual trigger did not reload, QuickTags = %v", cat.Get().QuickTags)
}

func TestCatalogSyncer_Sync(t *testing.T) {
	tests := []struct {
		name       string
		cache      *memCache
		wantSource string
		wantErr    bool
	}{
		{"miss keeps defaults", &memCache{}, "defaults", false},
		{"hit replaces catalog", &memCache{saved: &domain.Catalog{QuickTags: []string{"law"}}}, "redis", false},
		{"error", &memCache{loadErr: errors.New("boom")}, "defaults", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := service.NewCatalog()
			err := NewCatalogSyncer(tt.cache, cat, logger.Nop()).Sync(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Sync() error = %v, wantErr %v", err, tt.wantErr)
			}
			if source, _ := cat.Info(); source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
		})
	}
}

type countingPurger struct{ calls int }

func (c *countingPurger) Purge() int {
	c.calls++
	return 2
}

func TestViewReaper_Collect(t *testing.T) {
	store := memory.New()
	reg := service.NewViewRegistry(store, service.ViewConfig{}, logger.Nop())
	defer reg.CloseAll()

	ident := domain.Identity{UserID: "u1", Email: "a@campus.edu"}
	v, err := reg.Open(context.Background(), ident, service.ViewBrowse)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	purger := &countingPurger{}
	vr := NewViewReaper(reg, purger, logger.Nop(), time.Hour, time.Hour)

	if n := vr.Collect(); n != 0 {
		t.Errorf("fresh view reaped: got %d", n)
	}

	vr.idle = time.Nanosecond
	time.Sleep(time.Millisecond)
	if n := vr.Collect(); n != 1 {
		t.Errorf("Collect() = %d, want 1", n)
	}
	if !v.List().Closed() {
		t.Error("reaped view was not closed")
	}
	if purger.calls != 2 {
		t.Errorf("Purge called %d times, want 2", purger.calls)
	}
}
