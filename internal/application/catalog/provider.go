// Package catalog keeps the achievement catalog loaded from the store.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
)

// DefaultRefreshInterval is how long a loaded catalog is served before reloading.
const DefaultRefreshInterval = time.Minute

// Provider serves the catalog stored in a progress.CatalogRepository and
// reloads it periodically. If a reload fails the previous catalog is kept.
type Provider struct {
	repo     progress.CatalogRepository
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	current  *progress.Catalog
	loadedAt time.Time
}

// NewProvider creates a Provider. interval <= 0 uses DefaultRefreshInterval.
func NewProvider(repo progress.CatalogRepository, interval time.Duration, logger *slog.Logger) *Provider {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		repo:     repo,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("component", "catalog_provider"),
	}
}

// Current returns the cached catalog, reloading it when stale.
func (p *Provider) Current(ctx context.Context) (*progress.Catalog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.now().Sub(p.loadedAt) < p.interval {
		return p.current, nil
	}

	fresh, err := p.load(ctx)
	if err != nil {
		if p.current != nil {
			p.logger.Warn("catalog reload failed, serving previous", "error", err)
			return p.current, nil
		}
		return nil, err
	}
	p.current = fresh
	p.loadedAt = p.now()
	return fresh, nil
}

// Invalidate forces the next Current call to reload.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadedAt = time.Time{}
}

func (p *Provider) load(ctx context.Context) (*progress.Catalog, error) {
	defs, err := p.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return progress.NewCatalog(defs)
}
