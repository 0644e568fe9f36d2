// Package jobs holds background work scheduled alongside the storefront.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/storefront/internal/app/system"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// DefaultSchedule re-reads the catalog every five minutes.
const DefaultSchedule = "@every 5m"

var _ system.Service = (*Refresher)(nil)

// CatalogRefresher reloads the product catalog.
type CatalogRefresher interface {
	RefreshCatalog(ctx context.Context) error
}

// Refresher runs CatalogRefresher on a cron schedule.
type Refresher struct {
	cronJob
	target  CatalogRefresher
	timeout time.Duration

	statsMu sync.Mutex
	runs    int
}

// NewRefresher validates schedule and returns a stopped refresher. An empty
// schedule uses DefaultSchedule.
func NewRefresher(target CatalogRefresher, schedule string, log *logger.Logger) (*Refresher, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	r := &Refresher{target: target, timeout: 30 * time.Second}
	if err := r.init("catalog-refresher", schedule, log, r.RunOnce); err != nil {
		return nil, err
	}
	return r, nil
}

// RunOnce performs one refresh. Failures are logged; the store keeps the
// error in its catalog state.
func (r *Refresher) RunOnce(ctx context.Context) {
	if r.target == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := r.target.RefreshCatalog(ctx)

	r.statsMu.Lock()
	r.runs++
	r.statsMu.Unlock()

	if err != nil {
		r.log.WithError(err).Warn("catalog refresh failed")
		return
	}
	r.log.WithField("duration", time.Since(start)).Debug("catalog refreshed")
}

// Runs reports how many refreshes have completed.
func (r *Refresher) Runs() int {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.runs
}
