package admin

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/R3E-Network/storefront/internal/app/domain/admin"
)

const (
	analyticsWindow = 30 * 24 * time.Hour
	recentLimit     = 5
)

// Analytics builds the dashboard: revenue over the last 30 days by status and
// by day, plus the latest inventory events and audit entries. The three reads
// run concurrently and the first failure cancels the rest.
func (s *Service) Analytics(ctx context.Context) (domain.Analytics, error) {
	if s.backends.Analytics == nil {
		return domain.Analytics{}, ErrNotConfigured
	}
	since := s.now().Add(-analyticsWindow)

	var (
		revenue []domain.RevenueRow
		events  []domain.InventoryEvent
		logs    []domain.AuditLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revenue, err = s.backends.Analytics.ListRevenueSince(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.backends.Analytics.ListInventoryEvents(gctx, recentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = s.backends.Analytics.ListAuditLogs(gctx, recentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.WithError(err).Warn("analytics load failed")
		return domain.Analytics{}, err
	}

	byStatus, daily, total := domain.Summarize(revenue)
	if events == nil {
		events = []domain.InventoryEvent{}
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	return domain.Analytics{
		RevenueByStatus: byStatus,
		RevenueTotal:    total,
		DailySales:      daily,
		InventoryEvents: events,
		AuditLog:        logs,
	}, nil
}
