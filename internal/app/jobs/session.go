package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/system"
	"github.com/R3E-Network/storefront/pkg/logger"
)

const (
	// DefaultSessionSchedule checks the session expiry every minute.
	DefaultSessionSchedule = "@every 1m"
	// DefaultRefreshMargin refreshes a session this long before it expires.
	DefaultRefreshMargin = 5 * time.Minute
)

var _ system.Service = (*SessionKeeper)(nil)

// SessionRefresher exposes the mirrored session and renews it.
type SessionRefresher interface {
	Session() *account.Session
	RefreshSession(ctx context.Context) error
}

// SessionKeeper renews the signed-in session before its access token expires.
type SessionKeeper struct {
	cronJob
	target  SessionRefresher
	margin  time.Duration
	now     func() time.Time
	timeout time.Duration

	statsMu   sync.Mutex
	refreshes int
}

// NewSessionKeeper returns a stopped keeper. Empty or zero arguments use the
// package defaults.
func NewSessionKeeper(target SessionRefresher, schedule string, margin time.Duration, log *logger.Logger) (*SessionKeeper, error) {
	if schedule == "" {
		schedule = DefaultSessionSchedule
	}
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	k := &SessionKeeper{target: target, margin: margin, now: time.Now, timeout: 30 * time.Second}
	if err := k.init("session-keeper", schedule, log, k.RunOnce); err != nil {
		return nil, err
	}
	return k, nil
}

// RunOnce refreshes the session when it expires within the margin. Sessions
// without an expiry are left alone.
func (k *SessionKeeper) RunOnce(ctx context.Context) {
	session := k.target.Session()
	if session == nil || session.ExpiresAt.IsZero() {
		return
	}
	if k.now().Add(k.margin).Before(session.ExpiresAt) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.target.RefreshSession(ctx); err != nil {
		k.log.WithError(err).WithField("user_id", session.UserID).Warn("session refresh failed")
		return
	}

	k.statsMu.Lock()
	k.refreshes++
	k.statsMu.Unlock()
	k.log.WithField("user_id", session.UserID).Debug("session refreshed")
}

// Refreshes reports how many sessions were renewed.
func (k *SessionKeeper) Refreshes() int {
	k.statsMu.Lock()
	defer k.statsMu.Unlock()
	return k.refreshes
}
