package supabase

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/supabase/client"
)

// OrdersChannel is the realtime channel name used for order updates.
const OrdersChannel = "orders-updates"

// --- OrderFeed --------------------------------------------------------------

// SubscribeOrders opens a realtime connection authorized as the current session
// and forwards changes to orders of userID.
func (s *Store) SubscribeOrders(ctx context.Context, userID string, fn func(order.Change)) (storage.Subscription, error) {
	rc := s.client.Realtime()
	cfg := client.PostgresChangesConfig{
		Event:  "*",
		Schema: "public",
		Table:  "orders",
		Filter: "user_id=eq." + userID,
	}
	ch, err := rc.SubscribePostgresChanges(ctx, OrdersChannel, cfg, func(ev client.ChangeEvent) {
		if c, ok := changeFromRecord(ev.Record); ok {
			fn(c)
		}
	})
	if err != nil {
		rc.Disconnect()
		return nil, fmt.Errorf("subscribe orders: %w", err)
	}
	s.log.WithField("user_id", userID).Debug("order feed subscribed")
	return &realtimeSubscription{rc: rc, ch: ch}, nil
}

// changeFromRecord extracts id, status and total from a changed orders row.
func changeFromRecord(rec gjson.Result) (order.Change, bool) {
	id := rec.Get("id").String()
	if id == "" {
		return order.Change{}, false
	}
	c := order.Change{ID: id}
	if v := rec.Get("status"); v.Exists() && v.Type != gjson.Null {
		status := v.String()
		c.Status = &status
	}
	if v := rec.Get("total"); v.Exists() && v.Type != gjson.Null {
		if total, err := decimal.NewFromString(v.String()); err == nil {
			c.Total = &total
		}
	}
	return c, true
}

type realtimeSubscription struct {
	once sync.Once
	rc   *client.RealtimeClient
	ch   *client.Channel
	err  error
}

func (r *realtimeSubscription) Close() error {
	r.once.Do(func() {
		if err := r.ch.Unsubscribe(); err != nil {
			r.err = err
		}
		if err := r.rc.Disconnect(); err != nil && r.err == nil {
			r.err = err
		}
	})
	return r.err
}
