package admin

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

// OrdersView is the fulfillment queue with its headline numbers.
type OrdersView struct {
	Orders       []domain.OrderSummary `json:"orders"`
	RevenueCents int64                 `json:"revenue_cents"`
	Open         int                   `json:"open"`
}

// Orders lists every order, newest first.
func (s *Service) Orders(ctx context.Context) (OrdersView, error) {
	if s.backends.Orders == nil {
		return OrdersView{}, ErrNotConfigured
	}
	orders, err := s.backends.Orders.ListOrderSummaries(ctx)
	if err != nil {
		return OrdersView{}, err
	}
	return OrdersView{
		Orders:       orders,
		RevenueCents: domain.TotalRevenue(orders),
		Open:         domain.OpenOrders(orders),
	}, nil
}

// OrderDetail loads one order with its line items.
func (s *Service) OrderDetail(ctx context.Context, id string) (domain.OrderDetail, error) {
	if s.backends.Orders == nil {
		return domain.OrderDetail{}, ErrNotConfigured
	}
	return s.backends.Orders.GetOrderDetail(ctx, id)
}

// UpdateOrderStatus moves an order to status with optional notes. The
// backend records the transition in the audit log.
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status, notes string) error {
	if s.backends.Orders == nil {
		return ErrNotConfigured
	}
	if !order.ValidStatus(status) {
		return invalid(fmt.Sprintf("unknown order status %q", status))
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	if err := s.confirmed(ctx, fmt.Sprintf("Move order %s... to %s? This action will be audit logged.", short, status)); err != nil {
		return err
	}

	if err := s.backends.Orders.UpdateOrderStatus(ctx, id, status, strings.TrimSpace(notes)); err != nil {
		return err
	}
	s.log.WithField("order_id", id).WithField("status", status).Info("order status updated")
	return nil
}
