// Package order models order summaries, optimistic placeholders and the
// reconciliation rules applied to the account order list.
package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/domain/cart"
)

// Order statuses known to the backend.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFulfilled  = "fulfilled"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
)

// Statuses lists every valid status in workflow order.
var Statuses = []string{StatusPending, StatusProcessing, StatusFulfilled, StatusCancelled, StatusRefunded}

// ValidStatus reports whether s is a known status.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// PendingRef marks an optimistic order that has not been persisted yet. It lives
// in its own field so it can never collide with a backend-assigned id.
type PendingRef string

// NewPendingRef returns a fresh marker.
func NewPendingRef() PendingRef { return PendingRef(uuid.NewString()) }

// IsZero reports whether the marker is unset.
func (r PendingRef) IsZero() bool { return r == "" }

// Summary is an order as shown in the account history. Optimistic orders carry a
// Pending marker and an empty ID; persisted orders carry the backend ID.
type Summary struct {
	ID        string          `json:"id,omitempty"`
	Pending   PendingRef      `json:"pending_ref,omitempty"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []cart.Item     `json:"items"`
}

// IsPending reports whether s is an optimistic placeholder.
func (s Summary) IsPending() bool { return !s.Pending.IsZero() }

// Optimistic builds the placeholder shown while an order is being placed.
func Optimistic(items []cart.Item, total decimal.Decimal, now time.Time) Summary {
	return Summary{
		Pending:   NewPendingRef(),
		Status:    StatusProcessing,
		Total:     total,
		Currency:  "USD",
		CreatedAt: now,
		Items:     items,
	}
}

// Change is a pushed row update. Nil fields were absent from the payload.
type Change struct {
	ID     string
	Status *string
	Total  *decimal.Decimal
}

// LineRequest is one submitted order line.
type LineRequest struct {
	ProductID string          `json:"product_id"`
	VariantID *string         `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Request is the order creation payload.
type Request struct {
	UserID          string          `json:"user_id,omitempty"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	Items           []LineRequest   `json:"items"`
	ShippingDetails any             `json:"shipping_details"`
	PaymentMethod   string          `json:"payment_method"`
}

// Lines converts cart items to request lines.
func Lines(items []cart.Item) []LineRequest {
	out := make([]LineRequest, len(items))
	for i, it := range items {
		var variant *string
		if it.VariantID != "" {
			v := it.VariantID
			variant = &v
		}
		out[i] = LineRequest{
			ProductID: it.ProductID,
			VariantID: variant,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return out
}
