// Package admin holds the records managed from the admin console. Money is kept
// in integer cents as stored by the backend.
package admin

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Product statuses toggled from the console.
const (
	ProductActive = "active"
	ProductDraft  = "draft"
)

// Uncategorized groups products without a category.
const Uncategorized = "Uncategorized"

// Category is a catalog category.
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

// Product is the admin view of a product row.
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Status         string    `json:"status"`
	PriceCents     int64     `json:"price_cents"`
	Currency       string    `json:"currency"`
	InventoryCount int       `json:"inventory_count"`
	CategoryID     *string   `json:"category_id"`
	Category       *Category `json:"category,omitempty"`
}

// NextStatus is the status a toggle moves the product to.
func (p Product) NextStatus() string {
	if p.Status == ProductActive {
		return ProductDraft
	}
	return ProductActive
}

// ProductGroup is a category name and its products.
type ProductGroup struct {
	Category string    `json:"category"`
	Products []Product `json:"products"`
}

// GroupByCategory groups products by category name in first-seen order.
func GroupByCategory(products []Product) []ProductGroup {
	index := make(map[string]int)
	var groups []ProductGroup
	for _, p := range products {
		key := Uncategorized
		if p.Category != nil && p.Category.Name != "" {
			key = p.Category.Name
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, ProductGroup{Category: key})
		}
		groups[i].Products = append(groups[i].Products, p)
	}
	return groups
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

// OrderSummary is a row of the admin_order_summary view.
type OrderSummary struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	TotalCents  int64      `json:"total_cents"`
	Currency    string     `json:"currency"`
	PlacedAt    time.Time  `json:"placed_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
	Email       *string    `json:"email"`
	FullName    *string    `json:"full_name"`
	ItemCount   int        `json:"item_count"`
}

// OrderItem is a line of an order detail with its linked product.
type OrderItem struct {
	ID             int64  `json:"id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	ProductSlug    string `json:"product_slug,omitempty"`
}

// OrderDetail is an order with its line items.
type OrderDetail struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	TotalCents      int64           `json:"total_cents"`
	Currency        string          `json:"currency"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
	BillingAddress  json.RawMessage `json:"billing_address,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CustomerID      string          `json:"customer_id"`
	PlacedAt        time.Time       `json:"placed_at"`
	FulfilledAt     *time.Time      `json:"fulfilled_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	Items           []OrderItem     `json:"order_items"`
}

// TotalRevenue sums the order totals in cents.
func TotalRevenue(orders []OrderSummary) int64 {
	var total int64
	for _, o := range orders {
		total += o.TotalCents
	}
	return total
}

// OpenOrders counts orders still pending or processing.
func OpenOrders(orders []OrderSummary) int {
	n := 0
	for _, o := range orders {
		if o.Status == "pending" || o.Status == "processing" {
			n++
		}
	}
	return n
}

// Setting is a JSON configuration value.
type Setting struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description *string         `json:"description"`
}

// Media is a registered media asset.
type Media struct {
	ID        string    `json:"id"`
	ProductID *string   `json:"product_id"`
	Path      string    `json:"path"`
	MediaType string    `json:"media_type"`
	AltText   *string   `json:"alt_text"`
	CreatedAt time.Time `json:"created_at"`
}

// Upload is a file to attach to a product.
type Upload struct {
	ProductID   string
	FileName    string
	ContentType string
	AltText     string
	Data        []byte
}

// UploadTicket is what the upload function returns for phase two.
type UploadTicket struct {
	UploadURL string          `json:"uploadUrl"`
	Token     string          `json:"token"`
	Path      string          `json:"path"`
	Media     json.RawMessage `json:"media,omitempty"`
}

// InventoryEvent is an inventory ledger entry.
type InventoryEvent struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	QuantityDelta     int       `json:"quantity_delta"`
	Reason            *string   `json:"reason"`
	ResultingQuantity int       `json:"resulting_quantity"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuditLog is an admin audit entry.
type AuditLog struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	TargetTable *string         `json:"target_table"`
	TargetID    *string         `json:"target_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Metadata    json.RawMessage `json:"metadata"`
}

// RevenueRow is the slice of an order used by analytics.
type RevenueRow struct {
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	PlacedAt   time.Time `json:"placed_at"`
}

// DailySales is revenue for one UTC day.
type DailySales struct {
	Date  string `json:"date"`
	Total int64  `json:"total"`
}

// Analytics is the dashboard read model.
type Analytics struct {
	RevenueByStatus map[string]int64 `json:"revenue_by_status"`
	RevenueTotal    int64            `json:"revenue_total"`
	DailySales      []DailySales     `json:"daily_sales"`
	InventoryEvents []InventoryEvent `json:"inventory_events"`
	AuditLog        []AuditLog       `json:"audit_log"`
}

// Summarize computes revenue per status and per UTC day, days ascending.
func Summarize(rows []RevenueRow) (byStatus map[string]int64, daily []DailySales, total int64) {
	byStatus = make(map[string]int64)
	perDay := make(map[string]int64)
	for _, r := range rows {
		status := r.Status
		if status == "" {
			status = "unknown"
		}
		byStatus[status] += r.TotalCents
		perDay[r.PlacedAt.UTC().Format("2006-01-02")] += r.TotalCents
		total += r.TotalCents
	}
	daily = make([]DailySales, 0, len(perDay))
	for date, sum := range perDay {
		daily = append(daily, DailySales{Date: date, Total: sum})
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })
	return byStatus, daily, total
}
