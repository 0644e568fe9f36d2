package supabase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

// productRow mirrors the products select with nullable columns.
type productRow struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Slug            string           `json:"slug"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price"`
	Currency        *string          `json:"currency"`
	ImageURL        *string          `json:"image_url"`
	Gallery         []string         `json:"gallery"`
	Category        *string          `json:"category"`
	Tags            []string         `json:"tags"`
	Featured        *bool            `json:"featured"`
	Rating          *float64         `json:"rating"`
	CreatedAt       *time.Time       `json:"created_at"`
	InventoryStatus *string          `json:"inventory_status"`
	Metadata        map[string]any   `json:"metadata"`
	Variants        []variantRow     `json:"variants"`
}

type variantRow struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Price        *decimal.Decimal `json:"price"`
	SKU          *string          `json:"sku"`
	Stock        *int             `json:"stock"`
	OptionValues map[string]any   `json:"option_values"`
}

func (r productRow) toDomain() catalog.Product {
	p := catalog.Product{
		ID:              r.ID,
		Name:            r.Name,
		Slug:            r.Slug,
		Description:     deref(r.Description),
		ImageURL:        deref(r.ImageURL),
		Gallery:         r.Gallery,
		Category:        deref(r.Category),
		Tags:            r.Tags,
		Rating:          r.Rating,
		InventoryStatus: deref(r.InventoryStatus),
		Metadata:        r.Metadata,
		Currency:        deref(r.Currency),
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Featured != nil {
		p.Featured = *r.Featured
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	for _, v := range r.Variants {
		variant := catalog.Variant{
			ID:           v.ID,
			Name:         v.Name,
			Price:        v.Price,
			SKU:          deref(v.SKU),
			OptionValues: v.OptionValues,
		}
		if v.Stock != nil {
			variant.Stock = *v.Stock
		}
		p.Variants = append(p.Variants, variant)
	}
	return p.Normalize()
}

type orderRow struct {
	ID        string           `json:"id"`
	Status    *string          `json:"status"`
	Total     *decimal.Decimal `json:"total"`
	Currency  *string          `json:"currency"`
	CreatedAt *time.Time       `json:"created_at"`
}

// toDomain applies the history defaults: processing, the given total, USD, now.
func (r orderRow) toDomain(total decimal.Decimal, now time.Time) order.Summary {
	s := order.Summary{
		ID:        r.ID,
		Status:    order.StatusProcessing,
		Total:     total,
		Currency:  catalog.DefaultCurrency,
		CreatedAt: now,
	}
	if r.Status != nil {
		s.Status = *r.Status
	}
	if r.Total != nil {
		s.Total = *r.Total
	}
	if r.Currency != nil {
		s.Currency = *r.Currency
	}
	if r.CreatedAt != nil {
		s.CreatedAt = *r.CreatedAt
	}
	return s
}

type orderInsert struct {
	UserID          *string             `json:"user_id"`
	Total           decimal.Decimal     `json:"total"`
	Currency        string              `json:"currency"`
	Status          string              `json:"status"`
	Items           []order.LineRequest `json:"items"`
	ShippingDetails any                 `json:"shipping_details"`
	PaymentMethod   string              `json:"payment_method"`
}

// adminProductRow carries the embedded category under the alias used in the select.
type adminProductRow struct {
	admin.Product
	Categories *admin.Category `json:"categories"`
}

type orderItemRow struct {
	ID             int64  `json:"id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	ProductID      string `json:"product_id"`
	Products       *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"products"`
}

type orderDetailRow struct {
	admin.OrderDetail
	OrderItems []orderItemRow `json:"order_items"`
}

func (r orderDetailRow) toDomain() admin.OrderDetail {
	d := r.OrderDetail
	d.Items = make([]admin.OrderItem, len(r.OrderItems))
	for i, it := range r.OrderItems {
		item := admin.OrderItem{
			ID:             it.ID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			SubtotalCents:  it.SubtotalCents,
			ProductID:      it.ProductID,
		}
		if it.Products != nil {
			item.ProductName = it.Products.Name
			item.ProductSlug = it.Products.Slug
		}
		d.Items[i] = item
	}
	return d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
