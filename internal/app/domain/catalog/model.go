// Package catalog holds product models and the pure filter/sort engine behind
// the storefront listing.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sort modes accepted by Filters.Sort.
const (
	SortFeatured  = "featured"
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortNewest    = "newest"
)

// AllCategories selects every category.
const AllCategories = "all"

// DefaultCurrency is applied to products stored without a currency.
const DefaultCurrency = "USD"

// Product is a catalog entry. Products are read-only on this side.
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Slug            string          `json:"slug"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description,omitempty"`
	ImageURL        string          `json:"image_url,omitempty"`
	Gallery         []string        `json:"gallery"`
	Category        string          `json:"category,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	Featured        bool            `json:"featured"`
	Rating          *float64        `json:"rating,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	InventoryStatus string          `json:"inventory_status,omitempty"`
	Variants        []Variant       `json:"variants,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// Variant is a purchasable option of a product with an optional price override.
type Variant struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	SKU          string           `json:"sku,omitempty"`
	Stock        int              `json:"stock"`
	OptionValues map[string]any   `json:"option_values,omitempty"`
}

// Variant returns the variant with id, if any.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// HasTag reports whether the product carries tag.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsFeatured reports whether the product is flagged or tagged "featured".
func (p Product) IsFeatured() bool {
	return p.Featured || p.HasTag("featured")
}

// RatingValue returns the rating, zero when unrated.
func (p Product) RatingValue() float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// Normalize applies the defaults used when rows omit optional columns.
func (p Product) Normalize() Product {
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if len(p.Gallery) == 0 {
		if p.ImageURL != "" {
			p.Gallery = []string{p.ImageURL}
		} else {
			p.Gallery = []string{}
		}
	}
	return p
}

// Filters is the listing query. An unknown Sort falls back to featured ordering.
type Filters struct {
	SearchTerm string             `json:"search_term"`
	Category   string             `json:"category"`
	PriceRange [2]decimal.Decimal `json:"price_range"`
	Sort       string             `json:"sort"`
	Tags       []string           `json:"tags"`
}

// DefaultFilters returns the listing defaults.
func DefaultFilters() Filters {
	return Filters{
		Category:   AllCategories,
		PriceRange: [2]decimal.Decimal{decimal.Zero, decimal.NewFromInt(2000)},
		Sort:       SortFeatured,
		Tags:       []string{},
	}
}
