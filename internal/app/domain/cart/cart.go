// Package cart implements the cart aggregate. Every operation returns a new Cart
// so callers can apply it as a functional update against the latest state.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
)

// Item is one cart line. ID is the product id, or "productID:variantID" when a
// variant was chosen.
type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Product   catalog.Product `json:"product"`
}

// LineTotal is UnitPrice times Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds the line items and the drawer visibility flag.
type Cart struct {
	Items []Item `json:"items"`
	Open  bool   `json:"open"`
}

// Key returns the line identity for a product and optional variant.
func Key(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}

// Add puts quantity units of product into the cart and opens it. The unit price is
// the variant override when variantID names a priced variant, else the product price.
// A quantity below one adds a single unit.
func (c Cart) Add(product catalog.Product, quantity int, variantID string) Cart {
	if quantity < 1 {
		quantity = 1
	}
	unit := product.Price
	if variantID != "" {
		if v, ok := product.Variant(variantID); ok && v.Price != nil {
			unit = *v.Price
		}
	}
	id := Key(product.ID, variantID)

	items := make([]Item, 0, len(c.Items)+1)
	found := false
	for _, it := range c.Items {
		if it.ID == id {
			it.Quantity += quantity
			found = true
		}
		items = append(items, it)
	}
	if !found {
		items = append(items, Item{
			ID:        id,
			ProductID: product.ID,
			VariantID: variantID,
			Quantity:  quantity,
			UnitPrice: unit,
			Product:   product,
		})
	}
	return Cart{Items: items, Open: true}
}

// SetQuantity replaces the quantity of line id. Zero or less removes the line.
func (c Cart) SetQuantity(id string, quantity int) Cart {
	items := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		if it.ID == id {
			it.Quantity = quantity
		}
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	return Cart{Items: items, Open: c.Open}
}

// Remove deletes line id.
func (c Cart) Remove(id string) Cart {
	items := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		if it.ID != id {
			items = append(items, it)
		}
	}
	return Cart{Items: items, Open: c.Open}
}

// Subtract takes the quantities of items off the matching lines, dropping
// lines that reach zero. Lines not in items are kept untouched.
func (c Cart) Subtract(items []Item) Cart {
	taken := make(map[string]int, len(items))
	for _, it := range items {
		taken[it.ID] += it.Quantity
	}
	out := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		it.Quantity -= taken[it.ID]
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return Cart{Items: out, Open: c.Open}
}

// Clear empties the cart, keeping visibility.
func (c Cart) Clear() Cart {
	return Cart{Items: []Item{}, Open: c.Open}
}

// WithOpen sets the visibility flag.
func (c Cart) WithOpen(open bool) Cart {
	c.Open = open
	return c
}

// Count is the total number of units.
func (c Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the sum of the line totals.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool { return len(c.Items) == 0 }

// Snapshot returns a copy of the items safe to hand to another owner.
func (c Cart) Snapshot() []Item {
	out := make([]Item, len(c.Items))
	copy(out, c.Items)
	return out
}
