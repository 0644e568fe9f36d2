package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var epoch = time.Unix(0, 0)

// Apply filters and sorts products. The input slice is never modified and the
// result only ever contains elements of the input.
func Apply(products []Product, f Filters) []Product {
	search := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if matches(p, f, search) {
			out = append(out, p)
		}
	}

	switch f.Sort {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return createdAt(out[i]).After(createdAt(out[j])) })
	default:
		sort.SliceStable(out, func(i, j int) bool {
			fi, fj := out[i].IsFeatured(), out[j].IsFeatured()
			if fi != fj {
				return fi
			}
			return out[i].RatingValue() > out[j].RatingValue()
		})
	}
	return out
}

func matches(p Product, f Filters, search string) bool {
	if f.Category != "" && f.Category != AllCategories && p.Category != f.Category {
		return false
	}
	if search != "" &&
		!strings.Contains(strings.ToLower(p.Name), search) &&
		!strings.Contains(strings.ToLower(p.Description), search) {
		return false
	}
	if len(f.Tags) > 0 && !anyTag(p, f.Tags) {
		return false
	}
	lo, hi := f.PriceRange[0], f.PriceRange[1]
	if lo.GreaterThan(hi) {
		return false
	}
	return p.Price.GreaterThanOrEqual(lo) && p.Price.LessThanOrEqual(hi)
}

func anyTag(p Product, tags []string) bool {
	for _, t := range tags {
		if p.HasTag(t) {
			return true
		}
	}
	return false
}

func createdAt(p Product) time.Time {
	if p.CreatedAt.IsZero() {
		return epoch
	}
	return p.CreatedAt
}

// Categories returns "all" followed by the sorted, de-duplicated product categories.
func Categories(products []Product) []string {
	seen := make(map[string]struct{}, len(products))
	var names []string
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		names = append(names, p.Category)
	}
	sort.Strings(names)
	return append([]string{AllCategories}, names...)
}

// Featured returns the featured products in input order.
func Featured(products []Product) []Product {
	out := make([]Product, 0)
	for _, p := range products {
		if p.IsFeatured() {
			out = append(out, p)
		}
	}
	return out
}

// PriceBounds returns the lowest and highest price. ok is false for an empty list.
func PriceBounds(products []Product) (lo, hi decimal.Decimal, ok bool) {
	if len(products) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	lo, hi = products[0].Price, products[0].Price
	for _, p := range products[1:] {
		lo = decimal.Min(lo, p.Price)
		hi = decimal.Max(hi, p.Price)
	}
	return lo, hi, true
}
