package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

// RefreshCatalog reloads every product, rebuilds the id/slug cache and moves
// the price-range filter to the catalog bounds unless the user narrowed it
// since the last load. It is a no-op without a backend. A refresh superseded
// by a newer one is discarded.
func (s *Store) RefreshCatalog(ctx context.Context) error {
	if !s.Configured() {
		return nil
	}

	var gen uint64
	s.update(func(st *State) dirty {
		s.catalogGen++
		gen = s.catalogGen
		st.Catalog.Loading = true
		st.Catalog.Error = ""
		return 0
	})

	start := time.Now()
	products, err := s.backends.Catalog.ListProducts(ctx)
	s.observe("catalog.refresh", start, err)

	var applied bool
	s.update(func(st *State) dirty {
		if gen != s.catalogGen {
			return 0
		}
		applied = true
		st.Catalog.Loading = false
		if err != nil {
			st.Catalog.Error = err.Error()
			return 0
		}
		st.Catalog.Products = products
		st.Catalog.cache = indexProducts(products)
		d := dirtyProducts
		if lo, hi, ok := catalog.PriceBounds(products); ok {
			bounds := [2]decimal.Decimal{lo, hi}
			if st.Catalog.followsBounds() {
				st.Catalog.Filters.PriceRange = bounds
				d |= dirtyFilters
			}
			st.Catalog.bounds, st.Catalog.hasBounds = bounds, true
		}
		return d
	})
	if err != nil {
		s.log.WithError(err).Warn("catalog refresh failed")
		return err
	}
	if applied {
		s.log.WithField("products", len(products)).Debug("catalog refreshed")
	}
	return nil
}

// followsBounds reports whether the price range is still the default or the
// range set by the previous refresh.
func (c CatalogState) followsBounds() bool {
	current := c.Filters.PriceRange
	if !c.hasBounds || sameRange(current, catalog.DefaultFilters().PriceRange) {
		return true
	}
	return sameRange(current, c.bounds)
}

func sameRange(a, b [2]decimal.Decimal) bool {
	return a[0].Equal(b[0]) && a[1].Equal(b[1])
}

// FetchProductBySlug returns the product from the cache, or loads it once even
// under concurrent callers. An unknown slug yields (nil, nil).
func (s *Store) FetchProductBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	s.mu.Lock()
	cached, ok := s.state.Catalog.cache[slug]
	s.mu.Unlock()
	if ok {
		return &cached, nil
	}
	if !s.Configured() {
		return nil, nil
	}

	v, err, _ := s.slugs.Do(slug, func() (any, error) {
		s.update(func(st *State) dirty {
			st.Catalog.Loading = true
			st.Catalog.Error = ""
			return 0
		})

		start := time.Now()
		p, err := s.backends.Catalog.GetProductBySlug(ctx, slug)
		s.observe("catalog.fetch_slug", start, err)
		if errors.Is(err, storage.ErrNotFound) {
			s.update(func(st *State) dirty {
				st.Catalog.Loading = false
				return 0
			})
			return nil, nil
		}
		if err != nil {
			s.update(func(st *State) dirty {
				st.Catalog.Loading = false
				st.Catalog.Error = err.Error()
				return 0
			})
			return nil, err
		}

		s.update(func(st *State) dirty {
			st.Catalog.Loading = false
			st.Catalog.Products = upsertProduct(st.Catalog.Products, p)
			next := make(map[string]catalog.Product, len(st.Catalog.cache)+2)
			for k, v := range st.Catalog.cache {
				next[k] = v
			}
			next[p.ID] = p
			next[p.Slug] = p
			st.Catalog.cache = next
			return dirtyProducts
		})
		return &p, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	p := *v.(*catalog.Product)
	return &p, nil
}

func upsertProduct(products []catalog.Product, p catalog.Product) []catalog.Product {
	out := make([]catalog.Product, 0, len(products)+1)
	replaced := false
	for _, existing := range products {
		if existing.ID == p.ID {
			out = append(out, p)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, p)
	}
	return out
}

// FilterPatch carries the filter fields to overwrite; nil fields are kept.
type FilterPatch struct {
	SearchTerm *string             `json:"search_term,omitempty"`
	Category   *string             `json:"category,omitempty"`
	PriceRange *[2]decimal.Decimal `json:"price_range,omitempty"`
	Sort       *string             `json:"sort,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
}

// UpdateFilters shallow-merges patch into the filters.
func (s *Store) UpdateFilters(patch FilterPatch) {
	s.update(func(st *State) dirty {
		f := st.Catalog.Filters
		if patch.SearchTerm != nil {
			f.SearchTerm = *patch.SearchTerm
		}
		if patch.Category != nil {
			f.Category = *patch.Category
		}
		if patch.PriceRange != nil {
			f.PriceRange = *patch.PriceRange
		}
		if patch.Sort != nil {
			f.Sort = *patch.Sort
		}
		if patch.Tags != nil {
			f.Tags = append([]string(nil), patch.Tags...)
		}
		st.Catalog.Filters = f
		return dirtyFilters
	})
}

// ResetFilters restores the default filters.
func (s *Store) ResetFilters() {
	s.update(func(st *State) dirty {
		st.Catalog.Filters = catalog.DefaultFilters()
		return dirtyFilters
	})
}
