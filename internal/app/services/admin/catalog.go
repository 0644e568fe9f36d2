package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

const inventoryReason = "Manual admin adjustment"

// CatalogView is the catalog page: products grouped by category plus the
// category list.
type CatalogView struct {
	Products   []domain.Product      `json:"products"`
	Groups     []domain.ProductGroup `json:"groups"`
	Categories []domain.Category     `json:"categories"`
}

// Catalog loads products and categories.
func (s *Service) Catalog(ctx context.Context) (CatalogView, error) {
	if s.backends.Catalog == nil {
		return CatalogView{}, ErrNotConfigured
	}
	products, err := s.backends.Catalog.ListAdminProducts(ctx)
	if err != nil {
		return CatalogView{}, err
	}
	categories, err := s.backends.Catalog.ListCategories(ctx)
	if err != nil {
		return CatalogView{}, err
	}
	return CatalogView{
		Products:   products,
		Groups:     domain.GroupByCategory(products),
		Categories: categories,
	}, nil
}

// AdjustInventory applies delta units to a product's stock and returns the
// updated record. The change is written to the inventory ledger by the backend.
func (s *Service) AdjustInventory(ctx context.Context, productID string, delta int) (domain.Product, error) {
	if s.backends.Catalog == nil {
		return domain.Product{}, ErrNotConfigured
	}
	if delta == 0 {
		return domain.Product{}, invalid("Please provide a valid number")
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Product{}, invalid("product id is required")
	}
	if err := s.confirmed(ctx, fmt.Sprintf("Apply an adjustment of %d units? This action will be logged.", delta)); err != nil {
		return domain.Product{}, err
	}

	p, err := s.backends.Catalog.AdjustInventory(ctx, productID, delta, inventoryReason, map[string]any{"source": "admin-ui"})
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Product{}, errors.New("Inventory update did not return a product record")
	}
	if err != nil {
		return domain.Product{}, err
	}
	s.log.WithField("product_id", productID).
		WithField("delta", delta).
		WithField("inventory", p.InventoryCount).
		Info("inventory adjusted")
	return p, nil
}

// ToggleProductStatus switches product id between active and draft, reading
// the current status from the backend.
func (s *Service) ToggleProductStatus(ctx context.Context, id string) (domain.Product, error) {
	if s.backends.Catalog == nil {
		return domain.Product{}, ErrNotConfigured
	}
	p, err := s.backends.Catalog.GetAdminProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	next := p.NextStatus()
	if err := s.confirmed(ctx, fmt.Sprintf("Switch %s to %s?", p.Name, next)); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.backends.Catalog.SetProductStatus(ctx, p.ID, next)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.WithField("product_id", p.ID).WithField("status", next).Info("product status changed")
	return updated, nil
}

// CreateCategory adds a category named name. The slug is derived from the
// name and an empty description is stored as null.
func (s *Service) CreateCategory(ctx context.Context, name, description string) (domain.Category, error) {
	if s.backends.Catalog == nil {
		return domain.Category{}, ErrNotConfigured
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, invalid("Category name is required")
	}
	c := domain.Category{Name: name, Slug: domain.Slugify(name)}
	if d := strings.TrimSpace(description); d != "" {
		c.Description = &d
	}
	if err := s.confirmed(ctx, fmt.Sprintf("Create category %q?", name)); err != nil {
		return domain.Category{}, err
	}

	created, err := s.backends.Catalog.CreateCategory(ctx, c)
	if err != nil {
		return domain.Category{}, err
	}
	s.log.WithField("slug", created.Slug).Info("category created")
	return created, nil
}
