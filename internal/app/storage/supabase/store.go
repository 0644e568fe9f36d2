// Package supabase implements the storage interfaces on top of a hosted
// Supabase project through supabase/client.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
	"github.com/R3E-Network/storefront/supabase/client"
)

const (
	productColumns = `id, name, slug, description, price, currency, image_url, gallery, category, tags, featured, rating,
		created_at, inventory_status, metadata, variants:product_variants(id, name, price, sku, stock, option_values)`
	orderColumns = "id, status, total, currency, created_at"

	// DefaultRoleTable maps user ids to storefront roles.
	DefaultRoleTable = "app_user_roles"
)

// Options tunes the adapter.
type Options struct {
	// RedirectURL is where sign-in links send the user back to.
	RedirectURL string
	RoleTable   string
	Logger      *logger.Logger
	Now         func() time.Time
}

// Store implements the storage interfaces against Supabase.
type Store struct {
	client      *client.Client
	redirectURL string
	roleTable   string
	log         *logger.Logger
	now         func() time.Time
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.OrderFeed = (*Store)(nil)
var _ storage.AuthStore = (*Store)(nil)
var _ storage.RoleStore = (*Store)(nil)
var _ storage.AdminCatalogStore = (*Store)(nil)
var _ storage.AdminOrderStore = (*Store)(nil)
var _ storage.ContentStore = (*Store)(nil)
var _ storage.MediaUploader = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)

// New wraps a configured Supabase client.
func New(c *client.Client, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("supabase-store")
	}
	if opts.RoleTable == "" {
		opts.RoleTable = DefaultRoleTable
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		client:      c,
		redirectURL: opts.RedirectURL,
		roleTable:   opts.RoleTable,
		log:         opts.Logger,
		now:         opts.Now,
	}
}

// Client exposes the underlying client.
func (s *Store) Client() *client.Client { return s.client }

// --- CatalogStore -----------------------------------------------------------

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	var rows []productRow
	if err := s.client.From("products").Select(productColumns).Order("created_at", false).ExecuteInto(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]catalog.Product, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error) {
	var row productRow
	err := s.client.From("products").Select(productColumns).Eq("slug", slug).MaybeSingle().ExecuteInto(ctx, &row)
	if errors.Is(err, client.ErrNotFound) {
		return catalog.Product{}, storage.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, err
	}
	return row.toDomain(), nil
}

// --- OrderStore -------------------------------------------------------------

func (s *Store) ListOrders(ctx context.Context, userID string) ([]order.Summary, error) {
	var rows []orderRow
	err := s.client.From("orders").Select(orderColumns).Eq("user_id", userID).Order("created_at", false).ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]order.Summary, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain(decimal.Zero, s.now())
	}
	return out, nil
}

// CreateOrder inserts the order and returns the stored row. Missing columns fall
// back to the request values.
func (s *Store) CreateOrder(ctx context.Context, req order.Request) (order.Summary, error) {
	payload := orderInsert{
		Total:           req.Total,
		Currency:        req.Currency,
		Status:          req.Status,
		Items:           req.Items,
		ShippingDetails: req.ShippingDetails,
		PaymentMethod:   req.PaymentMethod,
	}
	if req.UserID != "" {
		payload.UserID = &req.UserID
	}

	resp, err := s.client.From("orders").Select(orderColumns).Single().ExecuteInsert(ctx, payload)
	if err != nil {
		return order.Summary{}, err
	}
	if err := resp.Err(); err != nil {
		return order.Summary{}, err
	}
	var row orderRow
	if err := resp.JSON(&row); err != nil {
		return order.Summary{}, fmt.Errorf("decode order: %w", err)
	}
	created := row.toDomain(req.Total, s.now())
	if row.Currency == nil && req.Currency != "" {
		created.Currency = req.Currency
	}
	if row.Status == nil && req.Status != "" {
		created.Status = req.Status
	}
	return created, nil
}

// --- RoleStore --------------------------------------------------------------

// GetRole reads the role mapping. "admin" is admin, any other stored role is customer.
func (s *Store) GetRole(ctx context.Context, userID string) (account.Role, error) {
	var row struct {
		Role *string `json:"role"`
	}
	err := s.client.From(s.roleTable).Select("role").Eq("user_id", userID).MaybeSingle().ExecuteInto(ctx, &row)
	if errors.Is(err, client.ErrNotFound) {
		return account.RoleNone, nil
	}
	if err != nil {
		return account.RoleNone, err
	}
	switch {
	case row.Role == nil || *row.Role == "":
		return account.RoleNone, nil
	case *row.Role == string(account.RoleAdmin):
		return account.RoleAdmin, nil
	default:
		return account.RoleCustomer, nil
	}
}
