package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated is returned for a rejected access token or one-time code.
	ErrUnauthenticated = errors.New("invalid or expired credentials")
)

// CatalogStore reads products.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error)
}

// OrderStore reads and creates customer orders.
type OrderStore interface {
	ListOrders(ctx context.Context, userID string) ([]order.Summary, error)
	CreateOrder(ctx context.Context, req order.Request) (order.Summary, error)
}

// Subscription is a live feed that must be closed by its owner.
type Subscription interface {
	Close() error
}

// OrderFeed pushes order row changes for one user.
type OrderFeed interface {
	SubscribeOrders(ctx context.Context, userID string, fn func(order.Change)) (Subscription, error)
}

// AuthStore mirrors the hosted auth session and verifies caller tokens.
type AuthStore interface {
	CurrentSession(ctx context.Context) (*account.Session, error)
	SignInWithOTP(ctx context.Context, email string) error
	// VerifyOTP exchanges an emailed code for a session and makes it current.
	VerifyOTP(ctx context.Context, email, code string) (*account.Session, error)
	// RefreshSession renews the current session's access token.
	RefreshSession(ctx context.Context) (*account.Session, error)
	// Authenticate returns the user behind accessToken, independent of the
	// current session.
	Authenticate(ctx context.Context, accessToken string) (account.Profile, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChange calls fn with the new session, nil after sign-out.
	OnAuthStateChange(fn func(*account.Session)) (unsubscribe func())
}

// RoleStore resolves storefront roles.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (account.Role, error)
}

// CartStore persists carts between runs.
type CartStore interface {
	LoadCart(ctx context.Context, key string) (cart.Cart, error)
	SaveCart(ctx context.Context, key string, c cart.Cart) error
}

// AdminCatalogStore manages products and categories under elevated privilege.
type AdminCatalogStore interface {
	ListAdminProducts(ctx context.Context) ([]admin.Product, error)
	GetAdminProduct(ctx context.Context, id string) (admin.Product, error)
	ListCategories(ctx context.Context) ([]admin.Category, error)
	AdjustInventory(ctx context.Context, productID string, delta int, reason string, meta map[string]any) (admin.Product, error)
	SetProductStatus(ctx context.Context, productID, status string) (admin.Product, error)
	CreateCategory(ctx context.Context, c admin.Category) (admin.Category, error)
}

// AdminOrderStore manages fulfillment.
type AdminOrderStore interface {
	ListOrderSummaries(ctx context.Context) ([]admin.OrderSummary, error)
	GetOrderDetail(ctx context.Context, id string) (admin.OrderDetail, error)
	UpdateOrderStatus(ctx context.Context, id, status, notes string) error
}

// ContentStore manages settings and media records.
type ContentStore interface {
	ListSettings(ctx context.Context) ([]admin.Setting, error)
	SaveSetting(ctx context.Context, key string, value json.RawMessage) error
	ListMedia(ctx context.Context, limit int) ([]admin.Media, error)
}

// MediaUploader runs the two-phase upload: ticket from the upload function, then a PUT.
type MediaUploader interface {
	RequestUpload(ctx context.Context, u admin.Upload) (admin.UploadTicket, error)
	PutObject(ctx context.Context, ticket admin.UploadTicket, data []byte, contentType string) error
}

// AnalyticsStore reads dashboard inputs.
type AnalyticsStore interface {
	ListRevenueSince(ctx context.Context, since time.Time) ([]admin.RevenueRow, error)
	ListInventoryEvents(ctx context.Context, limit int) ([]admin.InventoryEvent, error)
	ListAuditLogs(ctx context.Context, limit int) ([]admin.AuditLog, error)
}
