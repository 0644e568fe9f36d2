package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

func TestCatalogAndOrders(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SeedProducts(catalog.Product{ID: "p1", Slug: "lamp", Price: decimal.NewFromInt(20)})

	p, err := s.GetProductBySlug(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "USD", p.Currency)

	_, err = s.GetProductBySlug(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	created, err := s.CreateOrder(ctx, order.Request{
		UserID: "u1", Total: decimal.NewFromInt(60), Currency: "USD", Status: order.StatusProcessing,
		Items: []order.LineRequest{{ProductID: "p1", Quantity: 3, UnitPrice: decimal.NewFromInt(20)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ord_1", created.ID)
	assert.Equal(t, "p1", created.Items[0].ID)

	list, err := s.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ord_1", list[0].ID)
}

func TestCreateOrderHook(t *testing.T) {
	s := New()
	s.OnCreateOrder(func(context.Context, order.Request) (order.Summary, error) {
		return order.Summary{}, errors.New("insufficient stock")
	})
	_, err := s.CreateOrder(context.Background(), order.Request{UserID: "u1"})
	assert.EqualError(t, err, "insufficient stock")
}

func TestOrderFeedAndSessionListeners(t *testing.T) {
	ctx := context.Background()
	s := New()

	var got []string
	sub, err := s.SubscribeOrders(ctx, "u1", func(c order.Change) { got = append(got, c.ID) })
	require.NoError(t, err)
	s.PushOrderChange("u2", order.Change{ID: "other"})
	s.PushOrderChange("u1", order.Change{ID: "ord_1"})
	require.NoError(t, sub.Close())
	s.PushOrderChange("u1", order.Change{ID: "ord_2"})
	assert.Equal(t, []string{"ord_1"}, got)
	assert.Zero(t, s.Subscribers())

	var sessions []*account.Session
	unsubscribe := s.OnAuthStateChange(func(sess *account.Session) { sessions = append(sessions, sess) })
	s.SetSession(&account.Session{UserID: "u1"})
	require.NoError(t, s.SignOut(ctx))
	unsubscribe()
	s.SetSession(&account.Session{UserID: "u2"})

	require.Len(t, sessions, 2)
	assert.Equal(t, "u1", sessions[0].UserID)
	assert.Nil(t, sessions[1])

	current, err := s.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u2", current.UserID)
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	s.SeedAdminCatalog([]admin.Product{{ID: "p1", Status: admin.ProductActive, InventoryCount: 4}}, nil)

	p, err := s.AdjustInventory(ctx, "p1", -3, "damaged", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.InventoryCount)

	events, err := s.ListInventoryEvents(ctx, 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].ResultingQuantity)

	_, err = s.CreateCategory(ctx, admin.Category{Name: "Lamps", Slug: "lamps"})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, admin.Category{Name: "Lamps", Slug: "lamps"})
	assert.Error(t, err)

	s.SeedOrderDetails(admin.OrderDetail{ID: "o1", Status: order.StatusPending, TotalCents: 500, PlacedAt: now})
	require.NoError(t, s.UpdateOrderStatus(ctx, "o1", order.StatusFulfilled, "shipped"))
	d, err := s.GetOrderDetail(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusFulfilled, d.Status)
	require.NotNil(t, d.FulfilledAt)
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "nope", "fulfilled", ""), storage.ErrNotFound)

	ticket, err := s.RequestUpload(ctx, admin.Upload{ProductID: "p1", FileName: "a.png", ContentType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, s.PutObject(ctx, ticket, []byte("png"), "image/png"))
	data, ok := s.Object(ticket.Path)
	assert.True(t, ok)
	assert.Equal(t, "png", string(data))
}

func TestVerifyRefreshAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	s.SetClock(func() time.Time { return now })

	var seen []*account.Session
	stop := s.OnAuthStateChange(func(session *account.Session) { seen = append(seen, session) })
	defer stop()

	_, err := s.VerifyOTP(ctx, "a@b.co", OTPCode)
	assert.ErrorIs(t, err, storage.ErrUnauthenticated, "no link was requested")

	require.NoError(t, s.SignInWithOTP(ctx, "a@b.co"))
	_, err = s.VerifyOTP(ctx, "a@b.co", "000000")
	assert.ErrorIs(t, err, storage.ErrUnauthenticated)

	session, err := s.VerifyOTP(ctx, "a@b.co", OTPCode)
	require.NoError(t, err)
	assert.Equal(t, "user:a@b.co", session.UserID)
	assert.Equal(t, now.Add(time.Hour), session.ExpiresAt)
	require.Len(t, seen, 1)

	profile, err := s.Authenticate(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user:a@b.co", profile.ID)
	assert.Equal(t, "a@b.co", profile.Email)

	_, err = s.Authenticate(ctx, "forged")
	assert.ErrorIs(t, err, storage.ErrUnauthenticated)

	refreshed, err := s.RefreshSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, session.AccessToken, refreshed.AccessToken)
	_, err = s.Authenticate(ctx, session.AccessToken)
	assert.ErrorIs(t, err, storage.ErrUnauthenticated, "refresh retires the old token")

	now = now.Add(2 * time.Hour)
	_, err = s.Authenticate(ctx, refreshed.AccessToken)
	assert.ErrorIs(t, err, storage.ErrUnauthenticated, "expired")

	require.NoError(t, s.SignOut(ctx))
	_, err = s.RefreshSession(ctx)
	assert.ErrorIs(t, err, storage.ErrUnauthenticated)
}
