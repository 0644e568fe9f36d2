package admin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
)

func newService(t *testing.T, confirm Confirmer) (*Service, *memory.Store) {
	t.Helper()
	backend := memory.New()
	svc := New(Backends{
		Catalog:   backend,
		Orders:    backend,
		Content:   backend,
		Uploads:   backend,
		Analytics: backend,
	}, confirm, nil)
	return svc, backend
}

func TestCatalog_GroupsProducts(t *testing.T) {
	svc, backend := newService(t, AlwaysConfirm)
	lighting := domain.Category{ID: "c1", Name: "Lighting", Slug: "lighting"}
	backend.SeedAdminCatalog([]domain.Product{
		{ID: "p1", Name: "Lamp", Status: domain.ProductActive, Category: &lighting},
		{ID: "p2", Name: "Mystery", Status: domain.ProductDraft},
		{ID: "p3", Name: "Sconce", Status: domain.ProductActive, Category: &lighting},
	}, []domain.Category{lighting})

	view, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Groups, 2)
	assert.Equal(t, "Lighting", view.Groups[0].Category)
	assert.Len(t, view.Groups[0].Products, 2)
	assert.Equal(t, domain.Uncategorized, view.Groups[1].Category)
	assert.Len(t, view.Categories, 1)
}

func TestAdjustInventory(t *testing.T) {
	svc, backend := newService(t, AlwaysConfirm)
	backend.SeedAdminCatalog([]domain.Product{{ID: "p1", InventoryCount: 4}}, nil)

	p, err := svc.AdjustInventory(context.Background(), "p1", -3)
	require.NoError(t, err)
	assert.Equal(t, 1, p.InventoryCount)

	_, err = svc.AdjustInventory(context.Background(), "p1", 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Please provide a valid number", verr.Message)

	_, err = svc.AdjustInventory(context.Background(), "missing", 2)
	assert.EqualError(t, err, "Inventory update did not return a product record")

	analytics, err := svc.Analytics(context.Background())
	require.NoError(t, err)
	require.Len(t, analytics.InventoryEvents, 1)
	assert.Equal(t, "Manual admin adjustment", *analytics.InventoryEvents[0].Reason)
}

func TestDeclinedConfirmationSkipsBackend(t *testing.T) {
	var prompts []string
	svc, backend := newService(t, ConfirmFunc(func(_ context.Context, prompt string) bool {
		prompts = append(prompts, prompt)
		return false
	}))
	backend.SeedAdminCatalog([]domain.Product{{ID: "p1", Name: "Lamp", Status: domain.ProductActive, InventoryCount: 4}}, nil)

	_, err := svc.AdjustInventory(context.Background(), "p1", 2)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	_, err = svc.ToggleProductStatus(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrNotConfirmed)

	products, err := backend.ListAdminProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, products[0].InventoryCount)
	assert.Equal(t, domain.ProductActive, products[0].Status)
	assert.Equal(t, []string{
		"Apply an adjustment of 2 units? This action will be logged.",
		"Switch Lamp to draft?",
	}, prompts)
}

func TestValidationRunsBeforeConfirmation(t *testing.T) {
	asked := false
	svc, _ := newService(t, ConfirmFunc(func(context.Context, string) bool {
		asked = true
		return true
	}))

	_, err := svc.CreateCategory(context.Background(), "   ", "")
	assert.EqualError(t, err, "Category name is required")
	assert.EqualError(t, svc.SaveSetting(context.Background(), "hero", []byte("{nope")), "Setting JSON is invalid")
	assert.Error(t, svc.UpdateOrderStatus(context.Background(), "o1", "shipped", ""))
	assert.False(t, asked)
}

func TestToggleAndCreateCategory(t *testing.T) {
	svc, backend := newService(t, AlwaysConfirm)
	backend.SeedAdminCatalog([]domain.Product{{ID: "p1", Name: "Lamp", Status: domain.ProductDraft}}, nil)

	p, err := svc.ToggleProductStatus(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductActive, p.Status)

	p, err = svc.ToggleProductStatus(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductDraft, p.Status, "the stored status decides the direction")

	_, err = svc.ToggleProductStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	c, err := svc.CreateCategory(context.Background(), "  Home & Garden ", "")
	require.NoError(t, err)
	assert.Equal(t, "Home & Garden", c.Name)
	assert.Equal(t, "home-garden", c.Slug)
	assert.Nil(t, c.Description)

	_, err = svc.CreateCategory(context.Background(), "Home Garden", "dup slug")
	assert.Error(t, err)
}

func TestOrders(t *testing.T) {
	svc, backend := newService(t, AlwaysConfirm)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	backend.SetClock(func() time.Time { return now })
	backend.SeedOrderDetails(
		domain.OrderDetail{ID: "order-aaaaaaaaaa", Status: "pending", TotalCents: 1500, PlacedAt: now.Add(-time.Hour)},
		domain.OrderDetail{ID: "order-bbbbbbbbbb", Status: "fulfilled", TotalCents: 2500, PlacedAt: now},
	)

	view, err := svc.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Orders, 2)
	assert.Equal(t, "order-bbbbbbbbbb", view.Orders[0].ID)
	assert.Equal(t, int64(4000), view.RevenueCents)
	assert.Equal(t, 1, view.Open)

	require.NoError(t, svc.UpdateOrderStatus(context.Background(), "order-aaaaaaaaaa", "fulfilled", " packed "))
	detail, err := svc.OrderDetail(context.Background(), "order-aaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "fulfilled", detail.Status)
	require.NotNil(t, detail.Notes)
	assert.Equal(t, "packed", *detail.Notes)
	require.NotNil(t, detail.FulfilledAt)
}

func TestContentAndUpload(t *testing.T) {
	svc, backend := newService(t, AlwaysConfirm)

	require.NoError(t, svc.SaveSetting(context.Background(), "hero", []byte(`{"title":"Spring"}`)))

	_, err := svc.UploadMedia(context.Background(), domain.Upload{ProductID: "p1"})
	assert.EqualError(t, err, "Select a file to upload")
	_, err = svc.UploadMedia(context.Background(), domain.Upload{FileName: "a.png", Data: []byte("png")})
	assert.EqualError(t, err, "Provide a product ID to associate the media with")

	ticket, err := svc.UploadMedia(context.Background(), domain.Upload{
		ProductID: "p1",
		FileName:  "a.png",
		AltText:   " Front ",
		Data:      []byte("png"),
	})
	require.NoError(t, err)
	stored, ok := backend.Object(ticket.Path)
	require.True(t, ok)
	assert.Equal(t, "png", string(stored))

	view, err := svc.Content(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Settings, 1)
	assert.JSONEq(t, `{"title":"Spring"}`, string(view.Settings[0].Value))
	require.Len(t, view.Media, 1)
	assert.Equal(t, "application/octet-stream", view.Media[0].MediaType)
	assert.Equal(t, "Front", *view.Media[0].AltText)
}

type fakeUploader struct {
	ticket domain.UploadTicket
	putErr error
	puts   int
}

func (f *fakeUploader) RequestUpload(context.Context, domain.Upload) (domain.UploadTicket, error) {
	return f.ticket, nil
}

func (f *fakeUploader) PutObject(context.Context, domain.UploadTicket, []byte, string) error {
	f.puts++
	return f.putErr
}

func TestUploadMedia_Failures(t *testing.T) {
	upload := domain.Upload{ProductID: "p1", FileName: "a.png", Data: []byte("png")}

	noURL := &fakeUploader{}
	svc := New(Backends{Uploads: noURL}, AlwaysConfirm, nil)
	_, err := svc.UploadMedia(context.Background(), upload)
	assert.ErrorIs(t, err, ErrNoUploadURL)
	assert.Zero(t, noURL.puts)

	rejected := &fakeUploader{ticket: domain.UploadTicket{UploadURL: "/object/upload/sign/x"}, putErr: errors.New("403")}
	svc = New(Backends{Uploads: rejected}, AlwaysConfirm, nil)
	_, err = svc.UploadMedia(context.Background(), upload)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Equal(t, "File upload failed. Check Supabase storage configuration.", err.Error())
}

func TestAnalytics(t *testing.T) {
	svc, backend := newService(t, AlwaysConfirm)
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })
	backend.SeedRevenue(
		domain.RevenueRow{Status: "fulfilled", TotalCents: 1000, PlacedAt: now.Add(-time.Hour)},
		domain.RevenueRow{Status: "fulfilled", TotalCents: 500, PlacedAt: now.Add(-48 * time.Hour)},
		domain.RevenueRow{Status: "pending", TotalCents: 200, PlacedAt: now.Add(-48 * time.Hour)},
		domain.RevenueRow{Status: "fulfilled", TotalCents: 9999, PlacedAt: now.Add(-40 * 24 * time.Hour)},
	)
	var logs []domain.AuditLog
	for i := 0; i < 7; i++ {
		logs = append(logs, domain.AuditLog{ID: int64(i), Action: "update", Metadata: json.RawMessage(`{}`)})
	}
	backend.SeedAuditLog(logs...)

	a, err := svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1700), a.RevenueTotal)
	assert.Equal(t, map[string]int64{"fulfilled": 1500, "pending": 200}, a.RevenueByStatus)
	assert.Equal(t, []domain.DailySales{{Date: "2024-05-29", Total: 700}, {Date: "2024-05-31", Total: 1000}}, a.DailySales)
	assert.Len(t, a.AuditLog, 5)
	assert.Empty(t, a.InventoryEvents)
}

func TestNotConfigured(t *testing.T) {
	svc := New(Backends{}, AlwaysConfirm, nil)

	_, err := svc.Catalog(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Orders(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Content(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Analytics(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.UploadMedia(context.Background(), domain.Upload{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
