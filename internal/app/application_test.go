package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
	"github.com/R3E-Network/storefront/internal/app/store"
	"github.com/R3E-Network/storefront/internal/config"
)

func memoryStores(mem *memory.Store) Stores {
	return Stores{
		Catalog:      mem,
		Orders:       mem,
		Feed:         mem,
		Auth:         mem,
		Roles:        mem,
		Carts:        mem,
		AdminCatalog: mem,
		AdminOrders:  mem,
		Content:      mem,
		Uploads:      mem,
		Analytics:    mem,
	}
}

func getJSON(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestNew_DisabledWithoutCredentials(t *testing.T) {
	application, err := New(config.Default(), nil)
	require.NoError(t, err)
	assert.Nil(t, application.Refresher)
	assert.Nil(t, application.Sessions)
	assert.Nil(t, application.Admin)
	assert.False(t, application.Store.Configured())

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	defer application.Stop(ctx)

	code, body := getJSON(t, application.Handler, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disabled", body["status"])
	assert.Equal(t, store.DisabledMessage, body["message"])

	code, _ = getJSON(t, application.Handler, "/api/admin/catalog")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestNewWithStores_ServesCatalog(t *testing.T) {
	mem := memory.New()
	mem.SeedProducts(catalog.Product{ID: "p1", Slug: "lamp", Name: "Lamp", Price: decimal.NewFromInt(25)})

	application, err := NewWithStores(config.Default(), memoryStores(mem), nil)
	require.NoError(t, err)
	require.NotNil(t, application.Refresher)
	require.NotNil(t, application.Sessions)
	require.NotNil(t, application.Admin)

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))

	code, body := getJSON(t, application.Handler, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = getJSON(t, application.Handler, "/api/products/lamp")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "p1", body["id"])

	require.NoError(t, application.Stop(ctx))
	assert.Equal(t, 0, mem.Subscribers())
}

func TestNewWithStores_InvalidSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Catalog.RefreshSchedule = "whenever"

	_, err := NewWithStores(cfg, memoryStores(memory.New()), nil)
	assert.ErrorContains(t, err, "parse catalog-refresher schedule")

	cfg = config.Default()
	cfg.Supabase.SessionRefreshSchedule = "whenever"
	_, err = NewWithStores(cfg, memoryStores(memory.New()), nil)
	assert.ErrorContains(t, err, "parse session-keeper schedule")
}

func TestNewWithStores_AdminRequiresBearerToken(t *testing.T) {
	mem := memory.New()
	mem.SetRole("u1", account.RoleAdmin)
	application, err := NewWithStores(config.Default(), memoryStores(mem), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	defer application.Stop(ctx)

	mem.SetSession(&account.Session{UserID: "u1", AccessToken: "admin-token"})

	code, _ := getJSON(t, application.Handler, "/api/admin/catalog")
	assert.Equal(t, http.StatusUnauthorized, code)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/catalog", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	application.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_RedisCartSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	ctx := context.Background()

	first, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	first.Store.AddItem(catalog.Product{ID: "p1", Slug: "lamp", Name: "Lamp", Price: decimal.NewFromInt(25)}, 2, "")
	require.NoError(t, first.Stop(ctx))

	second, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	defer second.Stop(ctx)

	assert.Equal(t, 2, second.Store.State().Cart.Count())
}
