package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
)

func newTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestCartStore_RoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.CartTTL = time.Hour
	store := NewCartStore(client, cfg)

	_, err := store.LoadCart(ctx, "guest")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	lamp := catalog.Product{ID: "p1", Slug: "lamp", Price: decimal.NewFromInt(20)}
	c := cart.Cart{}.Add(lamp, 2, "")
	require.NoError(t, store.SaveCart(ctx, "guest", c))

	assert.True(t, mr.Exists("storefront:cart:guest"))
	assert.Equal(t, time.Hour, mr.TTL("storefront:cart:guest"))

	loaded, err := store.LoadCart(ctx, "guest")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Subtotal().Equal(decimal.NewFromInt(40)))

	require.NoError(t, store.SaveCart(ctx, "guest", loaded.Clear()))
	assert.False(t, mr.Exists("storefront:cart:guest"))
}

func TestProductCache_CacheAside(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestRedis(t)
	backing := memory.New()
	backing.SeedProducts(catalog.Product{ID: "p1", Slug: "lamp", Name: "Lamp", Price: decimal.NewFromInt(20)})
	cache := NewProductCache(backing, client, DefaultConfig(), nil)

	p, err := cache.GetProductBySlug(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Name)
	assert.True(t, mr.Exists("storefront:products:lamp"))

	backing.SeedProducts(catalog.Product{ID: "p1", Slug: "lamp", Name: "Renamed"})
	p, err = cache.GetProductBySlug(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Name)

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	products, err := cache.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p, err = cache.GetProductBySlug(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)

	_, err = cache.GetProductBySlug(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProductCache_FallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestRedis(t)
	backing := memory.New()
	backing.SeedProducts(catalog.Product{ID: "p1", Slug: "lamp", Name: "Lamp"})
	cache := NewProductCache(backing, client, DefaultConfig(), nil)

	mr.Close()
	p, err := cache.GetProductBySlug(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Name)
	assert.NotZero(t, cache.Stats().Errors)
}
