// Package redis persists carts and caches catalog reads in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Config holds the Redis connection and key settings.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	CartTTL  time.Duration `yaml:"cart_ttl"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns local defaults.
func DefaultConfig() Config {
	return Config{
		Addr:     "localhost:6379",
		Prefix:   "storefront:",
		CartTTL:  30 * 24 * time.Hour,
		CacheTTL: 5 * time.Minute,
	}
}

// NewClient opens a client from cfg.
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// CartStore keeps carts as JSON values with a sliding TTL.
type CartStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ storage.CartStore = (*CartStore)(nil)

// NewCartStore creates a cart store.
func NewCartStore(client *goredis.Client, cfg Config) *CartStore {
	return &CartStore{client: client, prefix: cfg.Prefix + "cart:", ttl: cfg.CartTTL}
}

// LoadCart returns storage.ErrNotFound for unknown keys.
func (s *CartStore) LoadCart(ctx context.Context, key string) (cart.Cart, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return cart.Cart{}, storage.ErrNotFound
	}
	if err != nil {
		return cart.Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var c cart.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return cart.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// SaveCart stores c, deleting the key once the cart is empty.
func (s *CartStore) SaveCart(ctx context.Context, key string, c cart.Cart) error {
	if c.Empty() {
		if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// CacheStats counts product cache outcomes.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// ProductCache is a cache-aside decorator for a CatalogStore. Redis failures
// fall through to the backing store.
type ProductCache struct {
	next   storage.CatalogStore
	client *goredis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger

	hits, misses, errs atomic.Uint64
}

var _ storage.CatalogStore = (*ProductCache)(nil)

// NewProductCache wraps next.
func NewProductCache(next storage.CatalogStore, client *goredis.Client, cfg Config, log *logger.Logger) *ProductCache {
	if log == nil {
		log = logger.NewDefault("product-cache")
	}
	return &ProductCache{next: next, client: client, prefix: cfg.Prefix + "products:", ttl: cfg.CacheTTL, log: log}
}

// ListProducts always reads through to the backing store and refreshes the
// per-slug entries, so a refresh never serves a stale list.
func (c *ProductCache) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	products, err := c.next.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for _, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.prefix+p.Slug, data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.errs.Add(1)
		c.log.WithError(err).Warn("product cache write failed")
	}
	return products, nil
}

// GetProductBySlug serves from Redis when present.
func (c *ProductCache) GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error) {
	data, err := c.client.Get(ctx, c.prefix+slug).Bytes()
	switch {
	case err == nil:
		var p catalog.Product
		if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
			c.hits.Add(1)
			return p, nil
		}
		c.errs.Add(1)
	case errors.Is(err, goredis.Nil):
		c.misses.Add(1)
	default:
		c.errs.Add(1)
		c.log.WithError(err).Warn("product cache read failed")
	}

	p, err := c.next.GetProductBySlug(ctx, slug)
	if err != nil {
		return catalog.Product{}, err
	}
	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, c.prefix+slug, data, c.ttl).Err(); err != nil {
			c.errs.Add(1)
		}
	}
	return p, nil
}

// Invalidate drops the cached entry for slug.
func (c *ProductCache) Invalidate(ctx context.Context, slug string) error {
	return c.client.Del(ctx, c.prefix+slug).Err()
}

// Stats returns cache counters.
func (c *ProductCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}
