package app

import (
	"context"
	"fmt"
	"net/http"

	goredis "github.com/go-redis/redis/v8"

	"github.com/R3E-Network/storefront/internal/app/httpapi"
	"github.com/R3E-Network/storefront/internal/app/jobs"
	"github.com/R3E-Network/storefront/internal/app/metrics"
	adminsvc "github.com/R3E-Network/storefront/internal/app/services/admin"
	"github.com/R3E-Network/storefront/internal/app/storage"
	redisstore "github.com/R3E-Network/storefront/internal/app/storage/redis"
	supabasestore "github.com/R3E-Network/storefront/internal/app/storage/supabase"
	"github.com/R3E-Network/storefront/internal/app/store"
	"github.com/R3E-Network/storefront/internal/app/system"
	"github.com/R3E-Network/storefront/internal/config"
	"github.com/R3E-Network/storefront/pkg/logger"
	"github.com/R3E-Network/storefront/supabase/client"
)

// Stores encapsulates persistence dependencies. Leaving Catalog or Orders nil
// runs the storefront in disabled mode; a nil admin port disables that part
// of the console.
type Stores struct {
	Catalog storage.CatalogStore
	Orders  storage.OrderStore
	Feed    storage.OrderFeed
	Auth    storage.AuthStore
	Roles   storage.RoleStore
	Carts   storage.CartStore

	AdminCatalog storage.AdminCatalogStore
	AdminOrders  storage.AdminOrderStore
	Content      storage.ContentStore
	Uploads      storage.MediaUploader
	Analytics    storage.AnalyticsStore
}

func (s Stores) storefront() store.Backends {
	return store.Backends{
		Catalog: s.Catalog,
		Orders:  s.Orders,
		Feed:    s.Feed,
		Auth:    s.Auth,
		Roles:   s.Roles,
		Carts:   s.Carts,
	}
}

func (s Stores) admin() adminsvc.Backends {
	return adminsvc.Backends{
		Catalog:   s.AdminCatalog,
		Orders:    s.AdminOrders,
		Content:   s.Content,
		Uploads:   s.Uploads,
		Analytics: s.Analytics,
	}
}

// Application ties the storefront store, the admin console and the HTTP
// surface together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Store     *store.Store
	Admin     *adminsvc.Service
	Refresher *jobs.Refresher
	Sessions  *jobs.SessionKeeper
	Handler   http.Handler
}

// New builds the application from cfg. Without Supabase credentials the
// storefront starts in disabled mode; Redis is used when an address is set.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	var (
		stores   Stores
		services []system.Service
	)

	if cfg.Enabled() {
		c, err := client.New(client.Config{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.AnonKey,
			Timeout:    cfg.Supabase.Timeout,
			Resilience: resilience(),
			Logger:     log.Named("supabase"),
		})
		if err != nil {
			return nil, fmt.Errorf("configure supabase client: %w", err)
		}
		sb := supabasestore.New(c, supabasestore.Options{
			RedirectURL: cfg.Supabase.RedirectURL,
			Logger:      log.Named("supabase-store"),
		})
		stores = Stores{
			Catalog:      sb,
			Orders:       sb,
			Feed:         sb,
			Auth:         sb,
			Roles:        sb,
			AdminCatalog: sb,
			AdminOrders:  sb,
			Content:      sb,
			Uploads:      sb,
			Analytics:    sb,
		}
	} else {
		log.Warn("SUPABASE_URL or SUPABASE_ANON_KEY not set; storefront running in disabled mode")
	}

	if cfg.RedisEnabled() {
		redisCfg := redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			CartTTL:  cfg.Redis.CartTTL,
			CacheTTL: cfg.Redis.CacheTTL,
		}
		rdb := redisstore.NewClient(redisCfg)
		stores.Carts = redisstore.NewCartStore(rdb, redisCfg)
		if stores.Catalog != nil {
			cache := redisstore.NewProductCache(stores.Catalog, rdb, redisCfg, log.Named("product-cache"))
			stores.Catalog = cache
			if err := metrics.RegisterCacheStats(func() (uint64, uint64, uint64) {
				s := cache.Stats()
				return s.Hits, s.Misses, s.Errors
			}); err != nil {
				log.WithError(err).Warn("register product cache metrics")
			}
		}
		services = append(services, redisService(rdb, log))
	}

	return NewWithStores(cfg, stores, log, services...)
}

// NewWithStores wires the application around explicit stores. extra services
// start before the store and stop after it.
func NewWithStores(cfg *config.Config, stores Stores, log *logger.Logger, extra ...system.Service) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	manager := system.NewManager()
	for _, svc := range extra {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	st := store.New(stores.storefront(), store.Options{
		Logger:   log.Named("store"),
		Observer: metrics.Observer{},
	})
	if err := manager.Register(storeService(st, log)); err != nil {
		return nil, fmt.Errorf("register store: %w", err)
	}

	var refresher *jobs.Refresher
	if st.Configured() {
		var err error
		refresher, err = jobs.NewRefresher(st, cfg.Catalog.RefreshSchedule, log.Named("catalog-refresher"))
		if err != nil {
			return nil, err
		}
		if err := manager.Register(refresher); err != nil {
			return nil, fmt.Errorf("register %s: %w", refresher.Name(), err)
		}
	}

	var keeper *jobs.SessionKeeper
	if st.Configured() && stores.Auth != nil {
		var err error
		keeper, err = jobs.NewSessionKeeper(st, cfg.Supabase.SessionRefreshSchedule, cfg.Supabase.SessionRefreshMargin, log.Named("session-keeper"))
		if err != nil {
			return nil, err
		}
		if err := manager.Register(keeper); err != nil {
			return nil, fmt.Errorf("register %s: %w", keeper.Name(), err)
		}
	}

	var adminService *adminsvc.Service
	if st.Configured() {
		adminService = adminsvc.New(stores.admin(), httpapi.HeaderConfirmer(), log.Named("admin"))
	}

	handler, err := httpapi.NewHandler(st, adminService, httpapi.Options{
		Logger:            log.Named("httpapi"),
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		AuditPath:         cfg.HTTP.AuditPath,
	})
	if err != nil {
		return nil, fmt.Errorf("configure http api: %w", err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Store:     st,
		Admin:     adminService,
		Refresher: refresher,
		Sessions:  keeper,
		Handler:   handler,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

func resilience() *client.ResilienceConfig {
	cfg := client.DefaultResilienceConfig()
	cfg.Observer = metrics.Observer{}
	return &cfg
}

// storeService adapts the store. A failed first load is kept in the catalog
// state rather than aborting startup.
func storeService(st *store.Store, log *logger.Logger) system.Service {
	return system.Func{
		ServiceName: "storefront-store",
		OnStart: func(ctx context.Context) error {
			if err := st.Start(ctx); err != nil {
				log.WithError(err).Warn("initial storefront load failed")
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return st.Close()
		},
	}
}

func redisService(rdb *goredis.Client, log *logger.Logger) system.Service {
	return system.Func{
		ServiceName: "redis",
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.WithError(err).Warn("redis unreachable; cart persistence and product cache will fail over")
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	}
}
