// Package store is the storefront state container. It composes the catalog,
// cart, checkout and account slices behind one mutex, runs backend calls
// outside the lock and applies their results as functional updates guarded
// by generation tokens.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/checkout"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// DisabledMessage is exposed while no backend is configured.
const DisabledMessage = "Supabase client is not configured"

// ErrNotConfigured is returned by operations that need a backend.
var ErrNotConfigured = errors.New(DisabledMessage)

// Backends are the storage ports the store talks to. Catalog and Orders are
// required for the store to count as configured; the rest are optional.
type Backends struct {
	Catalog storage.CatalogStore
	Orders  storage.OrderStore
	Feed    storage.OrderFeed
	Auth    storage.AuthStore
	Roles   storage.RoleStore
	Carts   storage.CartStore
}

func (b Backends) configured() bool {
	return b.Catalog != nil && b.Orders != nil
}

// Observer receives the outcome of backend calls.
type Observer interface {
	ObserveOperation(op string, d time.Duration, err error)
}

// InitialState seeds a store before the first fetch.
type InitialState struct {
	Products  []catalog.Product
	CartItems []cart.Item
	Orders    []order.Summary
	Profile   *account.Profile
}

// Options tunes a Store.
type Options struct {
	Logger   *logger.Logger
	Observer Observer
	Now      func() time.Time
	Initial  *InitialState
	// CartKey names the persisted cart. Defaults to "guest".
	CartKey string
	// SkipInitialFetch disables the catalog load in Start.
	SkipInitialFetch bool
}

// CatalogState is the catalog slice.
type CatalogState struct {
	Products []catalog.Product `json:"products"`
	Filters  catalog.Filters   `json:"filters"`
	Loading  bool              `json:"loading"`
	Error    string            `json:"error,omitempty"`

	// cache indexes products by id and by slug. Replaced, never mutated.
	cache map[string]catalog.Product
	// bounds is the price range applied by the last successful refresh.
	bounds    [2]decimal.Decimal
	hasBounds bool
}

// State is the full store state. Slices inside are never mutated in place, so
// a shallow copy is a consistent snapshot.
type State struct {
	Catalog  CatalogState   `json:"catalog"`
	Cart     cart.Cart      `json:"cart"`
	Checkout checkout.State `json:"checkout"`
	Account  account.State  `json:"account"`
	// Disabled carries DisabledMessage when no backend is configured.
	Disabled string `json:"disabled,omitempty"`
}

// Snapshot is the read model: state plus derived fields.
type Snapshot struct {
	State
	FilteredProducts []catalog.Product `json:"filtered_products"`
	FeaturedProducts []catalog.Product `json:"featured_products"`
	Categories       []string          `json:"categories"`
	CartCount        int               `json:"cart_count"`
	CartSubtotal     decimal.Decimal   `json:"cart_subtotal"`
	Version          uint64            `json:"version"`
}

// dirty marks which memo inputs an update touched.
type dirty uint8

const (
	dirtyProducts dirty = 1 << iota
	dirtyFilters
	dirtyCart

	// unchanged tells update that fn left the state alone.
	unchanged dirty = 1 << 7
)

type memo struct {
	valid       bool
	productsRev uint64
	filtersRev  uint64
	filtered    []catalog.Product
	featured    []catalog.Product
	categories  []string
}

// Store is the state container. Construct it with New.
type Store struct {
	backends Backends
	log      *logger.Logger
	observer Observer
	now      func() time.Time
	opts     Options

	mu          sync.Mutex
	state       State
	version     uint64
	productsRev uint64
	filtersRev  uint64
	memo        memo
	session     *account.Session

	catalogGen  uint64
	ordersGen   uint64
	sessionGen  uint64
	checkoutGen uint64

	listenersMu sync.Mutex
	listeners   map[int]func(uint64)
	nextID      int

	subMu sync.Mutex
	sub   storage.Subscription

	slugs    singleflight.Group
	computes atomic.Uint64

	cartDirty chan struct{}
	authStop  func()
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New builds a store. Without configured backends it runs in disabled mode.
func New(backends Backends, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("store")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CartKey == "" {
		opts.CartKey = "guest"
	}

	s := &Store{
		backends:  backends,
		log:       opts.Logger,
		observer:  opts.Observer,
		now:       opts.Now,
		opts:      opts,
		listeners: make(map[int]func(uint64)),
		done:      make(chan struct{}),
	}
	s.state = initialState(opts.Initial)
	if !backends.configured() {
		s.state.Disabled = DisabledMessage
	}
	if opts.Initial != nil && opts.Initial.Profile != nil {
		s.session = &account.Session{UserID: opts.Initial.Profile.ID, Profile: *opts.Initial.Profile}
	}
	return s
}

func initialState(init *InitialState) State {
	st := State{
		Catalog:  CatalogState{Filters: catalog.DefaultFilters(), cache: map[string]catalog.Product{}},
		Checkout: checkout.Initial(),
		Account:  account.State{Orders: []order.Summary{}},
	}
	if init == nil {
		return st
	}
	st.Catalog.Products = append([]catalog.Product(nil), init.Products...)
	st.Catalog.cache = indexProducts(st.Catalog.Products)
	st.Cart.Items = append([]cart.Item(nil), init.CartItems...)
	if init.Orders != nil {
		st.Account.Orders = append([]order.Summary(nil), init.Orders...)
	}
	if init.Profile != nil {
		p := *init.Profile
		st.Account.Profile = &p
	}
	return st
}

func indexProducts(products []catalog.Product) map[string]catalog.Product {
	idx := make(map[string]catalog.Product, 2*len(products))
	for _, p := range products {
		idx[p.ID] = p
		idx[p.Slug] = p
	}
	return idx
}

// Configured reports whether the store has a backend.
func (s *Store) Configured() bool { return s.backends.configured() }

// Start loads the persisted cart, subscribes to auth changes, resolves the
// current session and loads the catalog. It must be called once.
func (s *Store) Start(ctx context.Context) error {
	if s.backends.Carts != nil {
		s.loadCart(ctx)
		s.cartDirty = make(chan struct{}, 1)
		s.wg.Add(1)
		go s.cartWriter()
	}
	if !s.Configured() {
		s.log.Warn(DisabledMessage)
		return nil
	}

	var firstErr error
	if s.backends.Auth != nil {
		s.authStop = s.backends.Auth.OnAuthStateChange(func(session *account.Session) {
			s.applySession(context.Background(), session, false)
		})
		if err := s.syncSession(ctx); err != nil {
			firstErr = err
		}
	}
	if !s.opts.SkipInitialFetch {
		if err := s.RefreshCatalog(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the auth listener, the realtime subscription and the cart
// writer. It is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.authStop != nil {
			s.authStop()
		}
		err = s.closeSubscription()
		s.wg.Wait()
	})
	return err
}

// OnChange registers fn, called with the new version after every update.
// Listeners run outside the state lock, on the goroutine that made the change.
func (s *Store) OnChange(fn func(version uint64)) (remove func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// update applies fn to the state under the lock. fn returns which memo inputs
// it changed, or unchanged to skip the version bump and notification.
func (s *Store) update(fn func(st *State) dirty) {
	s.mu.Lock()
	d := fn(&s.state)
	if d&unchanged != 0 {
		s.mu.Unlock()
		return
	}
	if d&dirtyProducts != 0 {
		s.productsRev++
	}
	if d&dirtyFilters != 0 {
		s.filtersRev++
	}
	s.version++
	version := s.version
	s.mu.Unlock()

	if d&dirtyCart != 0 {
		s.markCartDirty()
	}
	s.notify(version)
}

func (s *Store) notify(version uint64) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(uint64), len(ids))
	for i, id := range ids {
		fns[i] = s.listeners[id]
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(version)
	}
}

// State returns a copy of the raw state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the read model. Derived catalog fields are recomputed only
// when the product list or the filters changed since the last snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.memo.valid || s.memo.productsRev != s.productsRev || s.memo.filtersRev != s.filtersRev {
		products := s.state.Catalog.Products
		m := memo{
			valid:       true,
			productsRev: s.productsRev,
			filtersRev:  s.filtersRev,
			filtered:    catalog.Apply(products, s.state.Catalog.Filters),
		}
		if s.memo.valid && s.memo.productsRev == s.productsRev {
			m.featured, m.categories = s.memo.featured, s.memo.categories
		} else {
			m.featured = catalog.Featured(products)
			m.categories = catalog.Categories(products)
		}
		s.memo = m
		s.computes.Add(1)
	}

	return Snapshot{
		State:            s.state,
		FilteredProducts: s.memo.filtered,
		FeaturedProducts: s.memo.featured,
		Categories:       s.memo.categories,
		CartCount:        s.state.Cart.Count(),
		CartSubtotal:     s.state.Cart.Subtotal(),
		Version:          s.version,
	}
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveOperation(op, time.Since(start), err)
	}
}
