package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and backs tests and offline development.
type Store struct {
	mu         sync.RWMutex
	nextOrder  int64
	nextRef    int64
	now        func() time.Time
	products   []catalog.Product
	orders     map[string][]order.Summary
	carts      map[string]cart.Cart
	roles      map[string]account.Role
	session    *account.Session
	tokens     map[string]account.Session
	otpSent    []string
	listeners  map[int]func(*account.Session)
	feeds      map[int]feed
	createHook func(context.Context, order.Request) (order.Summary, error)

	adminProducts []admin.Product
	categories    []admin.Category
	summaries     []admin.OrderSummary
	details       map[string]admin.OrderDetail
	settings      map[string]admin.Setting
	media         []admin.Media
	uploads       map[string][]byte
	revenue       []admin.RevenueRow
	events        []admin.InventoryEvent
	audit         []admin.AuditLog
}

type feed struct {
	userID string
	fn     func(order.Change)
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.OrderFeed = (*Store)(nil)
var _ storage.AuthStore = (*Store)(nil)
var _ storage.RoleStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.AdminCatalogStore = (*Store)(nil)
var _ storage.AdminOrderStore = (*Store)(nil)
var _ storage.ContentStore = (*Store)(nil)
var _ storage.MediaUploader = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextOrder: 1,
		now:       time.Now,
		orders:    make(map[string][]order.Summary),
		carts:     make(map[string]cart.Cart),
		roles:     make(map[string]account.Role),
		tokens:    make(map[string]account.Session),
		listeners: make(map[int]func(*account.Session)),
		feeds:     make(map[int]feed),
		details:   make(map[string]admin.OrderDetail),
		settings:  make(map[string]admin.Setting),
		uploads:   make(map[string][]byte),
	}
}

// SetClock replaces the time source used for created rows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// SeedProducts replaces the storefront catalog.
func (s *Store) SeedProducts(products ...catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append([]catalog.Product(nil), products...)
}

// SeedOrders replaces the order history of userID, newest first.
func (s *Store) SeedOrders(userID string, orders ...order.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[userID] = append([]order.Summary(nil), orders...)
}

// SetRole records the role of userID.
func (s *Store) SetRole(userID string, role account.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
}

// OnCreateOrder overrides CreateOrder, e.g. to fail or block in tests.
func (s *Store) OnCreateOrder(fn func(context.Context, order.Request) (order.Summary, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createHook = fn
}

// CatalogStore implementation -------------------------------------------------

func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, len(s.products))
	for i, p := range s.products {
		out[i] = p.Normalize()
	}
	return out, nil
}

func (s *Store) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Slug == slug {
			return p.Normalize(), nil
		}
	}
	return catalog.Product{}, storage.ErrNotFound
}

// OrderStore implementation ---------------------------------------------------

func (s *Store) ListOrders(_ context.Context, userID string) ([]order.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]order.Summary(nil), s.orders[userID]...), nil
}

// CreateOrder persists req and assigns sequential ids "ord_1", "ord_2", ...
func (s *Store) CreateOrder(ctx context.Context, req order.Request) (order.Summary, error) {
	s.mu.RLock()
	hook := s.createHook
	s.mu.RUnlock()
	if hook != nil {
		return hook(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]cart.Item, len(req.Items))
	for i, line := range req.Items {
		variant := ""
		if line.VariantID != nil {
			variant = *line.VariantID
		}
		items[i] = cart.Item{
			ID:        cart.Key(line.ProductID, variant),
			ProductID: line.ProductID,
			VariantID: variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}
	created := order.Summary{
		ID:        fmt.Sprintf("ord_%d", s.nextOrder),
		Status:    req.Status,
		Total:     req.Total,
		Currency:  req.Currency,
		CreatedAt: s.now(),
		Items:     items,
	}
	s.nextOrder++
	s.orders[req.UserID] = order.Prepend(s.orders[req.UserID], created)
	return created, nil
}

// OrderFeed implementation ----------------------------------------------------

type subscription struct {
	s  *Store
	id int
}

func (sub subscription) Close() error {
	sub.s.mu.Lock()
	delete(sub.s.feeds, sub.id)
	sub.s.mu.Unlock()
	return nil
}

func (s *Store) SubscribeOrders(_ context.Context, userID string, fn func(order.Change)) (storage.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRef++
	id := int(s.nextRef)
	s.feeds[id] = feed{userID: userID, fn: fn}
	return subscription{s: s, id: id}, nil
}

// PushOrderChange delivers c to every feed of userID, in subscription order.
func (s *Store) PushOrderChange(userID string, c order.Change) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.feeds))
	for id, f := range s.feeds {
		if f.userID == userID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	fns := make([]func(order.Change), len(ids))
	for i, id := range ids {
		fns[i] = s.feeds[id].fn
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Subscribers counts open order feeds.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feeds)
}

// AuthStore implementation ----------------------------------------------------

func (s *Store) CurrentSession(_ context.Context) (*account.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	copied := *s.session
	return &copied, nil
}

func (s *Store) SignInWithOTP(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otpSent = append(s.otpSent, email)
	return nil
}

// OTPRequests returns the emails a sign-in link was requested for.
func (s *Store) OTPRequests() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.otpSent...)
}

// OTPCode is the one-time code VerifyOTP accepts for an email that requested
// a sign-in link.
const OTPCode = "123456"

// sessionTTL is the lifetime of tokens issued by VerifyOTP and RefreshSession.
const sessionTTL = time.Hour

func (s *Store) VerifyOTP(_ context.Context, email, code string) (*account.Session, error) {
	s.mu.Lock()
	requested := false
	for _, e := range s.otpSent {
		if e == email {
			requested = true
			break
		}
	}
	if !requested || code != OTPCode {
		s.mu.Unlock()
		return nil, storage.ErrUnauthenticated
	}
	userID := "user:" + email
	session := &account.Session{
		UserID:      userID,
		AccessToken: s.issueTokenLocked(),
		ExpiresAt:   s.now().Add(sessionTTL),
		Profile:     account.Profile{ID: userID, Email: email},
	}
	s.mu.Unlock()

	s.SetSession(session)
	copied := *session
	return &copied, nil
}

func (s *Store) RefreshSession(_ context.Context) (*account.Session, error) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil, storage.ErrUnauthenticated
	}
	next := *s.session
	delete(s.tokens, next.AccessToken)
	next.AccessToken = s.issueTokenLocked()
	next.ExpiresAt = s.now().Add(sessionTTL)
	s.mu.Unlock()

	s.SetSession(&next)
	copied := next
	return &copied, nil
}

func (s *Store) Authenticate(_ context.Context, accessToken string) (account.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.tokens[accessToken]
	if !ok || accessToken == "" {
		return account.Profile{}, storage.ErrUnauthenticated
	}
	if !session.ExpiresAt.IsZero() && !s.now().Before(session.ExpiresAt) {
		return account.Profile{}, storage.ErrUnauthenticated
	}
	profile := session.Profile
	profile.ID = session.UserID
	return profile, nil
}

// SignOut revokes the current token and clears the session.
func (s *Store) SignOut(_ context.Context) error {
	s.mu.Lock()
	if s.session != nil {
		delete(s.tokens, s.session.AccessToken)
	}
	s.mu.Unlock()
	s.SetSession(nil)
	return nil
}

func (s *Store) issueTokenLocked() string {
	s.nextRef++
	return fmt.Sprintf("token-%d", s.nextRef)
}

// SetSession replaces the session and notifies listeners, like a completed
// sign-in. A session carrying an access token makes that token authenticate.
func (s *Store) SetSession(session *account.Session) {
	s.mu.Lock()
	s.session = session
	if session != nil && session.AccessToken != "" {
		s.tokens[session.AccessToken] = *session
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(*account.Session), len(ids))
	for i, id := range ids {
		fns[i] = s.listeners[id]
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if session == nil {
			fn(nil)
			continue
		}
		copied := *session
		fn(&copied)
	}
}

func (s *Store) OnAuthStateChange(fn func(*account.Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRef++
	id := int(s.nextRef)
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// RoleStore implementation ----------------------------------------------------

func (s *Store) GetRole(_ context.Context, userID string) (account.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[userID], nil
}

// CartStore implementation ----------------------------------------------------

func (s *Store) LoadCart(_ context.Context, key string) (cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[key]
	if !ok {
		return cart.Cart{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) SaveCart(_ context.Context, key string, c cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Items = c.Snapshot()
	s.carts[key] = c
	return nil
}

// AdminCatalogStore implementation --------------------------------------------

// SeedAdminCatalog replaces the admin product and category tables.
func (s *Store) SeedAdminCatalog(products []admin.Product, categories []admin.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminProducts = append([]admin.Product(nil), products...)
	s.categories = append([]admin.Category(nil), categories...)
}

func (s *Store) ListAdminProducts(_ context.Context) ([]admin.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]admin.Product(nil), s.adminProducts...), nil
}

func (s *Store) GetAdminProduct(_ context.Context, id string) (admin.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.adminProducts {
		if p.ID == id {
			return p, nil
		}
	}
	return admin.Product{}, storage.ErrNotFound
}

func (s *Store) ListCategories(_ context.Context) ([]admin.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]admin.Category(nil), s.categories...), nil
}

func (s *Store) AdjustInventory(_ context.Context, productID string, delta int, reason string, _ map[string]any) (admin.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.adminProducts {
		if p.ID != productID {
			continue
		}
		p.InventoryCount += delta
		s.adminProducts[i] = p
		s.nextRef++
		var why *string
		if reason != "" {
			why = &reason
		}
		s.events = append([]admin.InventoryEvent{{
			ID:                fmt.Sprintf("evt_%d", s.nextRef),
			ProductID:         productID,
			QuantityDelta:     delta,
			Reason:            why,
			ResultingQuantity: p.InventoryCount,
			CreatedAt:         s.now(),
		}}, s.events...)
		return p, nil
	}
	return admin.Product{}, storage.ErrNotFound
}

func (s *Store) SetProductStatus(_ context.Context, productID, status string) (admin.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.adminProducts {
		if p.ID == productID {
			p.Status = status
			s.adminProducts[i] = p
			return p, nil
		}
	}
	return admin.Product{}, storage.ErrNotFound
}

func (s *Store) CreateCategory(_ context.Context, c admin.Category) (admin.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.Slug == c.Slug {
			return admin.Category{}, fmt.Errorf("duplicate key value violates unique constraint \"categories_slug_key\"")
		}
	}
	s.nextRef++
	c.ID = fmt.Sprintf("cat_%d", s.nextRef)
	s.categories = append(s.categories, c)
	return c, nil
}

// AdminOrderStore implementation ----------------------------------------------

// SeedOrderDetails replaces the admin order tables. Summaries are derived from details.
func (s *Store) SeedOrderDetails(details ...admin.OrderDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details = make(map[string]admin.OrderDetail, len(details))
	s.summaries = s.summaries[:0]
	for _, d := range details {
		s.details[d.ID] = d
		s.summaries = append(s.summaries, admin.OrderSummary{
			ID:          d.ID,
			Status:      d.Status,
			TotalCents:  d.TotalCents,
			Currency:    d.Currency,
			PlacedAt:    d.PlacedAt,
			FulfilledAt: d.FulfilledAt,
			ItemCount:   len(d.Items),
		})
	}
	sort.SliceStable(s.summaries, func(i, j int) bool {
		return s.summaries[i].PlacedAt.After(s.summaries[j].PlacedAt)
	})
}

func (s *Store) ListOrderSummaries(_ context.Context) ([]admin.OrderSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]admin.OrderSummary(nil), s.summaries...), nil
}

func (s *Store) GetOrderDetail(_ context.Context, id string) (admin.OrderDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.details[id]
	if !ok {
		return admin.OrderDetail{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id, status, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.details[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := s.now()
	d.Status = status
	if notes != "" {
		d.Notes = &notes
	}
	switch status {
	case order.StatusFulfilled:
		d.FulfilledAt = &now
	case order.StatusCancelled:
		d.CancelledAt = &now
	}
	s.details[id] = d
	for i := range s.summaries {
		if s.summaries[i].ID == id {
			s.summaries[i].Status = status
			s.summaries[i].FulfilledAt = d.FulfilledAt
		}
	}
	return nil
}

// ContentStore implementation -------------------------------------------------

func (s *Store) ListSettings(_ context.Context) ([]admin.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]admin.Setting, 0, len(s.settings))
	for _, v := range s.settings {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) SaveSetting(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	setting := s.settings[key]
	setting.Key = key
	setting.Value = append(json.RawMessage(nil), value...)
	s.settings[key] = setting
	return nil
}

func (s *Store) ListMedia(_ context.Context, limit int) ([]admin.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]admin.Media(nil), s.media...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MediaUploader implementation ------------------------------------------------

func (s *Store) RequestUpload(_ context.Context, u admin.Upload) (admin.UploadTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRef++
	path := fmt.Sprintf("%s/%d-%s", u.ProductID, s.nextRef, u.FileName)
	productID := u.ProductID
	var alt *string
	if u.AltText != "" {
		text := u.AltText
		alt = &text
	}
	s.media = append([]admin.Media{{
		ID:        fmt.Sprintf("media_%d", s.nextRef),
		ProductID: &productID,
		Path:      path,
		MediaType: u.ContentType,
		AltText:   alt,
		CreatedAt: s.now(),
	}}, s.media...)
	return admin.UploadTicket{
		UploadURL: "/object/upload/sign/product-assets/" + path,
		Token:     fmt.Sprintf("tok_%d", s.nextRef),
		Path:      path,
	}, nil
}

func (s *Store) PutObject(_ context.Context, ticket admin.UploadTicket, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[ticket.Path] = append([]byte(nil), data...)
	return nil
}

// Object returns uploaded bytes stored at path.
func (s *Store) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.uploads[path]
	return b, ok
}

// AnalyticsStore implementation -----------------------------------------------

// SeedRevenue replaces the order rows used for analytics.
func (s *Store) SeedRevenue(rows ...admin.RevenueRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revenue = append([]admin.RevenueRow(nil), rows...)
}

// SeedAuditLog replaces the audit log, newest first.
func (s *Store) SeedAuditLog(entries ...admin.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append([]admin.AuditLog(nil), entries...)
}

func (s *Store) ListRevenueSince(_ context.Context, since time.Time) ([]admin.RevenueRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []admin.RevenueRow
	for _, r := range s.revenue {
		if !r.PlacedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListInventoryEvents(_ context.Context, limit int) ([]admin.InventoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]admin.InventoryEvent(nil), s.events...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]admin.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]admin.AuditLog(nil), s.audit...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
