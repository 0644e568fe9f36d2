package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/domain/checkout"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/metrics"
	adminsvc "github.com/R3E-Network/storefront/internal/app/services/admin"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/internal/app/store"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Options configures the HTTP surface.
type Options struct {
	Logger *logger.Logger
	// RequestsPerSecond and Burst size the per-client rate limiter. Zero
	// disables limiting.
	RequestsPerSecond float64
	Burst             int
	// AuditPath, when set, appends admin requests to a JSONL file.
	AuditPath string
}

// handler bundles HTTP endpoints for the storefront and the admin console.
type handler struct {
	store    *store.Store
	admin    *adminsvc.Service
	log      *logger.Logger
	activity *activityLog
}

// NewHandler returns a router exposing the storefront API. adminService may be nil,
// in which case the admin routes answer 503.
func NewHandler(st *store.Store, adminService *adminsvc.Service, opts Options) (http.Handler, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("httpapi")
	}
	sink, err := openJSONLSink(opts.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	log := opts.Logger
	h := &handler{
		store: st,
		admin: adminService,
		log:   log,
		activity: newActivityLog(200, sink, func(err error) {
			log.WithError(err).Warn("persist console action")
		}),
	}

	router := mux.NewRouter()
	router.Use(withRequestID)
	if opts.RequestsPerSecond > 0 {
		limiter := newRateLimiter(opts.RequestsPerSecond, opts.Burst, opts.Logger)
		router.Use(limiter.Handler)
	}

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.authenticate)
	api.HandleFunc("/snapshot", h.snapshot).Methods(http.MethodGet)

	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{slug}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/catalog/filters", h.updateFilters).Methods(http.MethodPatch)
	api.HandleFunc("/catalog/filters", h.resetFilters).Methods(http.MethodDelete)
	api.HandleFunc("/catalog/refresh", h.refreshCatalog).Methods(http.MethodPost)

	api.HandleFunc("/cart", h.getCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", h.addItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", h.updateItem).Methods(http.MethodPatch)
	api.HandleFunc("/cart/items/{id}", h.removeItem).Methods(http.MethodDelete)
	api.HandleFunc("/cart/{action:open|close|toggle}", h.cartDrawer).Methods(http.MethodPost)

	api.HandleFunc("/checkout", h.getCheckout).Methods(http.MethodGet)
	api.HandleFunc("/checkout/step", h.goToStep).Methods(http.MethodPut)
	api.HandleFunc("/checkout/shipping", h.updateShipping).Methods(http.MethodPatch)
	api.HandleFunc("/checkout/payment", h.updatePayment).Methods(http.MethodPatch)
	api.HandleFunc("/checkout/submit", h.placeOrder).Methods(http.MethodPost)
	api.HandleFunc("/checkout/reset", h.resetCheckout).Methods(http.MethodPost)

	owner := func(fn http.HandlerFunc) http.Handler { return h.requireSessionOwner(fn) }
	api.Handle("/account", owner(h.getAccount)).Methods(http.MethodGet)
	api.HandleFunc("/account/otp", h.signInWithOTP).Methods(http.MethodPost)
	api.HandleFunc("/account/verify", h.verifyOTP).Methods(http.MethodPost)
	api.Handle("/account/signout", owner(h.signOut)).Methods(http.MethodPost)
	api.Handle("/account/orders", owner(h.listOrders)).Methods(http.MethodGet)
	api.Handle("/account/role", h.requireCaller(http.HandlerFunc(h.getRole))).Methods(http.MethodGet)

	console := api.PathPrefix("/admin").Subrouter()
	console.Use(h.requireAdmin, h.recordAudit, withConfirmation)
	console.HandleFunc("/catalog", h.adminCatalog).Methods(http.MethodGet).Name("catalog.view")
	console.HandleFunc("/products/{id}/inventory", h.adjustInventory).Methods(http.MethodPost).Name("product.adjust_inventory")
	console.HandleFunc("/products/{id}/status", h.toggleProductStatus).Methods(http.MethodPost).Name("product.toggle_status")
	console.HandleFunc("/categories", h.createCategory).Methods(http.MethodPost).Name("category.create")
	console.HandleFunc("/orders", h.adminOrders).Methods(http.MethodGet).Name("orders.view")
	console.HandleFunc("/orders/{id}", h.adminOrderDetail).Methods(http.MethodGet).Name("order.view")
	console.HandleFunc("/orders/{id}/status", h.updateOrderStatus).Methods(http.MethodPost).Name("order.update_status")
	console.HandleFunc("/content", h.adminContent).Methods(http.MethodGet).Name("content.view")
	console.HandleFunc("/settings/{key}", h.saveSetting).Methods(http.MethodPut).Name("setting.save")
	console.HandleFunc("/media", h.uploadMedia).Methods(http.MethodPost).Name("media.upload")
	console.HandleFunc("/analytics", h.analytics).Methods(http.MethodGet).Name("analytics.view")
	console.HandleFunc("/activity", h.listActivity).Methods(http.MethodGet).Name("activity.view")

	return metrics.InstrumentHandler(router), nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	status := "ok"
	if snap.Disabled != "" {
		status = "disabled"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"message": snap.Disabled,
		"version": snap.Version,
	})
}

// snapshot returns the full read model. The account slice is only shown to
// the owner of the mirrored session.
func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	if !h.isSessionOwner(r) {
		snap.Account = account.State{Orders: []order.Summary{}}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) isSessionOwner(r *http.Request) bool {
	c, ok := callerFrom(r.Context())
	if !ok {
		return false
	}
	session := h.store.Session()
	return session != nil && session.UserID == c.ID
}

// --- catalog ----------------------------------------------------------------

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	products := snap.FilteredProducts
	if r.URL.Query().Get("featured") == "true" {
		products = snap.FeaturedProducts
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products":   products,
		"categories": snap.Categories,
		"filters":    snap.Catalog.Filters,
		"loading":    snap.Catalog.Loading,
		"error":      snap.Catalog.Error,
	})
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	p, err := h.store.FetchProductBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("product %s not found", slug))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) updateFilters(w http.ResponseWriter, r *http.Request) {
	var patch store.FilterPatch
	if err := decodeJSON(r.Body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.store.UpdateFilters(patch)
	h.listProducts(w, r)
}

func (h *handler) resetFilters(w http.ResponseWriter, r *http.Request) {
	h.store.ResetFilters()
	h.listProducts(w, r)
}

func (h *handler) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RefreshCatalog(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	h.listProducts(w, r)
}

// --- cart -------------------------------------------------------------------

func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    snap.Cart.Items,
		"open":     snap.Cart.Open,
		"count":    snap.CartCount,
		"subtotal": snap.CartSubtotal,
	})
}

func (h *handler) addItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Product   string `json:"product"`
		Quantity  int    `json:"quantity"`
		VariantID string `json:"variant_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Product) == "" {
		writeError(w, http.StatusBadRequest, errors.New("product is required"))
		return
	}
	p, err := h.store.FetchProductBySlug(r.Context(), payload.Product)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("product %s not found", payload.Product))
		return
	}
	h.store.AddItem(*p, payload.Quantity, payload.VariantID)
	h.getCart(w, r)
}

func (h *handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.store.UpdateItemQuantity(mux.Vars(r)["id"], payload.Quantity)
	h.getCart(w, r)
}

func (h *handler) removeItem(w http.ResponseWriter, r *http.Request) {
	h.store.RemoveItem(mux.Vars(r)["id"])
	h.getCart(w, r)
}

func (h *handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.store.ClearCart()
	h.getCart(w, r)
}

func (h *handler) cartDrawer(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["action"] {
	case "open":
		h.store.OpenCart()
	case "close":
		h.store.CloseCart()
	default:
		h.store.ToggleCart()
	}
	h.getCart(w, r)
}

// --- checkout ---------------------------------------------------------------

func (h *handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot().Checkout)
}

func (h *handler) goToStep(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Step checkout.Step `json:"step"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !payload.Step.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown checkout step %q", payload.Step))
		return
	}
	h.store.GoToStep(payload.Step)
	h.getCheckout(w, r)
}

func (h *handler) updateShipping(w http.ResponseWriter, r *http.Request) {
	var patch checkout.ShippingPatch
	if err := decodeJSON(r.Body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.store.UpdateShipping(patch)
	h.getCheckout(w, r)
}

func (h *handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var patch checkout.PaymentPatch
	if err := decodeJSON(r.Body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.store.UpdatePayment(patch)
	h.getCheckout(w, r)
}

// placeOrder submits the cart. While a customer is signed in the order is
// filed under their account, so only they may submit.
func (h *handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	if h.store.Session() != nil && !h.isSessionOwner(r) {
		writeError(w, http.StatusForbidden, errNotSessionOwner)
		return
	}
	if err := h.store.PlaceOrder(r.Context()); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, h.store.Snapshot().Checkout)
		return
	}
	h.getCheckout(w, r)
}

func (h *handler) resetCheckout(w http.ResponseWriter, r *http.Request) {
	h.store.ResetCheckout()
	h.getCheckout(w, r)
}

// --- account ----------------------------------------------------------------

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot().Account)
}

func (h *handler) signInWithOTP(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}
	if err := h.store.SignInWithOTP(r.Context(), email); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// verifyOTP signs in with the emailed code and returns the session token the
// caller presents as a bearer token on account and admin routes.
func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	email, code := strings.TrimSpace(payload.Email), strings.TrimSpace(payload.Code)
	if email == "" || code == "" {
		writeError(w, http.StatusBadRequest, errors.New("email and code are required"))
		return
	}
	session, err := h.store.VerifyOTP(r.Context(), email, code)
	switch {
	case errors.Is(err, storage.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
		return
	}
	resp := map[string]any{
		"access_token": session.AccessToken,
		"token_type":   "bearer",
		"profile":      session.Profile,
	}
	if !session.ExpiresAt.IsZero() {
		resp["expires_at"] = session.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SignOut(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.store.RefreshOrders(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot().Account.Orders)
}

func (h *handler) getRole(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	role, err := h.store.RoleOf(r.Context(), c.ID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": string(role)})
}

// --- admin ------------------------------------------------------------------

func (h *handler) adminCatalog(w http.ResponseWriter, r *http.Request) {
	view, err := h.admin.Catalog(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) adjustInventory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Delta int `json:"delta"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.admin.AdjustInventory(r.Context(), mux.Vars(r)["id"], payload.Delta)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) toggleProductStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.admin.ToggleProductStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := h.admin.CreateCategory(r.Context(), payload.Name, payload.Description)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	view, err := h.admin.Orders(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) adminOrderDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.admin.OrderDetail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.admin.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], payload.Status, payload.Notes); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminContent(w http.ResponseWriter, r *http.Request) {
	view, err := h.admin.Content(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) saveSetting(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.admin.SaveSetting(r.Context(), mux.Vars(r)["key"], raw); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) uploadMedia(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID   string `json:"product_id"`
		FileName    string `json:"file_name"`
		ContentType string `json:"content_type"`
		AltText     string `json:"alt_text"`
		Data        []byte `json:"data"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ticket, err := h.admin.UploadMedia(r.Context(), admin.Upload{
		ProductID:   payload.ProductID,
		FileName:    payload.FileName,
		ContentType: payload.ContentType,
		AltText:     payload.AltText,
		Data:        payload.Data,
	})
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *handler) analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.admin.Analytics(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// listActivity returns recent console actions. ?user= narrows to one user,
// ?mutating=true drops reads and ?limit= caps the result (default 50).
func (h *handler) listActivity(w http.ResponseWriter, r *http.Request) {
	q := activityQuery{
		User:         r.URL.Query().Get("user"),
		MutatingOnly: r.URL.Query().Get("mutating") == "true",
		Limit:        50,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		q.Limit = n
	}
	writeJSON(w, http.StatusOK, h.activity.recent(q))
}

// writeAdminError maps admin service errors to status codes.
func writeAdminError(w http.ResponseWriter, err error) {
	var verr *adminsvc.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, adminsvc.ErrNotConfirmed):
		writeError(w, http.StatusPreconditionRequired, fmt.Errorf("%w: set %s: true to proceed", err, confirmHeader))
	case errors.Is(err, adminsvc.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
