package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	adminsvc "github.com/R3E-Network/storefront/internal/app/services/admin"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
	"github.com/R3E-Network/storefront/supabase/client"
)

const (
	confirmHeader   = "X-Confirm"
	requestIDHeader = "X-Request-ID"
)

type ctxKey int

const (
	ctxConfirmedKey ctxKey = iota
	ctxCallerKey
)

// caller is the user a request authenticated as.
type caller struct {
	account.Profile
	Token string
}

func callerFrom(ctx context.Context) (caller, bool) {
	c, ok := ctx.Value(ctxCallerKey).(caller)
	return c, ok
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// withRequestID tags the request context with an id that is forwarded to the
// backend and echoed in the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = client.GenerateRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(client.WithRequestID(r.Context(), id)))
	})
}

// withConfirmation records whether the caller sent X-Confirm: true.
func withConfirmation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxConfirmedKey, confirmed(r))))
	})
}

func confirmed(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get(confirmHeader)), "true")
}

// HeaderConfirmer approves admin actions for requests that carried
// X-Confirm: true. Use it as the admin service Confirmer behind NewHandler.
func HeaderConfirmer() adminsvc.Confirmer {
	return adminsvc.ConfirmFunc(func(ctx context.Context, _ string) bool {
		ok, _ := ctx.Value(ctxConfirmedKey).(bool)
		return ok
	})
}

// authenticate verifies the bearer token of requests that carry one and
// attaches the caller. Backend calls made for the request then authorize as
// the caller. Requests without a token continue anonymously.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" || !h.store.Configured() {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errBadAuthorization)
			return
		}
		profile, err := h.store.Authenticate(r.Context(), token)
		if err != nil {
			h.log.WithError(err).
				WithField("path", r.URL.Path).
				WithField("request_id", client.GetRequestID(r.Context())).
				Warn("authentication failed")
			if errors.Is(err, storage.ErrUnauthenticated) {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			writeError(w, http.StatusBadGateway, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxCallerKey, caller{Profile: profile, Token: token})
		next.ServeHTTP(w, r.WithContext(client.WithAccessToken(ctx, token)))
	})
}

// requireSessionOwner admits only the user whose session the store mirrors.
func (h *handler) requireSessionOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := callerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		if session := h.store.Session(); session == nil || session.UserID != c.ID {
			writeError(w, http.StatusForbidden, errNotSessionOwner)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireCaller admits any authenticated user.
func (h *handler) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := callerFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin lets a request through only when the caller holds the admin
// role.
func (h *handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.admin == nil || !h.store.Configured() {
			writeError(w, http.StatusServiceUnavailable, adminsvc.ErrNotConfigured)
			return
		}
		c, ok := callerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		role, err := h.store.RoleOf(r.Context(), c.ID)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		if role != account.RoleAdmin {
			writeError(w, http.StatusForbidden, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recordAudit logs every console request as an action by the caller on the
// record named in the route.
func (h *handler) recordAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		a := consoleAction{
			Time:      start.UTC(),
			Action:    routeAction(r),
			Target:    routeTarget(r),
			Confirmed: confirmed(r),
			Status:    rec.status,
			Elapsed:   time.Since(start).Round(time.Millisecond).String(),
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: client.GetRequestID(r.Context()),
			Remote:    clientKey(r),
		}
		if c, ok := callerFrom(r.Context()); ok {
			a.User = c.ID
			a.Email = c.Email
		}
		h.activity.record(a)
		if a.mutating() {
			h.log.WithField("action", a.Action).
				WithField("target", a.Target).
				WithField("user", a.User).
				WithField("status", a.Status).
				Info("console action")
		}
	})
}

// routeAction names the matched route, falling back to its path template.
func routeAction(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.Method + " " + r.URL.Path
	}
	if name := route.GetName(); name != "" {
		return name
	}
	if tpl, err := route.GetPathTemplate(); err == nil {
		return r.Method + " " + tpl
	}
	return r.Method + " " + r.URL.Path
}

// routeTarget is the record id or setting key the route addresses.
func routeTarget(r *http.Request) string {
	vars := mux.Vars(r)
	if id := vars["id"]; id != "" {
		return id
	}
	return vars["key"]
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

func newRateLimiter(requestsPerSecond float64, burst int, log *logger.Logger) *rateLimiter {
	if burst <= 0 {
		burst = int(requestsPerSecond) + 1
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

func (rl *rateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Bound memory under address churn.
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler rejects requests over the per-client budget with 429.
func (rl *rateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.limiter(key).Allow() {
			rl.log.WithField("key", key).
				WithField("path", r.URL.Path).
				WithField("method", r.Method).
				Warn("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
