package client

import (
	"context"
	"crypto/tls"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/storefront/pkg/logger"
)

// =============================================================================
// Retry Configuration
// =============================================================================

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff
	MaxBackoff time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter float64
	// RetryableStatusCodes are HTTP status codes that should be retried
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry policy used against the hosted backend.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if max := float64(c.MaxBackoff); max > 0 && d > max {
		d = max
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (c RetryConfig) retryableStatus(code int) bool {
	for _, s := range c.RetryableStatusCodes {
		if s == code {
			return true
		}
	}
	return false
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it again
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns the breaker policy used against the hosted backend.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker trips after repeated backend failures so callers fail fast.
type CircuitBreaker struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	state    CircuitState
	failures int
	passes   int
	openedAt time.Time
	now      func() time.Time
	onChange func(from, to CircuitState)
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, now: time.Now}
}

// Allow reports whether a request may proceed, moving an expired open circuit to half-open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transitionLocked(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.passes++
		if cb.passes >= cb.config.SuccessThreshold {
			cb.transitionLocked(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionLocked(CircuitOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.passes = 0
	if to == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.onChange != nil && from != to {
		go cb.onChange(from, to)
	}
}

// =============================================================================
// Resilient transport
// =============================================================================

// Observer receives resilience events, typically to feed metrics.
type Observer interface {
	ObserveRetry(method, path string, attempt int)
	ObserveCircuit(from, to CircuitState)
}

// ResilienceConfig bundles the retry policy, breaker policy and an optional observer.
type ResilienceConfig struct {
	Retry    RetryConfig
	Breaker  CircuitBreakerConfig
	Observer Observer
}

// DefaultResilienceConfig returns the default retry and breaker policies.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{Retry: DefaultRetryConfig(), Breaker: DefaultCircuitBreakerConfig()}
}

// TransportStats counts requests seen by the resilient transport.
type TransportStats struct {
	Total   int64
	Success int64
	Failed  int64
	Retried int64
}

type resilientTransport struct {
	base     http.RoundTripper
	retry    RetryConfig
	breaker  *CircuitBreaker
	observer Observer
	log      *logger.Logger

	total, success, failed, retried atomic.Int64
}

func newResilientTransport(base http.RoundTripper, cfg ResilienceConfig, log *logger.Logger) *resilientTransport {
	if base == nil {
		base = defaultTransport()
	}
	rt := &resilientTransport{
		base:     base,
		retry:    cfg.Retry,
		breaker:  NewCircuitBreaker(cfg.Breaker),
		observer: cfg.Observer,
		log:      log,
	}
	rt.breaker.onChange = func(from, to CircuitState) {
		rt.log.WithField("from", from.String()).WithField("to", to.String()).Warn("supabase circuit state changed")
		if rt.observer != nil {
			rt.observer.ObserveCircuit(from, to)
		}
	}
	return rt
}

func (rt *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.total.Add(1)

	if err := rt.breaker.Allow(); err != nil {
		rt.failed.Add(1)
		return nil, err
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= rt.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			rt.retried.Add(1)
			if rt.observer != nil {
				rt.observer.ObserveRetry(req.Method, req.URL.Path, attempt)
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(rt.retry.backoff(attempt)):
			}
			next, err := rewind(req)
			if err != nil {
				break
			}
			req = next
		}

		resp, lastErr = rt.base.RoundTrip(req)
		if lastErr != nil {
			if retryableError(lastErr) {
				continue
			}
			break
		}
		if rt.retry.retryableStatus(resp.StatusCode) && attempt < rt.retry.MaxRetries {
			resp.Body.Close()
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
			continue
		}

		if resp.StatusCode >= 500 {
			rt.breaker.RecordFailure()
		} else {
			rt.breaker.RecordSuccess()
		}
		rt.success.Add(1)
		return resp, nil
	}

	rt.breaker.RecordFailure()
	rt.failed.Add(1)
	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return nil, lastErr
}

func (rt *resilientTransport) stats() TransportStats {
	return TransportStats{
		Total:   rt.total.Load(),
		Success: rt.success.Load(),
		Failed:  rt.failed.Load(),
		Retried: rt.retried.Load(),
	}
}

// Stats returns transport counters, zero when resilience is disabled.
func (c *Client) Stats() TransportStats {
	if rt, ok := c.httpClient.Transport.(*resilientTransport); ok {
		return rt.stats()
	}
	return TransportStats{}
}

// CircuitState returns the breaker state, closed when resilience is disabled.
func (c *Client) CircuitState() CircuitState {
	if rt, ok := c.httpClient.Transport.(*resilientTransport); ok {
		return rt.breaker.State()
	}
	return CircuitClosed
}

// rewind clones req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPError is a retryable status that exhausted its retries.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode)
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// =============================================================================
// Request ID
// =============================================================================

type requestIDKey struct{}

// WithRequestID adds a request ID to the context; it is forwarded as X-Request-ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID generates a unique request ID.
func GenerateRequestID() string {
	return uuid.NewString()
}
