// Package client is a small Supabase client covering what the storefront needs:
// PostgREST queries and RPC, GoTrue passwordless auth, edge functions, signed
// storage uploads and the realtime change feed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/storefront/pkg/logger"
)

// Client is a Supabase REST API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	session    *sessionHolder
	log        *logger.Logger
}

// Config holds client configuration.
type Config struct {
	URL    string
	APIKey string
	// HTTPClient overrides the transport. When nil a client with Resilience applied is built.
	HTTPClient *http.Client
	// Resilience enables retries and the circuit breaker. Nil disables both.
	Resilience *ResilienceConfig
	Timeout    time.Duration
	Logger     *logger.Logger
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("supabase")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout, Transport: defaultTransport()}
	}
	if cfg.Resilience != nil {
		httpClient = &http.Client{
			Timeout:   httpClient.Timeout,
			Transport: newResilientTransport(httpClient.Transport, *cfg.Resilience, cfg.Logger),
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		session:    newSessionHolder(),
		log:        cfg.Logger,
	}, nil
}

// URL returns the project base URL.
func (c *Client) URL() string { return c.baseURL }

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table or view.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

type filter struct {
	column string
	expr   string
}

// QueryBuilder builds PostgREST queries. Builders are single use.
type QueryBuilder struct {
	client      *Client
	table       string
	columns     string
	filters     []filter
	orders      []string
	limit       int
	offset      int
	single      bool
	maybeSingle bool
	onConflict  string
}

// Select specifies columns to select, including embedded relations such as
// "id, variants:product_variants(id, name)".
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = compactColumns(columns)
	return q
}

func (q *QueryBuilder) where(column, op string, value any) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, expr: op + "." + formatValue(value)})
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder { return q.where(column, "eq", value) }

// Neq adds a not-equal filter.
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder {
	return q.where(column, "neq", value)
}

// Gte adds a greater-than-or-equal filter.
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	return q.where(column, "gte", value)
}

// Lte adds a less-than-or-equal filter.
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder {
	return q.where(column, "lte", value)
}

// ILike adds a case-insensitive LIKE filter.
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return q.where(column, "ilike", pattern)
}

// In adds an IN filter.
func (q *QueryBuilder) In(column string, values ...any) *QueryBuilder {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	q.filters = append(q.filters, filter{column: column, expr: "in.(" + strings.Join(parts, ",") + ")"})
	return q
}

// Is adds an IS filter (null, true, false).
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder { return q.where(column, "is", value) }

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the OFFSET.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Single expects exactly one row; PostgREST answers 406 otherwise.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// MaybeSingle expects zero or one row. Zero rows surface as ErrNotFound from ExecuteInto.
func (q *QueryBuilder) MaybeSingle() *QueryBuilder {
	q.maybeSingle = true
	return q
}

// OnConflict sets the conflict target used by ExecuteUpsert.
func (q *QueryBuilder) OnConflict(columns string) *QueryBuilder {
	q.onConflict = columns
	return q
}

func (q *QueryBuilder) endpoint(withRead bool) string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)

	params := url.Values{}
	for _, f := range q.filters {
		params.Add(f.column, f.expr)
	}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	if withRead {
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
		if q.offset > 0 {
			params.Set("offset", strconv.Itoa(q.offset))
		}
	}
	if q.onConflict != "" {
		params.Set("on_conflict", q.onConflict)
	}
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.endpoint(true), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req)
}

// ExecuteInto runs the SELECT and decodes the body into v. With MaybeSingle an
// empty result returns ErrNotFound and v is left untouched.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, v any) error {
	resp, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if !q.maybeSingle {
		return resp.JSON(v)
	}

	var rows []json.RawMessage
	if err := resp.JSON(&rows); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	switch len(rows) {
	case 0:
		return ErrNotFound
	case 1:
		return json.Unmarshal(rows[0], v)
	default:
		return &Error{Code: "PGRST116", Message: "multiple rows returned for a single row request", StatusCode: http.StatusNotAcceptable}
	}
}

// ExecuteInsert inserts data and returns the stored representation.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, data, "return=representation")
}

// ExecuteUpsert inserts data, merging rows that collide on the conflict target.
func (q *QueryBuilder) ExecuteUpsert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, data, "resolution=merge-duplicates,return=representation")
}

// ExecuteUpdate patches the rows matched by the filters.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	if len(q.filters) == 0 {
		return nil, fmt.Errorf("update on %s requires a filter", q.table)
	}
	return q.write(ctx, http.MethodPatch, data, "return=representation")
}

// ExecuteDelete deletes the rows matched by the filters.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	if len(q.filters) == 0 {
		return nil, fmt.Errorf("delete on %s requires a filter", q.table)
	}
	return q.write(ctx, http.MethodDelete, nil, "return=representation")
}

func (q *QueryBuilder) write(ctx context.Context, method string, data any, prefer string) (*Response, error) {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint(false), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", prefer)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req)
}

// =============================================================================
// RPC (Stored Procedures)
// =============================================================================

// RPC calls a stored procedure.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)

	var body io.Reader = bytes.NewReader([]byte("{}"))
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Err returns a *Error when the response indicates failure.
func (r *Response) Err() error {
	if r.StatusCode >= 400 {
		return parseError(r.Body, r.StatusCode)
	}
	return nil
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	token := c.accessToken(req.Context())
	if token == "" {
		token = c.apiKey
	}
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if id := GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("path", req.URL.Path).Debug("supabase request failed")
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.WithField("method", req.Method).
		WithField("path", req.URL.Path).
		WithField("status", resp.StatusCode).
		WithField("elapsed", time.Since(start)).
		Debug("supabase request")

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

const maxResponseBytes = 16 << 20

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	case nil:
		return "null"
	default:
		return fmt.Sprint(val)
	}
}

// compactColumns strips whitespace PostgREST would otherwise reject inside select lists.
func compactColumns(columns string) string {
	return strings.Join(strings.Fields(columns), "")
}
