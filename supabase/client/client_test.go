package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL, APIKey: "anon-key", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// =============================================================================
// Config
// =============================================================================

func TestNew_RequiresURLAndKey(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Error("New() without URL should fail")
	}
	if _, err := New(Config{URL: "https://x.supabase.co"}); err == nil {
		t.Error("New() without APIKey should fail")
	}
	c, err := New(Config{URL: "https://x.supabase.co/", APIKey: "k"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.URL() != "https://x.supabase.co" {
		t.Errorf("URL() = %q, want trailing slash trimmed", c.URL())
	}
}

// =============================================================================
// Query builder
// =============================================================================

func TestQueryBuilder_ExecuteBuildsPostgRESTQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(`[]`))
	})

	var rows []map[string]any
	err := c.From("orders").
		Select("id, status, total").
		Eq("user_id", "u-1").
		Gte("placed_at", "2024-01-01").
		In("status", "pending", "processing").
		Order("created_at", false).
		Limit(5).
		ExecuteInto(context.Background(), &rows)
	if err != nil {
		t.Fatalf("ExecuteInto() error = %v", err)
	}

	if got.URL.Path != "/rest/v1/orders" {
		t.Errorf("path = %s, want /rest/v1/orders", got.URL.Path)
	}
	q := got.URL.Query()
	checks := map[string]string{
		"select":    "id,status,total",
		"user_id":   "eq.u-1",
		"placed_at": "gte.2024-01-01",
		"status":    "in.(pending,processing)",
		"order":     "created_at.desc",
		"limit":     "5",
	}
	for key, want := range checks {
		if q.Get(key) != want {
			t.Errorf("query %s = %q, want %q", key, q.Get(key), want)
		}
	}
	if got.Header.Get("apikey") != "anon-key" {
		t.Errorf("apikey header = %q", got.Header.Get("apikey"))
	}
	if got.Header.Get("Authorization") != "Bearer anon-key" {
		t.Errorf("Authorization = %q, want anon bearer without session", got.Header.Get("Authorization"))
	}
}

func TestQueryBuilder_MaybeSingle(t *testing.T) {
	body := `[]`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	var row struct {
		ID string `json:"id"`
	}
	err := c.From("products").Select("id").Eq("slug", "lamp").MaybeSingle().ExecuteInto(context.Background(), &row)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty MaybeSingle error = %v, want ErrNotFound", err)
	}

	body = `[{"id":"p1"}]`
	if err := c.From("products").Select("id").Eq("slug", "lamp").MaybeSingle().ExecuteInto(context.Background(), &row); err != nil {
		t.Fatalf("MaybeSingle error = %v", err)
	}
	if row.ID != "p1" {
		t.Errorf("row.ID = %q, want p1", row.ID)
	}

	body = `[{"id":"p1"},{"id":"p2"}]`
	if err := c.From("products").MaybeSingle().ExecuteInto(context.Background(), &row); err == nil {
		t.Error("MaybeSingle with two rows should fail")
	}
}

func TestQueryBuilder_InsertSingleSendsPreferAndAccept(t *testing.T) {
	var (
		prefer, accept, method string
		payload                map[string]any
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		prefer = r.Header.Get("Prefer")
		accept = r.Header.Get("Accept")
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"ord_1"}`))
	})

	resp, err := c.From("orders").Select("id,status").Single().ExecuteInsert(context.Background(), map[string]any{"total": 60})
	if err != nil {
		t.Fatalf("ExecuteInsert() error = %v", err)
	}
	if method != http.MethodPost {
		t.Errorf("method = %s, want POST", method)
	}
	if prefer != "return=representation" {
		t.Errorf("Prefer = %q", prefer)
	}
	if accept != "application/vnd.pgrst.object+json" {
		t.Errorf("Accept = %q", accept)
	}
	if payload["total"] != float64(60) {
		t.Errorf("payload total = %v", payload["total"])
	}
	if resp.Err() != nil {
		t.Errorf("resp.Err() = %v", resp.Err())
	}
}

func TestQueryBuilder_UpsertAndUpdateRequireFilters(t *testing.T) {
	var prefer, rawQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	})

	if _, err := c.From("settings").OnConflict("key").ExecuteUpsert(context.Background(), map[string]any{"key": "hero"}); err != nil {
		t.Fatalf("ExecuteUpsert() error = %v", err)
	}
	if !strings.HasPrefix(prefer, "resolution=merge-duplicates") {
		t.Errorf("Prefer = %q, want merge-duplicates", prefer)
	}
	if !strings.Contains(rawQuery, "on_conflict=key") {
		t.Errorf("query = %q, want on_conflict", rawQuery)
	}

	if _, err := c.From("products").ExecuteUpdate(context.Background(), map[string]any{"status": "draft"}); err == nil {
		t.Error("ExecuteUpdate without filter should fail")
	}
	if _, err := c.From("products").ExecuteDelete(context.Background()); err == nil {
		t.Error("ExecuteDelete without filter should fail")
	}
}

// =============================================================================
// RPC & errors
// =============================================================================

func TestRPC_PostsParams(t *testing.T) {
	var path string
	var params map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&params)
		w.Write([]byte(`{"id":"p1","inventory_count":7}`))
	})

	resp, err := c.RPC(context.Background(), "admin_adjust_inventory", map[string]any{"p_quantity_delta": 2})
	if err != nil {
		t.Fatalf("RPC() error = %v", err)
	}
	if path != "/rest/v1/rpc/admin_adjust_inventory" {
		t.Errorf("path = %s", path)
	}
	if params["p_quantity_delta"] != float64(2) {
		t.Errorf("params = %v", params)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

func TestResponseErr_ParsesPostgRESTAndGoTrueBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		code    string
	}{
		{"postgrest", 400, `{"code":"P0001","message":"insufficient stock","details":null,"hint":null}`, "insufficient stock", "P0001"},
		{"gotrue", 422, `{"code":422,"msg":"Email rate limit exceeded"}`, "Email rate limit exceeded", "422"},
		{"oauth", 400, `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`, "Invalid Refresh Token", ""},
		{"plain", 502, `bad gateway`, "bad gateway", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Response{StatusCode: tt.status, Body: []byte(tt.body)}).Err()
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("Err() = %T, want *Error", err)
			}
			if apiErr.Error() != tt.message {
				t.Errorf("Error() = %q, want %q", apiErr.Error(), tt.message)
			}
			if apiErr.Code != tt.code {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.code)
			}
		})
	}
}

func TestError_IsMatchesByStatus(t *testing.T) {
	err := parseError([]byte(`{"message":"no rows"}`), http.StatusNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Error("404 error should match ErrNotFound")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("404 error should not match ErrUnauthorized")
	}
}

func TestStorage_UploadToSignedURL(t *testing.T) {
	var (
		method, contentType, path string
		body                      []byte
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
	})

	err := c.Storage().UploadToSignedURL(context.Background(), "/object/upload/sign/product-assets/p1/x.png?token=t", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("UploadToSignedURL() error = %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/storage/v1/object/upload/sign/product-assets/p1/x.png" {
		t.Errorf("path = %s", path)
	}
	if contentType != "image/png" || string(body) != "png" {
		t.Errorf("content-type = %q body = %q", contentType, body)
	}
}
