package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// =============================================================================
// Edge Functions
// =============================================================================

// Functions returns the edge function client.
func (c *Client) Functions() *FunctionsClient {
	return &FunctionsClient{client: c}
}

// FunctionsClient invokes Supabase edge functions with the caller's bearer token.
type FunctionsClient struct {
	client *Client
}

// Invoke posts body as JSON to /functions/v1/<name>. It requires a user token,
// from ctx or the session, because functions authorize on it, not the anon key.
func (f *FunctionsClient) Invoke(ctx context.Context, name string, body any) (gjson.Result, error) {
	token := f.client.accessToken(ctx)
	if token == "" {
		return gjson.Result{}, ErrNoSession
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal body: %w", err)
	}

	reqURL := fmt.Sprintf("%s/functions/v1/%s", f.client.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	if err := resp.Err(); err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, fmt.Errorf("function %s returned invalid JSON", name)
	}
	return gjson.ParseBytes(resp.Body), nil
}
