package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// =============================================================================
// Auth Operations
// =============================================================================

// AuthEvent names an auth state transition.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthListener observes auth state changes. session is nil after sign-out.
type AuthListener func(event AuthEvent, session *Session)

// Session is a GoTrue session.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// User represents a Supabase user.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `json:"role"`
	CreatedAt    string         `json:"created_at"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Auth returns the auth client bound to this client's session.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles GoTrue operations and owns the in-memory session.
type AuthClient struct {
	client *Client
}

// SignInWithOTP requests a passwordless email link. redirectTo may be empty.
func (a *AuthClient) SignInWithOTP(ctx context.Context, email, redirectTo string) error {
	reqURL := a.client.baseURL + "/auth/v1/otp"
	if redirectTo != "" {
		reqURL += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}

	resp, err := a.post(ctx, reqURL, map[string]any{
		"email":       email,
		"create_user": true,
	}, "")
	if err != nil {
		return err
	}
	return resp.Err()
}

// VerifyOTP exchanges an emailed code for a session and signs the user in.
func (a *AuthClient) VerifyOTP(ctx context.Context, email, token string) (*Session, error) {
	resp, err := a.post(ctx, a.client.baseURL+"/auth/v1/verify", map[string]string{
		"type":  "email",
		"email": email,
		"token": token,
	}, "")
	if err != nil {
		return nil, err
	}
	return a.acceptSession(resp, EventSignedIn)
}

// RefreshSession trades the refresh token for a new session.
func (a *AuthClient) RefreshSession(ctx context.Context) (*Session, error) {
	current := a.client.session.get()
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}
	resp, err := a.post(ctx, a.client.baseURL+"/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": current.RefreshToken,
	}, "")
	if err != nil {
		return nil, err
	}
	return a.acceptSession(resp, EventTokenRefreshed)
}

// SetSession installs a session obtained elsewhere, such as a magic-link redirect.
func (a *AuthClient) SetSession(s *Session) {
	if s == nil {
		return
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	a.client.session.set(s, EventSignedIn)
}

// Session returns the current session, or nil when signed out.
func (a *AuthClient) Session() *Session {
	return a.client.session.get()
}

// GetUser fetches the user behind the access token carried by ctx, or behind
// the current session when ctx carries none. GoTrue validates the token, so a
// forged or expired one fails with ErrUnauthorized.
func (a *AuthClient) GetUser(ctx context.Context) (*User, error) {
	token := a.client.accessToken(ctx)
	if token == "" {
		return nil, ErrNoSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session server side and clears it locally.
func (a *AuthClient) SignOut(ctx context.Context) error {
	s := a.client.session.get()
	if s == nil {
		return nil
	}
	resp, err := a.post(ctx, a.client.baseURL+"/auth/v1/logout", nil, s.AccessToken)
	if err != nil {
		return err
	}
	// An already revoked token still ends the local session.
	if err := resp.Err(); err != nil && !errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrNotFound) {
		return err
	}
	a.client.session.clear()
	return nil
}

// OnAuthStateChange registers fn and returns a function removing it.
func (a *AuthClient) OnAuthStateChange(fn AuthListener) (unsubscribe func()) {
	return a.client.session.subscribe(fn)
}

func (a *AuthClient) post(ctx context.Context, reqURL string, payload any, bearer string) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return a.client.do(req)
}

func (a *AuthClient) acceptSession(resp *Response, event AuthEvent) (*Session, error) {
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var s Session
	if err := resp.JSON(&s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if s.AccessToken == "" {
		return nil, &Error{Code: "invalid_session", Message: "auth response did not include an access token", StatusCode: resp.StatusCode}
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	a.client.session.set(&s, event)
	return &s, nil
}

// =============================================================================
// Per-request tokens
// =============================================================================

type accessTokenKey struct{}

// WithAccessToken makes requests issued with ctx authorize as token instead of
// the client's session, so one client can act for many callers.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFrom returns the token set by WithAccessToken.
func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

func (c *Client) accessToken(ctx context.Context) string {
	if token := AccessTokenFrom(ctx); token != "" {
		return token
	}
	if s := c.session.get(); s != nil {
		return s.AccessToken
	}
	return ""
}

// =============================================================================
// Session holder
// =============================================================================

type sessionHolder struct {
	mu        sync.RWMutex
	current   *Session
	nextID    int
	listeners map[int]AuthListener
}

func newSessionHolder() *sessionHolder {
	return &sessionHolder{listeners: make(map[int]AuthListener)}
}

func (h *sessionHolder) get() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *sessionHolder) set(s *Session, event AuthEvent) {
	h.mu.Lock()
	h.current = s
	listeners := h.snapshotLocked()
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(event, s)
	}
}

func (h *sessionHolder) clear() {
	h.mu.Lock()
	had := h.current != nil
	h.current = nil
	listeners := h.snapshotLocked()
	h.mu.Unlock()

	if !had {
		return
	}
	for _, fn := range listeners {
		fn(EventSignedOut, nil)
	}
}

func (h *sessionHolder) subscribe(fn AuthListener) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

func (h *sessionHolder) snapshotLocked() []AuthListener {
	out := make([]AuthListener, 0, len(h.listeners))
	for i := 0; i < h.nextID; i++ {
		if fn, ok := h.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
