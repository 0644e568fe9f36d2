package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuth_SignInWithOTP(t *testing.T) {
	var (
		path, redirect string
		payload        map[string]any
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		redirect = r.URL.Query().Get("redirect_to")
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{}`))
	})

	if err := c.Auth().SignInWithOTP(context.Background(), "a@b.co", "https://shop.example/account"); err != nil {
		t.Fatalf("SignInWithOTP() error = %v", err)
	}
	if path != "/auth/v1/otp" {
		t.Errorf("path = %s", path)
	}
	if redirect != "https://shop.example/account" {
		t.Errorf("redirect_to = %q", redirect)
	}
	if payload["email"] != "a@b.co" {
		t.Errorf("email = %v", payload["email"])
	}
}

func TestAuth_SignInWithOTPSurfacesError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":429,"msg":"Email rate limit exceeded"}`))
	})

	err := c.Auth().SignInWithOTP(context.Background(), "a@b.co", "")
	if err == nil || err.Error() != "Email rate limit exceeded" {
		t.Errorf("SignInWithOTP() error = %v", err)
	}
}

func TestAuth_VerifyOTPNotifiesListenersAndAuthorizesRequests(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "u-1", "email": "a@b.co", "exp": time.Now().Add(time.Hour).Unix()})
	var lastAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/verify":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  token,
				"refresh_token": "r-1",
				"expires_in":    3600,
				"user":          map[string]any{"id": "u-1", "email": "a@b.co"},
			})
		case "/auth/v1/logout":
			lastAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
		default:
			lastAuth = r.Header.Get("Authorization")
			w.Write([]byte(`[]`))
		}
	})

	var (
		mu     sync.Mutex
		events []AuthEvent
	)
	unsubscribe := c.Auth().OnAuthStateChange(func(event AuthEvent, s *Session) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})
	defer unsubscribe()

	s, err := c.Auth().VerifyOTP(context.Background(), "a@b.co", "123456")
	if err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if s.ExpiresAt == 0 {
		t.Error("ExpiresAt should be derived from expires_in")
	}
	if c.Auth().Session() == nil {
		t.Fatal("Session() = nil after VerifyOTP")
	}

	var rows []any
	if err := c.From("orders").ExecuteInto(context.Background(), &rows); err != nil {
		t.Fatalf("ExecuteInto() error = %v", err)
	}
	if lastAuth != "Bearer "+token {
		t.Errorf("Authorization = %q, want session bearer", lastAuth)
	}

	if err := c.Auth().SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if c.Auth().Session() != nil {
		t.Error("Session() should be nil after SignOut")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != EventSignedIn || events[1] != EventSignedOut {
		t.Errorf("events = %v, want [SIGNED_IN SIGNED_OUT]", events)
	}
}

func TestAuth_UnsubscribeStopsNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	calls := 0
	unsubscribe := c.Auth().OnAuthStateChange(func(AuthEvent, *Session) { calls++ })
	unsubscribe()
	unsubscribe()

	c.Auth().SetSession(&Session{AccessToken: "t", ExpiresIn: 60})
	if calls != 0 {
		t.Errorf("listener called %d times after unsubscribe", calls)
	}
}

func TestParseClaimsAndUserFromSession(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub":           "u-9",
		"email":         "nine@example.com",
		"role":          "authenticated",
		"exp":           float64(1700000000),
		"user_metadata": map[string]any{"full_name": "Nine", "avatar_url": "https://a/9.png"},
	})

	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}
	if claims.Subject != "u-9" || claims.Email != "nine@example.com" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ExpiresAt.Unix() != 1700000000 {
		t.Errorf("ExpiresAt = %v", claims.ExpiresAt)
	}

	user, err := UserFromSession(&Session{AccessToken: token})
	if err != nil {
		t.Fatalf("UserFromSession() error = %v", err)
	}
	if user.ID != "u-9" || user.UserMetadata["full_name"] != "Nine" {
		t.Errorf("user = %+v", user)
	}

	if _, err := ParseClaims("not-a-token"); err == nil {
		t.Error("ParseClaims() should reject garbage")
	}
}

func TestFunctions_InvokeRequiresSession(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"uploadUrl":"/object/upload/sign/x","token":"tok","path":"p1/x.png"}`))
	})

	if _, err := c.Functions().Invoke(context.Background(), "admin-upload-media", map[string]any{}); err != ErrNoSession {
		t.Fatalf("Invoke() without session error = %v, want ErrNoSession", err)
	}

	c.Auth().SetSession(&Session{AccessToken: "user-token"})
	res, err := c.Functions().Invoke(context.Background(), "admin-upload-media", map[string]any{"productId": "p1"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if auth != "Bearer user-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if res.Get("uploadUrl").String() != "/object/upload/sign/x" {
		t.Errorf("uploadUrl = %q", res.Get("uploadUrl").String())
	}
}

func TestAuth_GetUserWithRequestToken(t *testing.T) {
	var auth []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer caller-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
			return
		}
		w.Write([]byte(`{"id":"u-7","email":"caller@example.com"}`))
	})

	if _, err := c.Auth().GetUser(context.Background()); err != ErrNoSession {
		t.Fatalf("GetUser() without token error = %v, want ErrNoSession", err)
	}

	c.Auth().SetSession(&Session{AccessToken: "session-token"})
	user, err := c.Auth().GetUser(WithAccessToken(context.Background(), "caller-token"))
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.ID != "u-7" {
		t.Errorf("user.ID = %q", user.ID)
	}

	if _, err := c.Auth().GetUser(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("GetUser() with session token error = %v, want ErrUnauthorized", err)
	}
	if len(auth) != 2 || auth[0] != "Bearer caller-token" || auth[1] != "Bearer session-token" {
		t.Errorf("Authorization headers = %v", auth)
	}
}

func TestRequestTokenOverridesSessionBearer(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	})
	c.Auth().SetSession(&Session{AccessToken: "session-token"})

	var rows []any
	if err := c.From("products").ExecuteInto(WithAccessToken(context.Background(), "caller-token"), &rows); err != nil {
		t.Fatalf("ExecuteInto() error = %v", err)
	}
	if auth != "Bearer caller-token" {
		t.Errorf("Authorization = %q, want request token", auth)
	}
	if got := AccessTokenFrom(context.Background()); got != "" {
		t.Errorf("AccessTokenFrom(empty) = %q", got)
	}
}
