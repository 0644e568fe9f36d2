package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity fields carried by a Supabase access token.
type Claims struct {
	Subject      string
	Email        string
	Role         string
	ExpiresAt    time.Time
	UserMetadata map[string]any
	AppMetadata  map[string]any
}

// ParseClaims decodes the access token without verifying its signature. The
// signing secret never reaches this side; the token is only read for display
// fields and the backend still verifies every request.
func ParseClaims(accessToken string) (*Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	sub := getStringClaim(claims, "sub")
	if sub == "" {
		return nil, fmt.Errorf("access token has no subject")
	}
	return &Claims{
		Subject:      sub,
		Email:        getStringClaim(claims, "email"),
		Role:         getStringClaim(claims, "role"),
		ExpiresAt:    getTimeClaim(claims, "exp"),
		UserMetadata: getMapClaim(claims, "user_metadata"),
		AppMetadata:  getMapClaim(claims, "app_metadata"),
	}, nil
}

// UserFromSession returns the session user, falling back to token claims when the
// session arrived without a user payload.
func UserFromSession(s *Session) (*User, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if s.User != nil && s.User.ID != "" {
		return s.User, nil
	}
	claims, err := ParseClaims(s.AccessToken)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:           claims.Subject,
		Email:        claims.Email,
		Role:         claims.Role,
		UserMetadata: claims.UserMetadata,
		AppMetadata:  claims.AppMetadata,
	}, nil
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func getMapClaim(claims jwt.MapClaims, key string) map[string]any {
	if val, ok := claims[key]; ok {
		if m, ok := val.(map[string]any); ok {
			return m
		}
	}
	return nil
}

func getTimeClaim(claims jwt.MapClaims, key string) time.Time {
	switch v := claims[key].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}
