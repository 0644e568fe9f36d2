// Package account mirrors the signed-in customer: profile, order history and role.
package account

import (
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

// Role is the storefront role recorded in app_user_roles.
type Role string

const (
	RoleNone     Role = ""
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole maps a stored role name, treating unknown names as none.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleCustomer:
		return Role(s)
	}
	return RoleNone
}

// Profile is the identity shown for the signed-in user. Only ID is guaranteed.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Session is the auth session as seen by the store.
type Session struct {
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
	Profile     Profile
}

// State is the account slice of the store.
type State struct {
	Profile *Profile        `json:"profile,omitempty"`
	Orders  []order.Summary `json:"orders"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
}

// ProfileFromMetadata builds a profile from a user id, email and GoTrue user_metadata.
func ProfileFromMetadata(id, email string, metadata map[string]any) Profile {
	p := Profile{ID: id, Email: email}
	if metadata != nil {
		if v, ok := metadata["full_name"].(string); ok {
			p.FullName = v
		}
		if v, ok := metadata["avatar_url"].(string); ok {
			p.AvatarURL = v
		}
	}
	return p
}
