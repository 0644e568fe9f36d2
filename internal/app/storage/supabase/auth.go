package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/supabase/client"
)

// --- AuthStore --------------------------------------------------------------

func (s *Store) CurrentSession(_ context.Context) (*account.Session, error) {
	return toAccountSession(s.client.Auth().Session()), nil
}

func (s *Store) SignInWithOTP(ctx context.Context, email string) error {
	return s.client.Auth().SignInWithOTP(ctx, email, s.redirectURL)
}

func (s *Store) VerifyOTP(ctx context.Context, email, code string) (*account.Session, error) {
	session, err := s.client.Auth().VerifyOTP(ctx, email, code)
	if err != nil {
		return nil, authError(err)
	}
	out := toAccountSession(session)
	if out == nil {
		return nil, fmt.Errorf("%w: session carries no user", storage.ErrUnauthenticated)
	}
	return out, nil
}

func (s *Store) RefreshSession(ctx context.Context) (*account.Session, error) {
	session, err := s.client.Auth().RefreshSession(ctx)
	if err != nil {
		return nil, authError(err)
	}
	return toAccountSession(session), nil
}

// Authenticate asks GoTrue for the user behind accessToken, so expired or
// forged tokens are rejected server side.
func (s *Store) Authenticate(ctx context.Context, accessToken string) (account.Profile, error) {
	user, err := s.client.Auth().GetUser(client.WithAccessToken(ctx, accessToken))
	if err != nil {
		return account.Profile{}, authError(err)
	}
	if user.ID == "" {
		return account.Profile{}, storage.ErrUnauthenticated
	}
	return account.ProfileFromMetadata(user.ID, user.Email, user.UserMetadata), nil
}

func (s *Store) SignOut(ctx context.Context) error {
	return s.client.Auth().SignOut(ctx)
}

func (s *Store) OnAuthStateChange(fn func(*account.Session)) func() {
	return s.client.Auth().OnAuthStateChange(func(event client.AuthEvent, session *client.Session) {
		if event == client.EventSignedOut {
			fn(nil)
			return
		}
		fn(toAccountSession(session))
	})
}

// toAccountSession maps a GoTrue session, reading identity from the token claims
// when the user payload is missing.
func toAccountSession(s *client.Session) *account.Session {
	if s == nil {
		return nil
	}
	user, err := client.UserFromSession(s)
	if err != nil || user.ID == "" {
		return nil
	}
	out := &account.Session{
		UserID:      user.ID,
		AccessToken: s.AccessToken,
		Profile:     account.ProfileFromMetadata(user.ID, user.Email, user.UserMetadata),
	}
	if out.Profile.Email == "" || out.Profile.FullName == "" {
		if claims, err := client.ParseClaims(s.AccessToken); err == nil {
			fromClaims := account.ProfileFromMetadata(user.ID, claims.Email, claims.UserMetadata)
			if out.Profile.Email == "" {
				out.Profile.Email = fromClaims.Email
			}
			if out.Profile.FullName == "" {
				out.Profile.FullName = fromClaims.FullName
			}
			if out.Profile.AvatarURL == "" {
				out.Profile.AvatarURL = fromClaims.AvatarURL
			}
		}
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return out
}

// authError maps GoTrue rejections to storage.ErrUnauthenticated and leaves
// transport failures as they are.
func authError(err error) error {
	if errors.Is(err, client.ErrNoSession) {
		return fmt.Errorf("%w: %v", storage.ErrUnauthenticated, err)
	}
	var cerr *client.Error
	if errors.As(err, &cerr) {
		switch cerr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", storage.ErrUnauthenticated, cerr.Message)
		}
	}
	return err
}
