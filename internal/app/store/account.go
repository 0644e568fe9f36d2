package store

import (
	"context"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

// syncSession resolves the current session and applies it even when the
// user did not change, so a seeded profile still gets its orders and feed.
func (s *Store) syncSession(ctx context.Context) error {
	s.update(func(st *State) dirty {
		st.Account.Loading = true
		return 0
	})
	session, err := s.backends.Auth.CurrentSession(ctx)
	if err != nil {
		s.update(func(st *State) dirty {
			st.Account.Loading = false
			st.Account.Error = err.Error()
			return 0
		})
		return err
	}
	s.applySession(ctx, session, true)
	return nil
}

// applySession mirrors an auth state change. A change of user invalidates
// in-flight order loads and realtime events of the previous user.
func (s *Store) applySession(ctx context.Context, session *account.Session, force bool) {
	var (
		changed bool
		gen     uint64
	)
	s.update(func(st *State) dirty {
		prevID := ""
		if s.session != nil {
			prevID = s.session.UserID
		}
		st.Account.Loading = false
		if session == nil {
			s.session = nil
			st.Account.Profile = nil
			st.Account.Orders = []order.Summary{}
		} else {
			copied := *session
			s.session = &copied
			profile := session.Profile
			profile.ID = session.UserID
			st.Account.Profile = &profile
			st.Account.Error = ""
		}
		newID := ""
		if session != nil {
			newID = session.UserID
		}
		if prevID != newID {
			s.sessionGen++
			changed = true
		}
		gen = s.sessionGen
		return 0
	})
	if !changed && !force {
		return
	}

	if err := s.closeSubscription(); err != nil {
		s.log.WithError(err).Debug("close order feed")
	}
	if session == nil {
		return
	}
	if err := s.RefreshOrders(ctx); err != nil {
		s.log.WithError(err).Warn("refresh orders failed")
	}
	s.openSubscription(ctx, gen, session.UserID)
}

// RefreshOrders reloads the order history of the signed-in user. It is a
// no-op without a backend or a session. Results for a user who is no longer
// signed in, or superseded by a newer refresh, are dropped.
func (s *Store) RefreshOrders(ctx context.Context) error {
	if !s.Configured() {
		return nil
	}

	var (
		userID                string
		sessionGen, ordersGen uint64
	)
	s.update(func(st *State) dirty {
		if s.session == nil {
			return unchanged
		}
		userID = s.session.UserID
		s.ordersGen++
		sessionGen, ordersGen = s.sessionGen, s.ordersGen
		st.Account.Loading = true
		st.Account.Error = ""
		return 0
	})
	if userID == "" {
		return nil
	}

	start := time.Now()
	orders, err := s.backends.Orders.ListOrders(ctx, userID)
	s.observe("account.refresh_orders", start, err)

	s.update(func(st *State) dirty {
		if sessionGen != s.sessionGen || ordersGen != s.ordersGen {
			return unchanged
		}
		st.Account.Loading = false
		if err != nil {
			st.Account.Error = err.Error()
			return 0
		}
		if orders == nil {
			orders = []order.Summary{}
		}
		st.Account.Orders = orders
		return 0
	})
	return err
}

// openSubscription starts the realtime order feed for userID. Only known
// persisted orders are patched; unknown ids are ignored.
func (s *Store) openSubscription(ctx context.Context, gen uint64, userID string) {
	if s.backends.Feed == nil {
		return
	}
	sub, err := s.backends.Feed.SubscribeOrders(ctx, userID, func(c order.Change) {
		s.update(func(st *State) dirty {
			if gen != s.sessionGen {
				return unchanged
			}
			orders, ok := order.ApplyChange(st.Account.Orders, c)
			if !ok {
				return unchanged
			}
			st.Account.Orders = orders
			return 0
		})
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("order feed unavailable")
		return
	}

	// Sessions change before closeSubscription runs, so checking under subMu
	// leaves no window for a stale feed to be stored after the close.
	s.subMu.Lock()
	s.mu.Lock()
	stale := gen != s.sessionGen
	s.mu.Unlock()
	select {
	case <-s.done:
		stale = true
	default:
	}
	if stale {
		s.subMu.Unlock()
		sub.Close()
		return
	}
	prev := s.sub
	s.sub = sub
	s.subMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (s *Store) closeSubscription() error {
	s.subMu.Lock()
	sub := s.sub
	s.sub = nil
	s.subMu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// SignInWithOTP requests a sign-in link for email. Failures are recorded in
// the account state and returned.
func (s *Store) SignInWithOTP(ctx context.Context, email string) error {
	if !s.Configured() || s.backends.Auth == nil {
		return nil
	}
	s.update(func(st *State) dirty {
		st.Account.Loading = true
		st.Account.Error = ""
		return 0
	})

	start := time.Now()
	err := s.backends.Auth.SignInWithOTP(ctx, email)
	s.observe("account.sign_in_otp", start, err)

	s.update(func(st *State) dirty {
		st.Account.Loading = false
		if err != nil {
			st.Account.Error = err.Error()
		}
		return 0
	})
	return err
}

// VerifyOTP exchanges the emailed code for a session and mirrors it. Failures
// are recorded in the account state and returned.
func (s *Store) VerifyOTP(ctx context.Context, email, code string) (*account.Session, error) {
	if !s.Configured() || s.backends.Auth == nil {
		return nil, storage.ErrUnauthenticated
	}
	s.update(func(st *State) dirty {
		st.Account.Loading = true
		st.Account.Error = ""
		return 0
	})

	start := time.Now()
	session, err := s.backends.Auth.VerifyOTP(ctx, email, code)
	s.observe("account.verify_otp", start, err)

	if err != nil {
		s.update(func(st *State) dirty {
			st.Account.Loading = false
			st.Account.Error = err.Error()
			return 0
		})
		return nil, err
	}
	s.applySession(ctx, session, false)
	copied := *session
	return &copied, nil
}

// RefreshSession renews the access token of the signed-in user. The user does
// not change, so orders and the feed are kept.
func (s *Store) RefreshSession(ctx context.Context) error {
	if !s.Configured() || s.backends.Auth == nil || s.Session() == nil {
		return nil
	}
	start := time.Now()
	session, err := s.backends.Auth.RefreshSession(ctx)
	s.observe("account.refresh_session", start, err)
	if err != nil {
		return err
	}
	if session != nil {
		s.applySession(ctx, session, false)
	}
	return nil
}

// Authenticate resolves the user behind a caller's access token. It fails
// with storage.ErrUnauthenticated without a backend.
func (s *Store) Authenticate(ctx context.Context, accessToken string) (account.Profile, error) {
	if !s.Configured() || s.backends.Auth == nil || accessToken == "" {
		return account.Profile{}, storage.ErrUnauthenticated
	}
	return s.backends.Auth.Authenticate(ctx, accessToken)
}

// SignOut ends the session. On success the profile, orders and session are
// cleared before it returns and the order feed is closed.
func (s *Store) SignOut(ctx context.Context) error {
	if !s.Configured() || s.backends.Auth == nil {
		return nil
	}
	s.update(func(st *State) dirty {
		st.Account.Loading = true
		st.Account.Error = ""
		return 0
	})

	start := time.Now()
	err := s.backends.Auth.SignOut(ctx)
	s.observe("account.sign_out", start, err)

	if err != nil {
		s.update(func(st *State) dirty {
			st.Account.Loading = false
			st.Account.Error = err.Error()
			return 0
		})
		return err
	}

	s.update(func(st *State) dirty {
		if s.session != nil {
			s.session = nil
			s.sessionGen++
		}
		st.Account = account.State{Orders: []order.Summary{}}
		return 0
	})
	return s.closeSubscription()
}

// Session returns the mirrored session, nil when signed out.
func (s *Store) Session() *account.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

// ResolveRole looks up the role of the signed-in user.
func (s *Store) ResolveRole(ctx context.Context) (account.Role, error) {
	session := s.Session()
	if session == nil {
		return account.RoleNone, nil
	}
	return s.RoleOf(ctx, session.UserID)
}

// RoleOf looks up the role of userID.
func (s *Store) RoleOf(ctx context.Context, userID string) (account.Role, error) {
	if userID == "" || s.backends.Roles == nil {
		return account.RoleNone, nil
	}
	return s.backends.Roles.GetRole(ctx, userID)
}
