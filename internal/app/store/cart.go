package store

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

const cartSaveTimeout = 5 * time.Second

// AddItem adds quantity units of product, priced from variantID when it names
// a priced variant, and opens the cart.
func (s *Store) AddItem(product catalog.Product, quantity int, variantID string) {
	s.update(func(st *State) dirty {
		st.Cart = st.Cart.Add(product, quantity, variantID)
		return dirtyCart
	})
}

// UpdateItemQuantity replaces the quantity of line id; zero or less removes it.
func (s *Store) UpdateItemQuantity(id string, quantity int) {
	s.update(func(st *State) dirty {
		st.Cart = st.Cart.SetQuantity(id, quantity)
		return dirtyCart
	})
}

// RemoveItem deletes line id.
func (s *Store) RemoveItem(id string) {
	s.update(func(st *State) dirty {
		st.Cart = st.Cart.Remove(id)
		return dirtyCart
	})
}

// ClearCart empties the cart.
func (s *Store) ClearCart() {
	s.update(func(st *State) dirty {
		st.Cart = st.Cart.Clear()
		return dirtyCart
	})
}

// OpenCart shows the cart drawer.
func (s *Store) OpenCart() { s.setCartOpen(func(bool) bool { return true }) }

// CloseCart hides the cart drawer.
func (s *Store) CloseCart() { s.setCartOpen(func(bool) bool { return false }) }

// ToggleCart flips the cart drawer.
func (s *Store) ToggleCart() { s.setCartOpen(func(open bool) bool { return !open }) }

func (s *Store) setCartOpen(fn func(bool) bool) {
	s.update(func(st *State) dirty {
		st.Cart = st.Cart.WithOpen(fn(st.Cart.Open))
		return 0
	})
}

// loadCart restores the persisted cart unless the store was seeded with items.
func (s *Store) loadCart(ctx context.Context) {
	saved, err := s.backends.Carts.LoadCart(ctx, s.opts.CartKey)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.WithError(err).Warn("load cart failed")
		return
	}
	s.update(func(st *State) dirty {
		if st.Cart.Empty() {
			st.Cart.Items = saved.Snapshot()
		}
		return 0
	})
}

// markCartDirty wakes the writer. Bursts of mutations coalesce into one save
// of the latest cart.
func (s *Store) markCartDirty() {
	if s.cartDirty == nil {
		return
	}
	select {
	case s.cartDirty <- struct{}{}:
	default:
	}
}

func (s *Store) cartWriter() {
	defer s.wg.Done()
	for {
		select {
		case <-s.cartDirty:
			s.saveCart()
		case <-s.done:
			select {
			case <-s.cartDirty:
				s.saveCart()
			default:
			}
			return
		}
	}
}

func (s *Store) saveCart() {
	s.mu.Lock()
	c := s.state.Cart
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cartSaveTimeout)
	defer cancel()
	if err := s.backends.Carts.SaveCart(ctx, s.opts.CartKey, c); err != nil {
		s.log.WithError(err).Warn("save cart failed")
	}
}
