package store

import (
	"context"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/checkout"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

// GoToStep moves the checkout to step. Forward moves are not validated here.
func (s *Store) GoToStep(step checkout.Step) {
	s.update(func(st *State) dirty {
		st.Checkout = st.Checkout.GoTo(step)
		return 0
	})
}

// UpdateShipping shallow-merges patch into the shipping details.
func (s *Store) UpdateShipping(patch checkout.ShippingPatch) {
	s.update(func(st *State) dirty {
		st.Checkout = st.Checkout.MergeShipping(patch)
		return 0
	})
}

// UpdatePayment shallow-merges patch into the payment details.
func (s *Store) UpdatePayment(patch checkout.PaymentPatch) {
	s.update(func(st *State) dirty {
		st.Checkout = st.Checkout.MergePayment(patch)
		return 0
	})
}

// ResetCheckout returns the checkout to its initial state. A submission in
// flight still reconciles the order list but no longer writes checkout state.
func (s *Store) ResetCheckout() {
	s.update(func(st *State) dirty {
		s.checkoutGen++
		st.Checkout = checkout.Initial()
		return 0
	})
}

// PlaceOrder submits the cart. It is a no-op without a backend, with an empty
// cart, or while another submission is in flight. An optimistic order shows in
// the checkout and the order list until the backend answers; on failure it is
// rolled back and the cart kept, on success it is replaced by the persisted
// order and the submitted quantities leave the cart. Lines added while the
// submission was in flight are kept. The backend error is both recorded in the
// checkout state and returned.
func (s *Store) PlaceOrder(ctx context.Context) error {
	if !s.Configured() {
		return nil
	}

	var (
		req         order.Request
		pending     order.Summary
		checkoutGen uint64
		sessionGen  uint64
		submitted   bool
	)
	s.update(func(st *State) dirty {
		if st.Cart.Empty() || st.Checkout.Status == checkout.StatusSubmitting {
			return unchanged
		}
		items := st.Cart.Snapshot()
		pending = order.Optimistic(items, st.Cart.Subtotal(), s.now())
		req = order.Request{
			Total:           pending.Total,
			Currency:        catalog.DefaultCurrency,
			Status:          order.StatusProcessing,
			Items:           order.Lines(items),
			ShippingDetails: st.Checkout.Shipping,
			PaymentMethod:   st.Checkout.Payment.Method,
		}
		if s.session != nil {
			req.UserID = s.session.UserID
		}
		st.Checkout = st.Checkout.Submitting(pending)
		st.Account.Orders = order.Prepend(st.Account.Orders, pending)
		checkoutGen, sessionGen = s.checkoutGen, s.sessionGen
		submitted = true
		return 0
	})
	if !submitted {
		return nil
	}

	start := time.Now()
	created, err := s.backends.Orders.CreateOrder(ctx, req)
	s.observe("checkout.place_order", start, err)

	if err != nil {
		s.update(func(st *State) dirty {
			st.Account.Orders = order.RemovePending(st.Account.Orders, pending.Pending)
			if checkoutGen == s.checkoutGen {
				st.Checkout = st.Checkout.Failed(err.Error())
			}
			return 0
		})
		s.log.WithError(err).Warn("place order failed")
		return err
	}

	created.Items = pending.Items
	s.update(func(st *State) dirty {
		if sessionGen == s.sessionGen {
			st.Account.Orders = order.Reconcile(st.Account.Orders, pending.Pending, created)
		} else {
			st.Account.Orders = order.RemovePending(st.Account.Orders, pending.Pending)
		}
		if checkoutGen == s.checkoutGen {
			st.Checkout = st.Checkout.Succeeded(created)
		}
		st.Cart = st.Cart.Subtract(pending.Items)
		return dirtyCart
	})
	s.log.WithField("order_id", created.ID).Info("order placed")
	return nil
}
