// Package checkout holds the checkout flow state and its pure transitions.
// Order submission lives in the store because it touches cart and account state.
package checkout

import (
	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

// Step is a checkout page. StepCart is the pre-state before checkout starts.
type Step string

const (
	StepCart         Step = "cart"
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepReview       Step = "review"
	StepConfirmation Step = "confirmation"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepCart, StepShipping, StepPayment, StepReview, StepConfirmation:
		return true
	}
	return false
}

// Status tracks order submission.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Payment methods.
const (
	MethodCard     = "card"
	MethodPayPal   = "paypal"
	MethodApplePay = "apple-pay"
)

// Shipping is the delivery address.
type Shipping struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Payment holds the payment form. Card fields are never sent to the backend.
type Payment struct {
	Method     string `json:"method"`
	Cardholder string `json:"cardholder,omitempty"`
	CardNumber string `json:"cardNumber,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	CVC        string `json:"cvc,omitempty"`
}

// ShippingPatch carries the fields to overwrite; nil fields are kept.
type ShippingPatch struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Address1   *string `json:"address1,omitempty"`
	Address2   *string `json:"address2,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	PostalCode *string `json:"postalCode,omitempty"`
	Country    *string `json:"country,omitempty"`
}

// PaymentPatch carries the fields to overwrite; nil fields are kept.
type PaymentPatch struct {
	Method     *string `json:"method,omitempty"`
	Cardholder *string `json:"cardholder,omitempty"`
	CardNumber *string `json:"cardNumber,omitempty"`
	Expiry     *string `json:"expiry,omitempty"`
	CVC        *string `json:"cvc,omitempty"`
}

// State is the checkout flow.
type State struct {
	Step      Step           `json:"step"`
	Shipping  Shipping       `json:"shipping"`
	Payment   Payment        `json:"payment"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	LastOrder *order.Summary `json:"last_order,omitempty"`
}

// Initial returns the state a fresh or reset checkout starts in.
func Initial() State {
	return State{
		Step:    StepShipping,
		Payment: Payment{Method: MethodCard},
		Status:  StatusIdle,
	}
}

// GoTo moves to step without validation. Forms validate before moving forward.
func (s State) GoTo(step Step) State {
	s.Step = step
	return s
}

// MergeShipping overwrites the non-nil patch fields.
func (s State) MergeShipping(p ShippingPatch) State {
	set(&s.Shipping.Name, p.Name)
	set(&s.Shipping.Email, p.Email)
	set(&s.Shipping.Phone, p.Phone)
	set(&s.Shipping.Address1, p.Address1)
	set(&s.Shipping.Address2, p.Address2)
	set(&s.Shipping.City, p.City)
	set(&s.Shipping.State, p.State)
	set(&s.Shipping.PostalCode, p.PostalCode)
	set(&s.Shipping.Country, p.Country)
	return s
}

// MergePayment overwrites the non-nil patch fields.
func (s State) MergePayment(p PaymentPatch) State {
	set(&s.Payment.Method, p.Method)
	set(&s.Payment.Cardholder, p.Cardholder)
	set(&s.Payment.CardNumber, p.CardNumber)
	set(&s.Payment.Expiry, p.Expiry)
	set(&s.Payment.CVC, p.CVC)
	return s
}

// Submitting marks an attempt in flight with its optimistic order. Any previous
// error is cleared.
func (s State) Submitting(pending order.Summary) State {
	s.Status = StatusSubmitting
	s.Error = ""
	s.LastOrder = &pending
	return s
}

// Failed records the single error slot.
func (s State) Failed(msg string) State {
	s.Status = StatusError
	s.Error = msg
	return s
}

// Succeeded records the persisted order and moves to confirmation.
func (s State) Succeeded(persisted order.Summary) State {
	s.Status = StatusSuccess
	s.Error = ""
	s.Step = StepConfirmation
	s.LastOrder = &persisted
	return s
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
