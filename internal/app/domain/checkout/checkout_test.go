package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

func str(s string) *string { return &s }

func TestInitial(t *testing.T) {
	s := Initial()
	assert.Equal(t, StepShipping, s.Step)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Empty(t, s.Error)
	assert.Nil(t, s.LastOrder)
	assert.Equal(t, Shipping{}, s.Shipping)
}

func TestGoToIsUnconditional(t *testing.T) {
	s := Initial().GoTo(StepReview)
	assert.Equal(t, StepReview, s.Step)
	s = s.GoTo(StepShipping)
	assert.Equal(t, StepShipping, s.Step)
	s = s.GoTo(StepConfirmation)
	assert.Equal(t, StepConfirmation, s.Step)
}

func TestMergeShippingAndPayment(t *testing.T) {
	s := Initial().
		MergeShipping(ShippingPatch{Name: str("Ada"), City: str("London")}).
		MergeShipping(ShippingPatch{City: str("Paris"), Email: str("not-an-email")})

	assert.Equal(t, "Ada", s.Shipping.Name)
	assert.Equal(t, "Paris", s.Shipping.City)
	assert.Equal(t, "not-an-email", s.Shipping.Email, "no format validation")

	s = s.MergePayment(PaymentPatch{Method: str(MethodPayPal)})
	assert.Equal(t, MethodPayPal, s.Payment.Method)
	assert.Empty(t, s.Payment.CardNumber)
}

func TestSubmissionTransitions(t *testing.T) {
	pending := order.Optimistic(nil, decimal.NewFromInt(60), testNow)
	s := Initial().Failed("previous").Submitting(pending)

	assert.Equal(t, StatusSubmitting, s.Status)
	assert.Empty(t, s.Error, "a new attempt clears the previous error")
	require.NotNil(t, s.LastOrder)
	assert.True(t, s.LastOrder.IsPending())

	failed := s.Failed("insufficient stock")
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, "insufficient stock", failed.Error)
	assert.Equal(t, StepShipping, failed.Step)

	ok := s.Succeeded(order.Summary{ID: "ord_1"})
	assert.Equal(t, StatusSuccess, ok.Status)
	assert.Equal(t, StepConfirmation, ok.Step)
	assert.Equal(t, "ord_1", ok.LastOrder.ID)
}

func TestStepValid(t *testing.T) {
	assert.True(t, StepPayment.Valid())
	assert.False(t, Step("billing").Valid())
}
