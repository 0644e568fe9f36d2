package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func product() catalog.Product {
	large := d("25.50")
	return catalog.Product{
		ID:    "tee",
		Name:  "Tee",
		Price: d("20"),
		Variants: []catalog.Variant{
			{ID: "l", Name: "Large", Price: &large},
			{ID: "s", Name: "Small"},
		},
	}
}

func TestAdd_MergesSameKey(t *testing.T) {
	c := Cart{}.Add(product(), 2, "").Add(product(), 3, "")

	require.Len(t, c.Items, 1)
	assert.Equal(t, "tee", c.Items[0].ID)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.True(t, c.Open, "adding opens the cart")
	assert.Equal(t, 5, c.Count())
	assert.True(t, c.Subtotal().Equal(d("100")))
}

func TestAdd_VariantPricingAndKeys(t *testing.T) {
	c := Cart{}.
		Add(product(), 1, "l").
		Add(product(), 1, "s").
		Add(product(), 1, "ghost").
		Add(product(), 0, "")

	require.Len(t, c.Items, 4)
	assert.Equal(t, "tee:l", c.Items[0].ID)
	assert.True(t, c.Items[0].UnitPrice.Equal(d("25.50")))
	assert.Equal(t, "tee:s", c.Items[1].ID)
	assert.True(t, c.Items[1].UnitPrice.Equal(d("20")), "variant without override uses base price")
	assert.True(t, c.Items[2].UnitPrice.Equal(d("20")), "unknown variant uses base price")
	assert.Equal(t, 1, c.Items[3].Quantity, "zero quantity adds one unit")
}

func TestSetQuantity_ZeroRemoves(t *testing.T) {
	c := Cart{}.Add(product(), 2, "").Add(product(), 1, "l")

	c = c.SetQuantity("tee", 0)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "tee:l", c.Items[0].ID)
	assert.Equal(t, 1, c.Count())

	c = c.SetQuantity("tee:l", 4)
	assert.Equal(t, 4, c.Count())
	assert.True(t, c.Subtotal().Equal(d("102")))

	c = c.SetQuantity("tee:l", -1)
	assert.True(t, c.Empty())
}

func TestRemoveClearAndVisibility(t *testing.T) {
	c := Cart{}.Add(product(), 1, "").Add(product(), 1, "l")
	c = c.Remove("tee")
	assert.Equal(t, []string{"tee:l"}, []string{c.Items[0].ID})

	c = c.WithOpen(false)
	assert.False(t, c.Open)
	assert.Equal(t, 1, c.Count(), "visibility does not touch items")

	c = c.Clear()
	assert.True(t, c.Empty())
	assert.True(t, c.Subtotal().IsZero())
}

func TestSubtract_KeepsLinesAddedLater(t *testing.T) {
	submitted := Cart{}.Add(product(), 2, "").Add(product(), 1, "l")
	c := submitted.Add(product(), 1, "").Add(product(), 3, "s").WithOpen(false)

	c = c.Subtract(submitted.Snapshot())
	require.Len(t, c.Items, 2)
	assert.Equal(t, "tee", c.Items[0].ID)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, "tee:s", c.Items[1].ID)
	assert.Equal(t, 3, c.Items[1].Quantity)
	assert.False(t, c.Open)

	assert.True(t, submitted.Subtract(submitted.Snapshot()).Empty())
}

func TestOperationsDoNotMutateReceiver(t *testing.T) {
	original := Cart{}.Add(product(), 2, "")
	_ = original.Add(product(), 3, "")
	_ = original.SetQuantity("tee", 9)

	assert.Equal(t, 2, original.Items[0].Quantity)
}

func TestSubtotalAlwaysMatchesLines(t *testing.T) {
	c := Cart{}
	steps := []func(Cart) Cart{
		func(c Cart) Cart { return c.Add(product(), 3, "") },
		func(c Cart) Cart { return c.Add(product(), 2, "l") },
		func(c Cart) Cart { return c.SetQuantity("tee", 1) },
		func(c Cart) Cart { return c.Remove("tee:l") },
		func(c Cart) Cart { return c.Add(product(), 4, "s") },
	}
	for _, step := range steps {
		c = step(c)
		want := decimal.Zero
		for _, it := range c.Items {
			want = want.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		assert.True(t, c.Subtotal().Equal(want), "subtotal %s want %s", c.Subtotal(), want)
	}
}
