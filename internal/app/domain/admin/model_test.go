package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"  Home & Garden ": "home-garden",
		"Lamps":            "lamps",
		"--Über Deals--":   "ber-deals",
		"!!!":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestGroupByCategory(t *testing.T) {
	lighting := &Category{ID: "c1", Name: "Lighting"}
	groups := GroupByCategory([]Product{
		{ID: "p1", Category: lighting},
		{ID: "p2"},
		{ID: "p3", Category: lighting},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "Lighting", groups[0].Category)
	assert.Len(t, groups[0].Products, 2)
	assert.Equal(t, Uncategorized, groups[1].Category)
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, ProductDraft, Product{Status: ProductActive}.NextStatus())
	assert.Equal(t, ProductActive, Product{Status: ProductDraft}.NextStatus())
	assert.Equal(t, ProductActive, Product{Status: "archived"}.NextStatus())
}

func TestRevenueHelpers(t *testing.T) {
	orders := []OrderSummary{
		{Status: "pending", TotalCents: 1000},
		{Status: "processing", TotalCents: 2500},
		{Status: "fulfilled", TotalCents: 4000},
	}
	assert.Equal(t, int64(7500), TotalRevenue(orders))
	assert.Equal(t, 2, OpenOrders(orders))
}

func TestSummarize(t *testing.T) {
	day := time.Date(2024, 6, 2, 23, 0, 0, 0, time.UTC)
	byStatus, daily, total := Summarize([]RevenueRow{
		{Status: "fulfilled", TotalCents: 500, PlacedAt: day},
		{Status: "fulfilled", TotalCents: 300, PlacedAt: day.Add(2 * time.Hour)},
		{Status: "", TotalCents: 200, PlacedAt: day.Add(-48 * time.Hour)},
	})

	assert.Equal(t, map[string]int64{"fulfilled": 800, "unknown": 200}, byStatus)
	assert.Equal(t, []DailySales{
		{Date: "2024-05-31", Total: 200},
		{Date: "2024-06-02", Total: 500},
		{Date: "2024-06-03", Total: 300},
	}, daily)
	assert.Equal(t, int64(1000), total)
}
