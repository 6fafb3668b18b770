package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func twoItemContext() *DiscountContext {
	return &DiscountContext{
		CartTotal: 7000,
		Items: []LineItem{
			{ProductID: 1, Quantity: 2, UnitPrice: 2000, LineTotal: 4000},
			{ProductID: 2, Quantity: 3, UnitPrice: 1000, LineTotal: 3000},
		},
	}
}

func TestDiscountContext_TotalQuantity(t *testing.T) {
	assert.Equal(t, 5, twoItemContext().TotalQuantity())
	assert.Equal(t, 0, (&DiscountContext{}).TotalQuantity())
}

func TestDiscountContext_HasProduct(t *testing.T) {
	ctx := twoItemContext()
	assert.True(t, ctx.HasProduct(1))
	assert.False(t, ctx.HasProduct(99))
}

func TestDiscountContext_HasAnyProduct(t *testing.T) {
	ctx := twoItemContext()
	assert.True(t, ctx.HasAnyProduct([]int64{99, 2}))
	assert.False(t, ctx.HasAnyProduct([]int64{98, 99}))
	assert.False(t, ctx.HasAnyProduct(nil))
}

func TestDiscountContext_IsGuestAndPreOrder(t *testing.T) {
	ctx := twoItemContext()
	assert.True(t, ctx.IsGuest())
	assert.True(t, ctx.IsPreOrder())

	ctx.CustomerID = "cust-1"
	ctx.Order = &OrderableRef{Type: "order", ID: "ord-1"}
	assert.False(t, ctx.IsGuest())
	assert.False(t, ctx.IsPreOrder())
}

// ============================================================================
// Shipping Cost Extraction Tests
// ============================================================================

func TestDiscountContext_ShippingCost_Absent(t *testing.T) {
	assert.Equal(t, int64(0), twoItemContext().ShippingCost())
}

func TestDiscountContext_ShippingCost_Float64(t *testing.T) {
	// JSON decoding delivers numbers as float64.
	ctx := twoItemContext()
	ctx.RequestData = map[string]any{RequestDataShippingCost: float64(2000)}
	assert.Equal(t, int64(2000), ctx.ShippingCost())
}

func TestDiscountContext_ShippingCost_IntAndInt64(t *testing.T) {
	ctx := twoItemContext()
	ctx.RequestData = map[string]any{RequestDataShippingCost: 1500}
	assert.Equal(t, int64(1500), ctx.ShippingCost())

	ctx.RequestData = map[string]any{RequestDataShippingCost: int64(1200)}
	assert.Equal(t, int64(1200), ctx.ShippingCost())
}

func TestDiscountContext_ShippingCost_JSONNumber(t *testing.T) {
	ctx := twoItemContext()
	ctx.RequestData = map[string]any{RequestDataShippingCost: json.Number("900")}
	assert.Equal(t, int64(900), ctx.ShippingCost())
}

func TestDiscountContext_ShippingCost_NonNumeric(t *testing.T) {
	ctx := twoItemContext()
	ctx.RequestData = map[string]any{RequestDataShippingCost: "free"}
	assert.Equal(t, int64(0), ctx.ShippingCost())
}

// ============================================================================
// Context Copy Tests
// ============================================================================

func TestDiscountContext_WithItemPrices_DoesNotMutateOriginal(t *testing.T) {
	ctx := twoItemContext()
	adjusted := ctx.WithItemPrices(map[int64]int64{1: 3500})

	assert.Equal(t, int64(3500), adjusted.Items[0].UnitPrice)
	assert.Equal(t, int64(3500), adjusted.Items[0].LineTotal)
	// Item without a remaining price entry keeps its amounts.
	assert.Equal(t, int64(3000), adjusted.Items[1].LineTotal)
	// Original untouched.
	assert.Equal(t, int64(4000), ctx.Items[0].LineTotal)
	assert.Equal(t, int64(2000), ctx.Items[0].UnitPrice)
}

func TestDiscountContext_WithCartTotal(t *testing.T) {
	ctx := twoItemContext()
	adjusted := ctx.WithCartTotal(5000)
	assert.Equal(t, int64(5000), adjusted.CartTotal)
	assert.Equal(t, int64(7000), ctx.CartTotal)
}
