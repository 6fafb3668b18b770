package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/discounts/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

type mockOrderHistory struct {
	mock.Mock
}

func (m *mockOrderHistory) HasPriorOrders(ctx context.Context, customerID, customerType string) (bool, error) {
	args := m.Called(ctx, customerID, customerType)
	return args.Bool(0), args.Error(1)
}

func newTestMatcher(history OrderHistory) *Matcher {
	if history == nil {
		history = &mockOrderHistory{}
	}
	return NewMatcher(history, testLogger())
}

func cartContext(total int64) *domain.DiscountContext {
	return &domain.DiscountContext{
		CartTotal: total,
		Items: []domain.LineItem{
			{ProductID: 1, Quantity: 2, UnitPrice: total / 4, LineTotal: total / 2},
			{ProductID: 2, Quantity: 1, UnitPrice: total / 2, LineTotal: total / 2},
		},
	}
}

// ============================================================================
// min_cart_value Tests
// ============================================================================

func TestMatcher_MinCartValue_Operators(t *testing.T) {
	m := newTestMatcher(nil)

	tests := []struct {
		name     string
		operator domain.Operator
		amount   int64
		total    int64
		want     bool
	}{
		{"gte met at boundary", domain.OpGTE, 5000, 5000, true},
		{"gte not met", domain.OpGTE, 5000, 4000, false},
		{"gt needs strictly more", domain.OpGT, 5000, 5000, false},
		{"lte met", domain.OpLTE, 5000, 5000, true},
		{"lt not met at boundary", domain.OpLT, 5000, 5000, false},
		{"eq met", domain.OpEQ, 5000, 5000, true},
		{"neq met", domain.OpNEQ, 5000, 4000, true},
		{"empty operator defaults to gte", "", 5000, 6000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			campaign := &domain.Campaign{Conditions: []domain.Condition{{
				Type:     domain.ConditionMinCartValue,
				Operator: tt.operator,
				Value:    domain.ConditionValue{Amount: int64Ptr(tt.amount)},
			}}}
			assert.Equal(t, tt.want, m.Matches(context.Background(), campaign, cartContext(tt.total)))
		})
	}
}

func TestMatcher_MinCartValue_MissingAmount(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{{
		Type:     domain.ConditionMinCartValue,
		Operator: domain.OpGTE,
	}}}
	assert.False(t, m.Matches(context.Background(), campaign, cartContext(10000)))
}

// ============================================================================
// min_quantity Tests
// ============================================================================

func TestMatcher_MinQuantity(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{{
		Type:     domain.ConditionMinQuantity,
		Operator: domain.OpGTE,
		Value:    domain.ConditionValue{Quantity: intPtr(3)},
	}}}

	// cartContext carries quantities 2 + 1 = 3.
	assert.True(t, m.Matches(context.Background(), campaign, cartContext(8000)))

	small := &domain.DiscountContext{Items: []domain.LineItem{{ProductID: 1, Quantity: 2}}}
	assert.False(t, m.Matches(context.Background(), campaign, small))
}

// ============================================================================
// customer_segment Tests
// ============================================================================

func TestMatcher_CustomerSegment_Membership(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{{
		Type:  domain.ConditionCustomerSegment,
		Value: domain.ConditionValue{CustomerIDs: []string{"cust-1", "cust-2"}},
	}}}

	member := cartContext(5000)
	member.CustomerID = "cust-2"
	assert.True(t, m.Matches(context.Background(), campaign, member))

	outsider := cartContext(5000)
	outsider.CustomerID = "cust-9"
	assert.False(t, m.Matches(context.Background(), campaign, outsider))
}

func TestMatcher_CustomerSegment_GuestNeverMatches(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{{
		Type:  domain.ConditionCustomerSegment,
		Value: domain.ConditionValue{CustomerIDs: []string{"cust-1"}},
	}}}
	assert.False(t, m.Matches(context.Background(), campaign, cartContext(5000)))
}

// ============================================================================
// has_product Tests
// ============================================================================

func TestMatcher_HasProduct(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{{
		Type:  domain.ConditionHasProduct,
		Value: domain.ConditionValue{ProductIDs: []int64{2, 7}},
	}}}
	assert.True(t, m.Matches(context.Background(), campaign, cartContext(5000)))

	campaign.Conditions[0].Value.ProductIDs = []int64{7, 8}
	assert.False(t, m.Matches(context.Background(), campaign, cartContext(5000)))
}

// ============================================================================
// first_order Tests
// ============================================================================

func TestMatcher_FirstOrder_NoPriorOrders(t *testing.T) {
	history := &mockOrderHistory{}
	history.On("HasPriorOrders", mock.Anything, "cust-1", "customer").Return(false, nil)
	m := newTestMatcher(history)

	campaign := &domain.Campaign{Conditions: []domain.Condition{{Type: domain.ConditionFirstOrder}}}
	dctx := cartContext(5000)
	dctx.CustomerID = "cust-1"
	dctx.CustomerType = "customer"

	assert.True(t, m.Matches(context.Background(), campaign, dctx))
	history.AssertExpectations(t)
}

func TestMatcher_FirstOrder_WithPriorOrders(t *testing.T) {
	history := &mockOrderHistory{}
	history.On("HasPriorOrders", mock.Anything, "cust-1", "").Return(true, nil)
	m := newTestMatcher(history)

	campaign := &domain.Campaign{Conditions: []domain.Condition{{Type: domain.ConditionFirstOrder}}}
	dctx := cartContext(5000)
	dctx.CustomerID = "cust-1"

	assert.False(t, m.Matches(context.Background(), campaign, dctx))
}

func TestMatcher_FirstOrder_GuestFails(t *testing.T) {
	history := &mockOrderHistory{}
	m := newTestMatcher(history)

	campaign := &domain.Campaign{Conditions: []domain.Condition{{Type: domain.ConditionFirstOrder}}}
	assert.False(t, m.Matches(context.Background(), campaign, cartContext(5000)))
	history.AssertNotCalled(t, "HasPriorOrders")
}

func TestMatcher_FirstOrder_LookupErrorFailsClosed(t *testing.T) {
	history := &mockOrderHistory{}
	history.On("HasPriorOrders", mock.Anything, "cust-1", "").Return(false, errors.New("order service down"))
	m := newTestMatcher(history)

	campaign := &domain.Campaign{Conditions: []domain.Condition{{Type: domain.ConditionFirstOrder}}}
	dctx := cartContext(5000)
	dctx.CustomerID = "cust-1"

	assert.False(t, m.Matches(context.Background(), campaign, dctx))
}

// ============================================================================
// Combination and Fail-Closed Tests
// ============================================================================

func TestMatcher_EmptyConditionSetPasses(t *testing.T) {
	m := newTestMatcher(nil)
	assert.True(t, m.Matches(context.Background(), &domain.Campaign{}, cartContext(100)))
}

func TestMatcher_UnknownConditionTypeFailsClosed(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{{Type: "loyalty_tier"}}}
	assert.False(t, m.Matches(context.Background(), campaign, cartContext(10000)))
}

func TestMatcher_DateRangeIsStructuralNoOp(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{{Type: domain.ConditionDateRange}}}
	assert.True(t, m.Matches(context.Background(), campaign, cartContext(100)))
}

func TestMatcher_AndCombination(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{
		{
			Type: domain.ConditionMinCartValue, Operator: domain.OpGTE,
			Value: domain.ConditionValue{Amount: int64Ptr(5000)}, Priority: 1,
		},
		{
			Type: domain.ConditionHasProduct,
			Value: domain.ConditionValue{ProductIDs: []int64{99}}, Priority: 2,
		},
	}}
	// First passes, second fails, AND combination fails overall.
	assert.False(t, m.Matches(context.Background(), campaign, cartContext(8000)))
}

func TestMatcher_OrCombinationRescuesFailure(t *testing.T) {
	m := newTestMatcher(nil)
	campaign := &domain.Campaign{Conditions: []domain.Condition{
		{
			Type: domain.ConditionMinCartValue, Operator: domain.OpGTE,
			Value: domain.ConditionValue{Amount: int64Ptr(99999)}, Priority: 1,
		},
		{
			Type: domain.ConditionHasProduct, LogicOperator: domain.LogicOr,
			Value: domain.ConditionValue{ProductIDs: []int64{1}}, Priority: 2,
		},
	}}
	// First fails, second ORs a pass back in.
	assert.True(t, m.Matches(context.Background(), campaign, cartContext(8000)))
}

func TestMatcher_ConditionsEvaluateInAscendingPriority(t *testing.T) {
	m := newTestMatcher(nil)
	// Declared out of order: the OR condition has priority 1 so it runs
	// first, then the failing AND condition at priority 2 sinks the result.
	campaign := &domain.Campaign{Conditions: []domain.Condition{
		{
			Type: domain.ConditionHasProduct, LogicOperator: domain.LogicOr,
			Value: domain.ConditionValue{ProductIDs: []int64{1}}, Priority: 1,
		},
		{
			Type: domain.ConditionMinCartValue, Operator: domain.OpGTE,
			Value: domain.ConditionValue{Amount: int64Ptr(99999)}, Priority: 2,
		},
	}}
	assert.False(t, m.Matches(context.Background(), campaign, cartContext(8000)))
}
