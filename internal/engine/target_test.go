package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/discounts/internal/domain"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) ProductIDsInCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	args := m.Called(ctx, categoryID)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func applyTo(targetType domain.TargetType, id *int64) domain.Target {
	return domain.Target{Type: targetType, TargetableID: id, Action: domain.ActionApplyTo}
}

// ============================================================================
// Coverage Tests
// ============================================================================

func TestResolver_Covers_NoTargetsCoversEverything(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())
	assert.True(t, r.Covers(context.Background(), &domain.Campaign{}, cartContext(5000)))
}

func TestResolver_Covers_ShopcartAndShipmentAlwaysCover(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())

	cart := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetShopcart, nil)}}
	shipment := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetShipment, int64Ptr(4))}}

	assert.True(t, r.Covers(context.Background(), cart, cartContext(5000)))
	assert.True(t, r.Covers(context.Background(), shipment, cartContext(5000)))
}

func TestResolver_Covers_ProductTarget(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())

	inCart := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetProduct, int64Ptr(1))}}
	notInCart := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetProduct, int64Ptr(42))}}
	allProducts := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetProduct, nil)}}

	assert.True(t, r.Covers(context.Background(), inCart, cartContext(5000)))
	assert.False(t, r.Covers(context.Background(), notInCart, cartContext(5000)))
	assert.True(t, r.Covers(context.Background(), allProducts, cartContext(5000)))
}

func TestResolver_Covers_CategoryMembership(t *testing.T) {
	// Product 1 belongs to categories {3, 7}; the campaign targets only
	// category 7 and the cart contains product 1.
	catalog := &mockCatalog{}
	catalog.On("ProductIDsInCategory", mock.Anything, int64(7)).Return([]int64{1, 33}, nil)
	r := NewResolver(catalog, testLogger())

	campaign := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetCategory, int64Ptr(7))}}
	assert.True(t, r.Covers(context.Background(), campaign, cartContext(5000)))
	catalog.AssertExpectations(t)
}

func TestResolver_Covers_CategoryWithoutMembers(t *testing.T) {
	catalog := &mockCatalog{}
	catalog.On("ProductIDsInCategory", mock.Anything, int64(7)).Return([]int64{40, 41}, nil)
	r := NewResolver(catalog, testLogger())

	campaign := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetCategory, int64Ptr(7))}}
	assert.False(t, r.Covers(context.Background(), campaign, cartContext(5000)))
}

func TestResolver_Covers_CategoryLookupFailureDegrades(t *testing.T) {
	catalog := &mockCatalog{}
	catalog.On("ProductIDsInCategory", mock.Anything, int64(7)).Return(nil, errors.New("catalog down"))
	r := NewResolver(catalog, testLogger())

	campaign := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetCategory, int64Ptr(7))}}
	assert.False(t, r.Covers(context.Background(), campaign, cartContext(5000)))
}

func TestResolver_Covers_AnyTargetSuffices(t *testing.T) {
	// First target misses, second hits: OR semantics across targets.
	r := NewResolver(&mockCatalog{}, testLogger())
	campaign := &domain.Campaign{Targets: []domain.Target{
		applyTo(domain.TargetProduct, int64Ptr(42)),
		applyTo(domain.TargetProduct, int64Ptr(2)),
	}}
	assert.True(t, r.Covers(context.Background(), campaign, cartContext(5000)))
}

func TestResolver_Covers_IgnoresRequiresAndExcludes(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())
	campaign := &domain.Campaign{Targets: []domain.Target{
		{Type: domain.TargetProduct, TargetableID: int64Ptr(42), Action: domain.ActionRequires},
	}}
	// Only apply_to targets are interpreted; none exist, so everything is covered.
	assert.True(t, r.Covers(context.Background(), campaign, cartContext(5000)))
}

// ============================================================================
// Eligible Item Tests
// ============================================================================

func TestResolver_EligibleItems_NoTargetsReturnsAll(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())
	dctx := cartContext(5000)
	assert.Equal(t, dctx.Items, r.EligibleItems(context.Background(), &domain.Campaign{}, dctx))
}

func TestResolver_EligibleItems_NullProductTargetReturnsAll(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())
	dctx := cartContext(5000)
	campaign := &domain.Campaign{Targets: []domain.Target{
		applyTo(domain.TargetProduct, int64Ptr(42)),
		applyTo(domain.TargetProduct, nil),
	}}
	assert.Equal(t, dctx.Items, r.EligibleItems(context.Background(), campaign, dctx))
}

func TestResolver_EligibleItems_DirectProductMatch(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())
	dctx := cartContext(5000)
	campaign := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetProduct, int64Ptr(2))}}

	items := r.EligibleItems(context.Background(), campaign, dctx)
	assert.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ProductID)
}

func TestResolver_EligibleItems_UnionOfProductAndCategory(t *testing.T) {
	catalog := &mockCatalog{}
	catalog.On("ProductIDsInCategory", mock.Anything, int64(7)).Return([]int64{2}, nil)
	r := NewResolver(catalog, testLogger())

	dctx := cartContext(5000)
	campaign := &domain.Campaign{Targets: []domain.Target{
		applyTo(domain.TargetProduct, int64Ptr(1)),
		applyTo(domain.TargetCategory, int64Ptr(7)),
	}}

	items := r.EligibleItems(context.Background(), campaign, dctx)
	assert.Len(t, items, 2)
}

func TestResolver_EligibleItems_CartTargetContributesNoItems(t *testing.T) {
	r := NewResolver(&mockCatalog{}, testLogger())
	campaign := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetShopcart, nil)}}
	assert.Empty(t, r.EligibleItems(context.Background(), campaign, cartContext(5000)))
}

func TestResolver_EligibleItems_CategoryLookupFailureMeansNoItems(t *testing.T) {
	catalog := &mockCatalog{}
	catalog.On("ProductIDsInCategory", mock.Anything, int64(7)).Return(nil, errors.New("catalog down"))
	r := NewResolver(catalog, testLogger())

	campaign := &domain.Campaign{Targets: []domain.Target{applyTo(domain.TargetCategory, int64Ptr(7))}}
	assert.Empty(t, r.EligibleItems(context.Background(), campaign, cartContext(5000)))
}
