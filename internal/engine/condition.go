package engine

import (
	"context"
	"log/slog"

	"github.com/utafrali/discounts/internal/domain"
)

// OrderHistory answers whether a customer has placed orders before. Backed
// by the order service in production; mocked in tests.
type OrderHistory interface {
	HasPriorOrders(ctx context.Context, customerID, customerType string) (bool, error)
}

// ConditionEvaluator evaluates a single condition predicate against a
// context. Implementations must not mutate the context.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool
}

// EvaluatorFunc adapts a function to the ConditionEvaluator interface.
type EvaluatorFunc func(ctx context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool

// Evaluate implements ConditionEvaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool {
	return f(ctx, cond, dctx)
}

// Matcher dispatches conditions to per-type evaluators and folds a
// campaign's condition set into a single verdict. Unknown condition types
// evaluate to false so one malformed campaign cannot poison the evaluation
// pass.
type Matcher struct {
	evaluators map[domain.ConditionType]ConditionEvaluator
	logger     *slog.Logger
}

// NewMatcher creates a Matcher with the built-in evaluators registered.
func NewMatcher(history OrderHistory, logger *slog.Logger) *Matcher {
	m := &Matcher{
		evaluators: make(map[domain.ConditionType]ConditionEvaluator),
		logger:     logger,
	}

	m.Register(domain.ConditionMinCartValue, EvaluatorFunc(evaluateMinCartValue))
	m.Register(domain.ConditionMinQuantity, EvaluatorFunc(evaluateMinQuantity))
	m.Register(domain.ConditionCustomerSegment, EvaluatorFunc(evaluateCustomerSegment))
	m.Register(domain.ConditionHasProduct, EvaluatorFunc(evaluateHasProduct))
	m.Register(domain.ConditionFirstOrder, &firstOrderEvaluator{history: history, logger: logger})
	// date_range carries no comparison of its own; the campaign start/end
	// window already gates eligibility. It is registered as always passing
	// on purpose: left to the unknown-type default it would fail closed and
	// an AND-combined condition set would suppress any campaign carrying it.
	m.Register(domain.ConditionDateRange, EvaluatorFunc(
		func(context.Context, domain.Condition, *domain.DiscountContext) bool { return true },
	))

	return m
}

// Register adds or replaces the evaluator for a condition type.
func (m *Matcher) Register(t domain.ConditionType, e ConditionEvaluator) {
	m.evaluators[t] = e
}

// Matches folds the campaign's conditions left to right in ascending
// priority order: the running result starts at true and each condition
// combines into it with its own logic operator (or = logical OR, anything
// else including empty = logical AND). An empty condition set passes.
func (m *Matcher) Matches(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) bool {
	conditions := sortedByPriority(campaign.Conditions)

	result := true
	for _, cond := range conditions {
		passed := m.evaluate(ctx, cond, dctx)
		if cond.LogicOperator == domain.LogicOr {
			result = result || passed
		} else {
			result = result && passed
		}
	}
	return result
}

// evaluate dispatches one condition. Unknown types fail closed.
func (m *Matcher) evaluate(ctx context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool {
	e, ok := m.evaluators[cond.Type]
	if !ok {
		m.logger.WarnContext(ctx, "unknown condition type, treating as not matching",
			slog.String("condition_type", string(cond.Type)),
			slog.String("campaign_id", cond.CampaignID),
		)
		return false
	}
	return e.Evaluate(ctx, cond, dctx)
}

// sortedByPriority returns the conditions in ascending priority order
// without mutating the input. Insertion sort keeps equal-priority
// conditions in their original order; condition sets are tiny.
func sortedByPriority(conditions []domain.Condition) []domain.Condition {
	out := make([]domain.Condition, len(conditions))
	copy(out, conditions)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority < out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// compare applies a comparison operator to two integer values. in/not_in
// treat the expected value as a (here single-element) set with the actual
// value as the probe. An empty operator defaults to >=, the common case for
// threshold conditions.
func compare(actual, expected int64, op domain.Operator) bool {
	switch op {
	case domain.OpGTE, "":
		return actual >= expected
	case domain.OpGT:
		return actual > expected
	case domain.OpLTE:
		return actual <= expected
	case domain.OpLT:
		return actual < expected
	case domain.OpEQ, domain.OpIn:
		return actual == expected
	case domain.OpNEQ, domain.OpNotIn:
		return actual != expected
	default:
		return false
	}
}

func evaluateMinCartValue(_ context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool {
	if cond.Value.Amount == nil {
		return false
	}
	return compare(dctx.CartTotal, *cond.Value.Amount, cond.Operator)
}

func evaluateMinQuantity(_ context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool {
	if cond.Value.Quantity == nil {
		return false
	}
	return compare(int64(dctx.TotalQuantity()), int64(*cond.Value.Quantity), cond.Operator)
}

// evaluateCustomerSegment is a pure membership test; the operator is
// ignored. Guests never belong to a segment.
func evaluateCustomerSegment(_ context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool {
	if dctx.IsGuest() {
		return false
	}
	for _, id := range cond.Value.CustomerIDs {
		if id == dctx.CustomerID {
			return true
		}
	}
	return false
}

func evaluateHasProduct(_ context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool {
	return dctx.HasAnyProduct(cond.Value.ProductIDs)
}

// firstOrderEvaluator passes only for known customers with zero prior
// orders. Lookup failures fail closed: the campaign simply does not apply.
type firstOrderEvaluator struct {
	history OrderHistory
	logger  *slog.Logger
}

func (e *firstOrderEvaluator) Evaluate(ctx context.Context, cond domain.Condition, dctx *domain.DiscountContext) bool {
	if dctx.IsGuest() {
		return false
	}
	hasOrders, err := e.history.HasPriorOrders(ctx, dctx.CustomerID, dctx.CustomerType)
	if err != nil {
		e.logger.WarnContext(ctx, "order history lookup failed, treating first_order as not matching",
			slog.String("customer_id", dctx.CustomerID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return !hasOrders
}
