package domain

import (
	"fmt"
	"time"
)

// DiscountType identifies the calculation strategy of a campaign.
type DiscountType string

// Built-in discount types. The applicator registry is keyed by these values;
// additional types can be registered at startup without touching the domain.
const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
	DiscountBogo        DiscountType = "bogo"
)

// ValidDiscountTypes returns the set of discount types accepted at the boundary.
func ValidDiscountTypes() []DiscountType {
	return []DiscountType{DiscountPercentage, DiscountFixedAmount, DiscountBogo}
}

// IsValidDiscountType checks whether the given string is an accepted discount type.
func IsValidDiscountType(t string) bool {
	for _, v := range ValidDiscountTypes() {
		if string(v) == t {
			return true
		}
	}
	return false
}

// ConditionType identifies the predicate a condition evaluates.
type ConditionType string

// Built-in condition types. Unknown types evaluate to false (fail closed).
const (
	ConditionMinCartValue    ConditionType = "min_cart_value"
	ConditionMinQuantity     ConditionType = "min_quantity"
	ConditionCustomerSegment ConditionType = "customer_segment"
	ConditionHasProduct      ConditionType = "has_product"
	ConditionFirstOrder      ConditionType = "first_order"
	ConditionDateRange       ConditionType = "date_range"
)

// Operator is the comparison operator of a condition. Empty for conditions
// that ignore comparison (e.g. first_order).
type Operator string

// Comparison operators.
const (
	OpGTE   Operator = ">="
	OpGT    Operator = ">"
	OpLTE   Operator = "<="
	OpLT    Operator = "<"
	OpEQ    Operator = "=="
	OpNEQ   Operator = "!="
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// LogicOperator governs how a condition's result combines with the
// accumulated result of the preceding conditions. Empty means AND.
type LogicOperator string

const (
	LogicAnd LogicOperator = "and"
	LogicOr  LogicOperator = "or"
)

// TargetType identifies what kind of thing a target names.
type TargetType string

const (
	TargetProduct  TargetType = "product"
	TargetCategory TargetType = "category"
	TargetShipment TargetType = "shipment"
	TargetShopcart TargetType = "shopcart"
)

// TargetAction describes how a target relates to its campaign. Only
// apply_to is interpreted during evaluation; requires and excludes are
// stored and returned for forward compatibility.
type TargetAction string

const (
	ActionApplyTo  TargetAction = "apply_to"
	ActionRequires TargetAction = "requires"
	ActionExcludes TargetAction = "excludes"
)

// Scope selects which discount tier an evaluation pass concerns.
type Scope string

const (
	ScopeProducts Scope = "products"
	ScopeCart     Scope = "cart"
	ScopeShipping Scope = "shipping"
	ScopeAll      Scope = "all"
)

// Campaign is a configured discount offer with eligibility rules and a value.
// DiscountValue is percentage points for percentage campaigns and cents for
// fixed-amount campaigns. Higher priority campaigns are evaluated first.
type Campaign struct {
	ID                 string         `json:"id"`
	Code               *string        `json:"code,omitempty"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	DiscountType       DiscountType   `json:"discount_type"`
	DiscountValue      int64          `json:"discount_value"`
	StartDate          time.Time      `json:"start_date"`
	EndDate            time.Time      `json:"end_date"`
	IsActive           bool           `json:"is_active"`
	Priority           int            `json:"priority"`
	IsStackable        bool           `json:"is_stackable"`
	MaxUsesTotal       *int           `json:"max_uses_total,omitempty"`
	MaxUsesPerCustomer *int           `json:"max_uses_per_customer,omitempty"`
	CurrentUses        int            `json:"current_uses"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Conditions         []Condition    `json:"conditions,omitempty"`
	Targets            []Target       `json:"targets,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Condition is a predicate that must hold for its campaign to apply.
// Conditions evaluate in ascending Priority order.
type Condition struct {
	ID            int64          `json:"id"`
	CampaignID    string         `json:"campaign_id"`
	Type          ConditionType  `json:"condition_type"`
	Operator      Operator       `json:"operator,omitempty"`
	Value         ConditionValue `json:"value"`
	LogicOperator LogicOperator  `json:"logic_operator,omitempty"`
	Priority      int            `json:"priority"`
}

// ConditionValue is the structured parameter bag of a condition. Which fields
// are meaningful depends on the condition type.
type ConditionValue struct {
	Amount      *int64   `json:"amount,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
	CustomerIDs []string `json:"customer_ids,omitempty"`
	ProductIDs  []int64  `json:"product_ids,omitempty"`
}

// Target names what a campaign applies to. A nil TargetableID means "all
// instances of the type": a product target with nil id covers every product,
// and a shopcart target with nil id marks the campaign as a cart-total
// discount.
type Target struct {
	ID           int64          `json:"id"`
	CampaignID   string         `json:"campaign_id"`
	Type         TargetType     `json:"targetable_type"`
	TargetableID *int64         `json:"targetable_id,omitempty"`
	Action       TargetAction   `json:"target_action"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ApplyToTargets returns the targets whose action is apply_to, the only
// action interpreted during evaluation.
func (c *Campaign) ApplyToTargets() []Target {
	var out []Target
	for _, t := range c.Targets {
		if t.Action == ActionApplyTo {
			out = append(out, t)
		}
	}
	return out
}

// IsCartLevel reports whether the campaign discounts the aggregate cart total
// rather than individual items: it has an apply_to shopcart target with no id.
func (c *Campaign) IsCartLevel() bool {
	for _, t := range c.ApplyToTargets() {
		if t.Type == TargetShopcart && t.TargetableID == nil {
			return true
		}
	}
	return false
}

// IsShippingScoped reports whether the campaign targets shipping: any
// apply_to shipment target, with or without an id.
func (c *Campaign) IsShippingScoped() bool {
	for _, t := range c.ApplyToTargets() {
		if t.Type == TargetShipment {
			return true
		}
	}
	return false
}

// MatchesScope reports whether the campaign belongs to the requested
// evaluation scope. A campaign is cart-level or shipping-scoped per the
// helpers above; everything else is product-level.
func (c *Campaign) MatchesScope(scope Scope) bool {
	switch scope {
	case ScopeAll:
		return true
	case ScopeProducts:
		return !c.IsCartLevel() && !c.IsShippingScoped()
	case ScopeCart:
		return c.IsCartLevel()
	case ScopeShipping:
		return c.IsShippingScoped()
	default:
		return false
	}
}

// IsActiveAt reports whether the campaign is switched on and the given
// instant falls within its start/end window.
func (c *Campaign) IsActiveAt(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// HasReachedTotalLimit reports whether the campaign's total usage cap is
// exhausted. Campaigns without a cap never reach it.
func (c *Campaign) HasReachedTotalLimit() bool {
	return c.MaxUsesTotal != nil && c.CurrentUses >= *c.MaxUsesTotal
}

// Validate checks construction invariants before persistence.
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if !IsValidDiscountType(string(c.DiscountType)) {
		return fmt.Errorf("invalid discount type: %s", c.DiscountType)
	}
	if c.DiscountValue <= 0 {
		return fmt.Errorf("discount value must be positive")
	}
	if c.DiscountType == DiscountPercentage && c.DiscountValue > 100 {
		return fmt.Errorf("percentage discount value cannot exceed 100")
	}
	if !c.EndDate.After(c.StartDate) {
		return fmt.Errorf("end date must be after start date")
	}
	if c.MaxUsesTotal != nil && *c.MaxUsesTotal < 1 {
		return fmt.Errorf("max uses total must be at least 1")
	}
	if c.MaxUsesPerCustomer != nil && *c.MaxUsesPerCustomer < 1 {
		return fmt.Errorf("max uses per customer must be at least 1")
	}
	for _, t := range c.Targets {
		switch t.Type {
		case TargetProduct, TargetCategory, TargetShipment, TargetShopcart:
		default:
			return fmt.Errorf("invalid target type: %s", t.Type)
		}
		switch t.Action {
		case ActionApplyTo, ActionRequires, ActionExcludes:
		default:
			return fmt.Errorf("invalid target action: %s", t.Action)
		}
	}
	return nil
}
