package domain

import "encoding/json"

// RequestDataShippingCost is the RequestData key carrying the shipping cost
// calculated by the checkout flow, in cents. Absent (or non-positive) means
// the cost is not yet known and shipping discounts are evaluated
// metadata-only.
const RequestDataShippingCost = "calculated_cost"

// LineItem is one cart or order line inside a DiscountContext. All amounts
// are integer cents.
type LineItem struct {
	ProductID   int64  `json:"product_id"`
	ProductType string `json:"product_type,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	LineTotal   int64  `json:"line_total"`
}

// OrderableRef is a polymorphic reference to the thing a discount was applied
// to, typically an order.
type OrderableRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DiscountContext is the ephemeral snapshot of cart or order state being
// evaluated. It is never persisted. A nil Order means pre-order (cart time)
// evaluation; a set Order means the order has been finalized.
type DiscountContext struct {
	CartTotal    int64          `json:"cart_total"`
	Items        []LineItem     `json:"items"`
	CustomerID   string         `json:"customer_id,omitempty"`
	CustomerType string         `json:"customer_type,omitempty"`
	RequestData  map[string]any `json:"request_data,omitempty"`
	Order        *OrderableRef  `json:"order,omitempty"`
}

// IsGuest reports whether the context has no known customer.
func (c *DiscountContext) IsGuest() bool {
	return c.CustomerID == ""
}

// IsPreOrder reports whether the context describes a cart that has not been
// placed as an order yet.
func (c *DiscountContext) IsPreOrder() bool {
	return c.Order == nil
}

// TotalQuantity returns the sum of all line item quantities.
func (c *DiscountContext) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// HasProduct reports whether any line item carries the given product id.
func (c *DiscountContext) HasProduct(productID int64) bool {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// HasAnyProduct reports whether any line item carries one of the given
// product ids.
func (c *DiscountContext) HasAnyProduct(productIDs []int64) bool {
	for _, id := range productIDs {
		if c.HasProduct(id) {
			return true
		}
	}
	return false
}

// ShippingCost extracts the calculated shipping cost from RequestData.
// Returns 0 when the cost is absent or not a number. JSON decoding delivers
// numbers as float64, so that is the common case.
func (c *DiscountContext) ShippingCost() int64 {
	raw, ok := c.RequestData[RequestDataShippingCost]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// WithItemPrices returns a copy of the context whose line items carry the
// given remaining prices (both unit price and line total are replaced).
// Used during stacking to recompute stackable discounts against
// partially-discounted amounts.
func (c *DiscountContext) WithItemPrices(remaining map[int64]int64) *DiscountContext {
	cp := *c
	cp.Items = make([]LineItem, len(c.Items))
	for i, it := range c.Items {
		if price, ok := remaining[it.ProductID]; ok {
			it.UnitPrice = price
			it.LineTotal = price
		}
		cp.Items[i] = it
	}
	return &cp
}

// WithCartTotal returns a copy of the context with the cart total replaced.
// Used for the cart stage of stacking, which runs on the running adjusted
// total.
func (c *DiscountContext) WithCartTotal(total int64) *DiscountContext {
	cp := *c
	cp.CartTotal = total
	return &cp
}
