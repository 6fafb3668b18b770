package domain

// Result metadata keys. Downstream consumers (order finalization, pricing
// display) use these to distinguish cart-level and shipping-level results
// from per-item ones.
const (
	MetaCartLevel     = "cart_level"
	MetaShippingLevel = "shipping_level"
	MetaMetadataOnly  = "metadata_only"
	MetaDiscountType  = "discount_type"
	MetaDiscountValue = "discount_value"
	MetaPercentage    = "percentage"
)

// AffectedItem is the per-line-item breakdown inside a DiscountResult.
// OriginalAmount is the line total the discount was computed against, which
// during stacking may already be a partially-discounted remaining price.
type AffectedItem struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	OriginalAmount int64 `json:"original_amount"`
	DiscountAmount int64 `json:"discount_amount"`
	FinalAmount    int64 `json:"final_amount"`
}

// DiscountResult is the monetary effect of one campaign against one context.
// AmountSaved is integer cents. Cart-level and shipping-level results carry
// no affected items; the flags live in Metadata.
type DiscountResult struct {
	CampaignID    string         `json:"campaign_id"`
	CampaignName  string         `json:"campaign_name"`
	DiscountType  DiscountType   `json:"discount_type"`
	AmountSaved   int64          `json:"amount_saved"`
	AffectedItems []AffectedItem `json:"affected_items,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// IsCartLevel reports whether the result discounts the aggregate cart total.
func (r *DiscountResult) IsCartLevel() bool {
	v, ok := r.Metadata[MetaCartLevel].(bool)
	return ok && v
}

// IsShippingLevel reports whether the result discounts shipping cost.
func (r *DiscountResult) IsShippingLevel() bool {
	v, ok := r.Metadata[MetaShippingLevel].(bool)
	return ok && v
}

// IsMetadataOnly reports whether the result carries type/value for later
// recalculation instead of a computed amount (shipping before the cost is
// known).
func (r *DiscountResult) IsMetadataOnly() bool {
	v, ok := r.Metadata[MetaMetadataOnly].(bool)
	return ok && v
}
