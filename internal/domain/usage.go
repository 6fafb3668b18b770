package domain

import "time"

// Usage records a single application of a campaign to an orderable. It
// references the campaign by id only, without ownership, so history survives
// campaign deletion. Metadata carries a snapshot of the campaign name,
// discount type, and affected items at the time of use.
type Usage struct {
	ID            string         `json:"id"`
	CampaignID    string         `json:"campaign_id"`
	CustomerID    *string        `json:"customer_id,omitempty"`
	OrderableType string         `json:"orderable_type"`
	OrderableID   string         `json:"orderable_id"`
	AmountApplied int64          `json:"discount_amount_applied"`
	UsedAt        time.Time      `json:"used_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
