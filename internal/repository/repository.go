package repository

import (
	"context"
	"time"

	"github.com/utafrali/discounts/internal/domain"
)

// CampaignFilter defines filter criteria for listing campaigns.
type CampaignFilter struct {
	IsActive     *bool
	DiscountType *string
	Page         int
	PerPage      int
}

// CampaignRepository defines the interface for campaign persistence
// operations. Conditions and targets are owned by their campaign: Create and
// Update write them atomically with the parent row, Delete cascades to them.
type CampaignRepository interface {
	// Create inserts a campaign together with its conditions and targets in
	// one transaction.
	Create(ctx context.Context, campaign *domain.Campaign) error

	// GetByID retrieves a campaign with conditions and targets loaded.
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// GetByCode retrieves a campaign by its coupon code.
	GetByCode(ctx context.Context, code string) (*domain.Campaign, error)

	// List returns campaigns matching the filter along with the total count.
	// Children are loaded for each returned campaign.
	List(ctx context.Context, filter CampaignFilter) ([]domain.Campaign, int, error)

	// Update modifies a campaign and replaces its conditions and targets in
	// one transaction.
	Update(ctx context.Context, campaign *domain.Campaign) error

	// Delete removes a campaign; conditions and targets cascade, usage
	// history survives.
	Delete(ctx context.Context, id string) error

	// Deactivate switches a campaign off without deleting it.
	Deactivate(ctx context.Context, id string) error

	// FindActiveInRange returns active campaigns whose window contains now,
	// priority-descending, with conditions and targets loaded.
	FindActiveInRange(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// UsageRepository defines the interface for discount usage records.
type UsageRepository interface {
	// Record inserts a usage row and increments the campaign's current_uses
	// counter in one transaction.
	Record(ctx context.Context, usage *domain.Usage) error

	// CountByCustomer returns how many times a customer has used a campaign.
	CountByCustomer(ctx context.Context, campaignID, customerID string) (int, error)

	// ListByOrderable returns the usage records attached to an orderable
	// reference, oldest first.
	ListByOrderable(ctx context.Context, orderableType, orderableID string) ([]domain.Usage, error)
}
