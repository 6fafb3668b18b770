package engine

import (
	"context"

	"github.com/utafrali/discounts/internal/domain"
)

// FixedAmountApplicator computes fixed-amount discounts. Cart-total
// campaigns take min(value, cart total) once; product campaigns take
// min(value, unit price) per unit of each eligible item. Neither can
// discount below zero.
type FixedAmountApplicator struct {
	resolver *Resolver
}

// Supports implements Applicator.
func (a *FixedAmountApplicator) Supports(t domain.DiscountType) bool {
	return t == domain.DiscountFixedAmount
}

// Apply implements Applicator.
func (a *FixedAmountApplicator) Apply(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) *domain.DiscountResult {
	value := campaign.DiscountValue

	if campaign.IsCartLevel() {
		saved := minInt64(value, dctx.CartTotal)
		return &domain.DiscountResult{
			CampaignID:   campaign.ID,
			CampaignName: campaign.Name,
			DiscountType: domain.DiscountFixedAmount,
			AmountSaved:  saved,
			Metadata: map[string]any{
				domain.MetaCartLevel: true,
			},
		}
	}

	var (
		total    int64
		affected []domain.AffectedItem
	)
	for _, it := range a.resolver.EligibleItems(ctx, campaign, dctx) {
		perUnit := minInt64(value, it.UnitPrice)
		discount := perUnit * int64(it.Quantity)
		total += discount
		affected = append(affected, domain.AffectedItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			OriginalAmount: it.LineTotal,
			DiscountAmount: discount,
			FinalAmount:    it.LineTotal - discount,
		})
	}

	return &domain.DiscountResult{
		CampaignID:    campaign.ID,
		CampaignName:  campaign.Name,
		DiscountType:  domain.DiscountFixedAmount,
		AmountSaved:   total,
		AffectedItems: affected,
	}
}
