package engine

import (
	"context"

	"github.com/utafrali/discounts/internal/domain"
)

// PercentageApplicator computes percentage discounts. Cart-total campaigns
// discount the whole cart once; product campaigns discount each eligible
// line item's total. Amounts round half up.
type PercentageApplicator struct {
	resolver *Resolver
}

// Supports implements Applicator.
func (a *PercentageApplicator) Supports(t domain.DiscountType) bool {
	return t == domain.DiscountPercentage
}

// Apply implements Applicator.
func (a *PercentageApplicator) Apply(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) *domain.DiscountResult {
	pct := campaign.DiscountValue

	if campaign.IsCartLevel() {
		saved := roundHalfUp(dctx.CartTotal*pct, 100)
		return &domain.DiscountResult{
			CampaignID:   campaign.ID,
			CampaignName: campaign.Name,
			DiscountType: domain.DiscountPercentage,
			AmountSaved:  saved,
			Metadata: map[string]any{
				domain.MetaCartLevel:  true,
				domain.MetaPercentage: pct,
			},
		}
	}

	var (
		total    int64
		affected []domain.AffectedItem
	)
	for _, it := range a.resolver.EligibleItems(ctx, campaign, dctx) {
		discount := roundHalfUp(it.LineTotal*pct, 100)
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
		DiscountType:  domain.DiscountPercentage,
		AmountSaved:   total,
		AffectedItems: affected,
		Metadata: map[string]any{
			domain.MetaPercentage: pct,
		},
	}
}
