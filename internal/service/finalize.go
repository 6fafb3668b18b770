package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/discounts/internal/domain"
	apperrors "github.com/utafrali/discounts/pkg/errors"
)

// FinalizeOrderInput carries the order context and the discount results
// computed at cart time. The context must reference the placed order and, if
// shipping was quoted, carry the calculated shipping cost.
type FinalizeOrderInput struct {
	Context *domain.DiscountContext
	Results []domain.DiscountResult
}

// FinalizedOrder is the outcome of order finalization: the usages recorded,
// the shipping results recomputed against the real shipping cost, and the
// cart total after product and cart discounts.
type FinalizedOrder struct {
	Usages          []domain.Usage          `json:"usages"`
	ShippingResults []domain.DiscountResult `json:"shipping_results"`
	FinalTotal      int64                   `json:"final_total"`
}

// FinalizeOrder records the cart-time product and cart discounts against the
// placed order and recomputes shipping discounts now that the real shipping
// cost is known. Cart-time shipping results are discarded: they were computed
// before the cost existed and are metadata-only. Every recorded usage
// increments the campaign's usage counter and emits a discount.applied event.
func (s *DiscountService) FinalizeOrder(ctx context.Context, input *FinalizeOrderInput) (*FinalizedOrder, error) {
	dctx := input.Context
	if dctx == nil || dctx.Order == nil {
		return nil, apperrors.InvalidInput("finalize requires an order reference")
	}

	shippingCampaigns, err := s.evaluator.FindApplicable(ctx, dctx, domain.ScopeShipping)
	if err != nil {
		return nil, fmt.Errorf("find shipping campaigns: %w", err)
	}
	shippingResults := s.applyShippingTier(shippingCampaigns, dctx)

	var (
		toRecord   []domain.DiscountResult
		finalTotal = dctx.CartTotal
	)
	for _, r := range input.Results {
		if r.IsShippingLevel() {
			continue
		}
		finalTotal -= r.AmountSaved
		toRecord = append(toRecord, r)
	}
	if finalTotal < 0 {
		finalTotal = 0
	}
	for _, r := range shippingResults {
		if !r.IsMetadataOnly() {
			toRecord = append(toRecord, r)
		}
	}

	out := &FinalizedOrder{
		Usages:          []domain.Usage{},
		ShippingResults: shippingResults,
		FinalTotal:      finalTotal,
	}

	now := time.Now().UTC()
	for _, r := range toRecord {
		if r.AmountSaved <= 0 {
			continue
		}
		usage := domain.Usage{
			ID:            uuid.New().String(),
			CampaignID:    r.CampaignID,
			OrderableType: dctx.Order.Type,
			OrderableID:   dctx.Order.ID,
			AmountApplied: r.AmountSaved,
			UsedAt:        now,
			Metadata:      usageSnapshot(&r),
		}
		if !dctx.IsGuest() {
			customerID := dctx.CustomerID
			usage.CustomerID = &customerID
		}

		if err := s.usages.Record(ctx, &usage); err != nil {
			return nil, fmt.Errorf("record usage for campaign %s: %w", r.CampaignID, err)
		}

		if err := s.producer.PublishDiscountApplied(ctx, &usage); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish discount.applied event",
				slog.String("campaign_id", usage.CampaignID),
				slog.String("error", err.Error()),
			)
			// Do not fail the operation if event publishing fails.
		}

		out.Usages = append(out.Usages, usage)
	}

	s.logger.InfoContext(ctx, "order discounts finalized",
		slog.String("orderable_type", dctx.Order.Type),
		slog.String("orderable_id", dctx.Order.ID),
		slog.Int("usages_recorded", len(out.Usages)),
		slog.Int64("final_total", out.FinalTotal),
	)
	return out, nil
}

// ListOrderDiscounts returns the usage records attached to an orderable,
// oldest first.
func (s *DiscountService) ListOrderDiscounts(ctx context.Context, orderableType, orderableID string) ([]domain.Usage, error) {
	usages, err := s.usages.ListByOrderable(ctx, orderableType, orderableID)
	if err != nil {
		return nil, fmt.Errorf("list usages for %s %s: %w", orderableType, orderableID, err)
	}
	return usages, nil
}

// usageSnapshot captures what the discount looked like at the time of use, so
// history stays readable after the campaign changes or is deleted.
func usageSnapshot(r *domain.DiscountResult) map[string]any {
	meta := map[string]any{
		"campaign_name": r.CampaignName,
		"discount_type": string(r.DiscountType),
	}
	if len(r.AffectedItems) > 0 {
		meta["affected_items"] = r.AffectedItems
	}
	if r.IsCartLevel() {
		meta[domain.MetaCartLevel] = true
	}
	if r.IsShippingLevel() {
		meta[domain.MetaShippingLevel] = true
	}
	return meta
}
