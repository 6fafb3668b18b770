package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/discounts/internal/domain"
	"github.com/utafrali/discounts/internal/engine"
	"github.com/utafrali/discounts/internal/event"
	"github.com/utafrali/discounts/internal/repository"
)

// Application is the outcome of one discount application pass. TotalSavings
// sums every result including shipping; FinalTotal is the cart total after
// product and cart discounts only, since shipping cost is billed separately.
type Application struct {
	Results       []domain.DiscountResult `json:"results"`
	TotalSavings  int64                   `json:"total_savings"`
	OriginalTotal int64                   `json:"original_total"`
	FinalTotal    int64                   `json:"final_total"`
}

// DiscountService orchestrates campaign evaluation, stacking, and usage
// recording.
type DiscountService struct {
	evaluator   *engine.Evaluator
	applicators *engine.Registry
	usages      repository.UsageRepository
	producer    *event.Producer
	logger      *slog.Logger
}

// NewDiscountService creates a new discount service.
func NewDiscountService(evaluator *engine.Evaluator, applicators *engine.Registry, usages repository.UsageRepository, producer *event.Producer, logger *slog.Logger) *DiscountService {
	return &DiscountService{
		evaluator:   evaluator,
		applicators: applicators,
		usages:      usages,
		producer:    producer,
		logger:      logger,
	}
}

// ApplyDiscounts evaluates the active campaigns against the context and
// stacks the applicable ones within the requested scope. Within each tier at
// most one non-stackable campaign wins, then stackable campaigns apply
// sequentially against the already-discounted amounts. No amount is ever
// discounted below zero.
func (s *DiscountService) ApplyDiscounts(ctx context.Context, dctx *domain.DiscountContext, scope domain.Scope) (*Application, error) {
	campaigns, err := s.evaluator.FindApplicable(ctx, dctx, scope)
	if err != nil {
		return nil, fmt.Errorf("find applicable campaigns: %w", err)
	}

	app := &Application{
		Results:       []domain.DiscountResult{},
		OriginalTotal: dctx.CartTotal,
		FinalTotal:    dctx.CartTotal,
	}

	var productSaved int64
	if scope == domain.ScopeProducts || scope == domain.ScopeAll {
		results, saved := s.applyProductTier(ctx, filterScope(campaigns, domain.ScopeProducts), dctx)
		app.Results = append(app.Results, results...)
		productSaved = saved
	}

	if scope == domain.ScopeShipping || scope == domain.ScopeAll {
		app.Results = append(app.Results, s.applyShippingTier(filterScope(campaigns, domain.ScopeShipping), dctx)...)
	}

	runningTotal := maxInt64(dctx.CartTotal-productSaved, 0)
	if scope == domain.ScopeCart || scope == domain.ScopeAll {
		results, newTotal := s.applyCartTier(ctx, filterScope(campaigns, domain.ScopeCart), dctx, runningTotal)
		app.Results = append(app.Results, results...)
		runningTotal = newTotal
	}

	app.FinalTotal = runningTotal
	for _, r := range app.Results {
		app.TotalSavings += r.AmountSaved
	}

	s.logger.DebugContext(ctx, "discounts applied",
		slog.String("scope", string(scope)),
		slog.Int("campaigns_applied", len(app.Results)),
		slog.Int64("total_savings", app.TotalSavings),
	)
	return app, nil
}

// ApplyCampaign is the single-campaign probe: it checks whether one campaign
// applies to the context and, if so, computes its isolated effect with no
// stacking interactions. Returns nil when the campaign does not apply.
func (s *DiscountService) ApplyCampaign(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) *domain.DiscountResult {
	if !s.evaluator.IsApplicable(ctx, campaign, dctx) {
		return nil
	}
	if campaign.IsShippingScoped() {
		return s.shippingResult(campaign, dctx.ShippingCost())
	}
	return s.applicators.Apply(ctx, campaign, dctx)
}

// applyProductTier applies item-level campaigns. Phase one picks, per line
// item, the single non-stackable campaign offering that item the deepest
// discount. Phase two runs the stackable campaigns in priority order, each
// against the remaining (already-discounted) item prices, clamped so no item
// goes below zero.
func (s *DiscountService) applyProductTier(ctx context.Context, campaigns []domain.Campaign, dctx *domain.DiscountContext) ([]domain.DiscountResult, int64) {
	nonStackable, stackable := splitStackable(campaigns)

	remaining := make(map[int64]int64, len(dctx.Items))
	for _, it := range dctx.Items {
		remaining[it.ProductID] = it.LineTotal
	}

	// Phase one: best non-stackable discount per item.
	bestItem := make(map[int64]domain.AffectedItem)
	bestCampaign := make(map[int64]string)
	for i := range nonStackable {
		c := &nonStackable[i]
		res := s.applicators.Apply(ctx, c, dctx)
		if res == nil {
			continue
		}
		for _, it := range res.AffectedItems {
			if cur, ok := bestItem[it.ProductID]; !ok || it.DiscountAmount > cur.DiscountAmount {
				bestItem[it.ProductID] = it
				bestCampaign[it.ProductID] = c.ID
			}
		}
	}

	var results []domain.DiscountResult
	var totalSaved int64

	// Aggregate the winning picks per campaign, in campaign priority order
	// and item order, so output is deterministic.
	for i := range nonStackable {
		c := &nonStackable[i]
		var (
			saved    int64
			affected []domain.AffectedItem
		)
		for _, it := range dctx.Items {
			pick, ok := bestItem[it.ProductID]
			if !ok || bestCampaign[it.ProductID] != c.ID || pick.DiscountAmount <= 0 {
				continue
			}
			saved += pick.DiscountAmount
			affected = append(affected, pick)
			remaining[it.ProductID] = maxInt64(remaining[it.ProductID]-pick.DiscountAmount, 0)
		}
		if saved > 0 {
			results = append(results, domain.DiscountResult{
				CampaignID:    c.ID,
				CampaignName:  c.Name,
				DiscountType:  c.DiscountType,
				AmountSaved:   saved,
				AffectedItems: affected,
			})
			totalSaved += saved
		}
	}

	// Phase two: stackables against the adjusted prices.
	for i := range stackable {
		c := &stackable[i]
		adjusted := dctx.WithItemPrices(remaining)
		res := s.applicators.Apply(ctx, c, adjusted)
		if res == nil {
			continue
		}

		var (
			saved    int64
			affected []domain.AffectedItem
		)
		for _, it := range res.AffectedItems {
			discount := minInt64(it.DiscountAmount, remaining[it.ProductID])
			if discount <= 0 {
				continue
			}
			remaining[it.ProductID] -= discount
			saved += discount
			affected = append(affected, domain.AffectedItem{
				ProductID:      it.ProductID,
				Quantity:       it.Quantity,
				OriginalAmount: it.OriginalAmount,
				DiscountAmount: discount,
				FinalAmount:    it.OriginalAmount - discount,
			})
		}
		if saved > 0 {
			res.AmountSaved = saved
			res.AffectedItems = affected
			results = append(results, *res)
			totalSaved += saved
		}
	}

	return results, totalSaved
}

// applyShippingTier applies shipping-scoped campaigns. The non-stackable
// campaign with the highest raw discount value wins, then stackables reduce
// the remaining cost in priority order. Before the checkout flow has
// calculated a shipping cost the winner and the stackables are returned
// metadata-only, carrying their type and value for later recalculation;
// losing non-stackables are dropped in both modes. Percentage amounts round
// down.
func (s *DiscountService) applyShippingTier(campaigns []domain.Campaign, dctx *domain.DiscountContext) []domain.DiscountResult {
	if len(campaigns) == 0 {
		return nil
	}

	nonStackable, stackable := splitStackable(campaigns)

	var best *domain.Campaign
	for i := range nonStackable {
		c := &nonStackable[i]
		if best == nil || c.DiscountValue > best.DiscountValue {
			best = c
		}
	}

	cost := dctx.ShippingCost()
	if cost <= 0 {
		var results []domain.DiscountResult
		if best != nil {
			results = append(results, *s.shippingResult(best, 0))
		}
		for i := range stackable {
			results = append(results, *s.shippingResult(&stackable[i], 0))
		}
		return results
	}

	var results []domain.DiscountResult
	remaining := cost

	if best != nil {
		res := s.shippingResult(best, remaining)
		if res.AmountSaved > 0 {
			remaining -= res.AmountSaved
			results = append(results, *res)
		}
	}

	for i := range stackable {
		res := s.shippingResult(&stackable[i], remaining)
		if res.AmountSaved > 0 {
			remaining -= res.AmountSaved
			results = append(results, *res)
		}
	}

	return results
}

// shippingResult computes one campaign's effect on a shipping cost. A
// non-positive cost yields a metadata-only result.
func (s *DiscountService) shippingResult(campaign *domain.Campaign, cost int64) *domain.DiscountResult {
	res := &domain.DiscountResult{
		CampaignID:   campaign.ID,
		CampaignName: campaign.Name,
		DiscountType: campaign.DiscountType,
		Metadata: map[string]any{
			domain.MetaShippingLevel: true,
		},
	}

	if cost <= 0 {
		res.Metadata[domain.MetaMetadataOnly] = true
		res.Metadata[domain.MetaDiscountType] = string(campaign.DiscountType)
		res.Metadata[domain.MetaDiscountValue] = campaign.DiscountValue
		return res
	}

	switch campaign.DiscountType {
	case domain.DiscountPercentage:
		res.AmountSaved = cost * campaign.DiscountValue / 100
	case domain.DiscountFixedAmount:
		res.AmountSaved = minInt64(campaign.DiscountValue, cost)
	}
	return res
}

// applyCartTier applies cart-total campaigns against the running adjusted
// total. The winning non-stackable campaign is the one saving the most
// against that total (earlier priority wins ties), then stackables reduce it
// sequentially.
func (s *DiscountService) applyCartTier(ctx context.Context, campaigns []domain.Campaign, dctx *domain.DiscountContext, total int64) ([]domain.DiscountResult, int64) {
	nonStackable, stackable := splitStackable(campaigns)

	var results []domain.DiscountResult

	var best *domain.DiscountResult
	adjusted := dctx.WithCartTotal(total)
	for i := range nonStackable {
		res := s.applicators.Apply(ctx, &nonStackable[i], adjusted)
		if res == nil {
			continue
		}
		if best == nil || res.AmountSaved > best.AmountSaved {
			best = res
		}
	}
	if best != nil && best.AmountSaved > 0 {
		saved := minInt64(best.AmountSaved, total)
		best.AmountSaved = saved
		total -= saved
		results = append(results, *best)
	}

	for i := range stackable {
		res := s.applicators.Apply(ctx, &stackable[i], dctx.WithCartTotal(total))
		if res == nil || res.AmountSaved <= 0 {
			continue
		}
		saved := minInt64(res.AmountSaved, total)
		if saved <= 0 {
			continue
		}
		res.AmountSaved = saved
		total -= saved
		results = append(results, *res)
	}

	return results, total
}

// filterScope narrows a campaign list to one tier. The evaluator has already
// filtered by the request scope; this re-partitions for the all-scope pass.
func filterScope(campaigns []domain.Campaign, scope domain.Scope) []domain.Campaign {
	out := make([]domain.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if c.MatchesScope(scope) {
			out = append(out, c)
		}
	}
	return out
}

// splitStackable partitions campaigns preserving their priority order.
func splitStackable(campaigns []domain.Campaign) (nonStackable, stackable []domain.Campaign) {
	for _, c := range campaigns {
		if c.IsStackable {
			stackable = append(stackable, c)
		} else {
			nonStackable = append(nonStackable, c)
		}
	}
	return nonStackable, stackable
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
