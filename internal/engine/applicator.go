package engine

import (
	"context"
	"log/slog"

	"github.com/utafrali/discounts/internal/domain"
)

// Applicator computes the monetary effect of one campaign against one
// context. Implementations must be pure functions of their inputs so the
// stacking algorithm can safely re-run them against adjusted
// (partially-discounted) contexts.
type Applicator interface {
	Supports(t domain.DiscountType) bool
	Apply(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) *domain.DiscountResult
}

// Registry dispatches campaigns to applicators by discount type. Types
// without a registered applicator contribute nothing (fail closed), so a
// campaign with an unknown type cannot abort evaluation of others.
type Registry struct {
	applicators map[domain.DiscountType]Applicator
	logger      *slog.Logger
}

// NewRegistry creates a Registry with the percentage and fixed-amount
// applicators registered.
func NewRegistry(resolver *Resolver, logger *slog.Logger) *Registry {
	r := &Registry{
		applicators: make(map[domain.DiscountType]Applicator),
		logger:      logger,
	}
	r.Register(domain.DiscountPercentage, &PercentageApplicator{resolver: resolver})
	r.Register(domain.DiscountFixedAmount, &FixedAmountApplicator{resolver: resolver})
	return r
}

// Register adds or replaces the applicator for a discount type.
func (r *Registry) Register(t domain.DiscountType, a Applicator) {
	r.applicators[t] = a
}

// Apply runs the campaign through its applicator. Returns nil when no
// applicator supports the campaign's discount type.
func (r *Registry) Apply(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) *domain.DiscountResult {
	a, ok := r.applicators[campaign.DiscountType]
	if !ok || !a.Supports(campaign.DiscountType) {
		r.logger.WarnContext(ctx, "no applicator for discount type, campaign contributes nothing",
			slog.String("discount_type", string(campaign.DiscountType)),
			slog.String("campaign_id", campaign.ID),
		)
		return nil
	}
	return a.Apply(ctx, campaign, dctx)
}

// roundHalfUp divides num by denom rounding half up. Both must be
// non-negative; all discount math stays in non-negative integer cents.
func roundHalfUp(num, denom int64) int64 {
	return (num + denom/2) / denom
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
