package engine

import (
	"context"
	"log/slog"

	"github.com/utafrali/discounts/internal/domain"
)

// Catalog provides category membership lookups. Backed by the product
// service in production; mocked in tests.
type Catalog interface {
	ProductIDsInCategory(ctx context.Context, categoryID int64) ([]int64, error)
}

// Resolver decides whether a campaign's targets cover a context and which
// line items are eligible for amount calculation. Only apply_to targets are
// interpreted. Catalog lookup failures degrade to "no matching items"
// rather than aborting evaluation.
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewResolver creates a target Resolver.
func NewResolver(catalog Catalog, logger *slog.Logger) *Resolver {
	return &Resolver{catalog: catalog, logger: logger}
}

// Covers reports whether any apply_to target of the campaign covers the
// context (logical OR across targets). A campaign with no apply_to targets
// covers everything.
func (r *Resolver) Covers(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) bool {
	targets := campaign.ApplyToTargets()
	if len(targets) == 0 {
		return true
	}

	for _, t := range targets {
		if r.targetCovers(ctx, t, dctx) {
			return true
		}
	}
	return false
}

func (r *Resolver) targetCovers(ctx context.Context, t domain.Target, dctx *domain.DiscountContext) bool {
	switch t.Type {
	case domain.TargetShopcart, domain.TargetShipment:
		// Cart and shipping targets always cover; the scope filter decides
		// which evaluation pass they participate in.
		return true
	case domain.TargetProduct:
		if t.TargetableID == nil {
			return true
		}
		return dctx.HasProduct(*t.TargetableID)
	case domain.TargetCategory:
		if t.TargetableID == nil {
			return false
		}
		members, err := r.catalog.ProductIDsInCategory(ctx, *t.TargetableID)
		if err != nil {
			r.logger.WarnContext(ctx, "category membership lookup failed, treating target as not covering",
				slog.Int64("category_id", *t.TargetableID),
				slog.String("campaign_id", t.CampaignID),
				slog.String("error", err.Error()),
			)
			return false
		}
		return dctx.HasAnyProduct(members)
	default:
		r.logger.WarnContext(ctx, "unknown target type, treating as not covering",
			slog.String("target_type", string(t.Type)),
			slog.String("campaign_id", t.CampaignID),
		)
		return false
	}
}

// EligibleItems returns the line items a campaign's amount calculation
// applies to: all items when the campaign has no apply_to targets or any
// product target with no id, otherwise the union of items matched by direct
// product targets and targeted-category membership. Cart and shipping
// targets contribute no items.
func (r *Resolver) EligibleItems(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) []domain.LineItem {
	targets := campaign.ApplyToTargets()
	if len(targets) == 0 {
		return dctx.Items
	}

	eligible := make(map[int64]bool)
	for _, t := range targets {
		switch t.Type {
		case domain.TargetProduct:
			if t.TargetableID == nil {
				return dctx.Items
			}
			eligible[*t.TargetableID] = true
		case domain.TargetCategory:
			if t.TargetableID == nil {
				continue
			}
			members, err := r.catalog.ProductIDsInCategory(ctx, *t.TargetableID)
			if err != nil {
				r.logger.WarnContext(ctx, "category membership lookup failed, no items matched for target",
					slog.Int64("category_id", *t.TargetableID),
					slog.String("campaign_id", t.CampaignID),
					slog.String("error", err.Error()),
				)
				continue
			}
			for _, id := range members {
				eligible[id] = true
			}
		}
	}

	var items []domain.LineItem
	for _, it := range dctx.Items {
		if eligible[it.ProductID] {
			items = append(items, it)
		}
	}
	return items
}
