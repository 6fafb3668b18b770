package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/discounts/internal/domain"
)

// CampaignSource supplies the candidate campaigns for an evaluation pass.
// FindActiveInRange pushes the active-flag and date-window filter into the
// query and returns campaigns priority-descending with conditions and
// targets loaded.
type CampaignSource interface {
	FindActiveInRange(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// UsageCounter answers how many times a customer has used a campaign.
type UsageCounter interface {
	CountByCustomer(ctx context.Context, campaignID, customerID string) (int, error)
}

// Evaluator produces the set of campaigns applicable to a context,
// priority-descending. Per campaign it short-circuits through: activity
// window, usage limits, conditions, target coverage, scope filter.
type Evaluator struct {
	source   CampaignSource
	usages   UsageCounter
	matcher  *Matcher
	resolver *Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewEvaluator creates a campaign Evaluator.
func NewEvaluator(source CampaignSource, usages UsageCounter, matcher *Matcher, resolver *Resolver, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		source:   source,
		usages:   usages,
		matcher:  matcher,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the evaluator's clock. Tests use this to pin "now".
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// FindApplicable returns the campaigns applicable to the context within the
// requested scope, in the repository's priority-descending order (stable
// for equal priorities). Failures checking a single campaign are isolated:
// the campaign is skipped, the rest of the pass continues.
func (e *Evaluator) FindApplicable(ctx context.Context, dctx *domain.DiscountContext, scope domain.Scope) ([]domain.Campaign, error) {
	now := e.now()
	candidates, err := e.source.FindActiveInRange(ctx, now)
	if err != nil {
		return nil, err
	}

	applicable := make([]domain.Campaign, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if e.isApplicable(ctx, c, dctx, now) && c.MatchesScope(scope) {
			applicable = append(applicable, *c)
		}
	}
	return applicable, nil
}

// IsApplicable runs the activity, usage-limit, condition, and coverage
// checks for a single campaign. Used by the single-campaign probe as well
// as FindApplicable.
func (e *Evaluator) IsApplicable(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) bool {
	return e.isApplicable(ctx, campaign, dctx, e.now())
}

func (e *Evaluator) isApplicable(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext, now time.Time) bool {
	if !campaign.IsActiveAt(now) {
		return false
	}
	if e.usageLimitReached(ctx, campaign, dctx) {
		return false
	}
	if !e.matcher.Matches(ctx, campaign, dctx) {
		return false
	}
	return e.resolver.Covers(ctx, campaign, dctx)
}

// usageLimitReached checks the total cap and, for known customers, the
// per-customer cap. The per-customer check is read-then-count: two orders
// racing near the limit can both pass before either records a usage. The
// design accepts this; strict enforcement would need a row lock in the
// usage-recording transaction.
func (e *Evaluator) usageLimitReached(ctx context.Context, campaign *domain.Campaign, dctx *domain.DiscountContext) bool {
	if campaign.HasReachedTotalLimit() {
		return true
	}
	if campaign.MaxUsesPerCustomer == nil || dctx.IsGuest() {
		return false
	}

	count, err := e.usages.CountByCustomer(ctx, campaign.ID, dctx.CustomerID)
	if err != nil {
		e.logger.WarnContext(ctx, "per-customer usage count failed, skipping campaign",
			slog.String("campaign_id", campaign.ID),
			slog.String("customer_id", dctx.CustomerID),
			slog.String("error", err.Error()),
		)
		return true
	}
	return count >= *campaign.MaxUsesPerCustomer
}
