package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/discounts/internal/domain"
	"github.com/utafrali/discounts/internal/event"
	"github.com/utafrali/discounts/internal/repository"
	apperrors "github.com/utafrali/discounts/pkg/errors"
)

// nonAlphanumRe matches any character that is not a letter, digit, or hyphen.
var nonAlphanumRe = regexp.MustCompile(`[^A-Z0-9-]+`)

// CampaignService implements the business logic for campaign administration.
type CampaignService struct {
	repo     repository.CampaignRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewCampaignService creates a new campaign service.
func NewCampaignService(repo repository.CampaignRepository, producer *event.Producer, logger *slog.Logger) *CampaignService {
	return &CampaignService{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// CreateCampaignInput holds the parameters for creating a campaign.
// Campaigns without a code apply automatically; set GenerateCode to mint a
// human-readable coupon code from the name.
type CreateCampaignInput struct {
	Name               string
	Description        string
	DiscountType       string
	DiscountValue      int64
	Code               string
	GenerateCode       bool
	StartDate          time.Time
	EndDate            time.Time
	IsActive           *bool
	Priority           int
	IsStackable        bool
	MaxUsesTotal       *int
	MaxUsesPerCustomer *int
	Metadata           map[string]any
	Conditions         []domain.Condition
	Targets            []domain.Target
}

// UpdateCampaignInput holds the parameters for partially updating a campaign.
// Nil fields are left unchanged; non-nil Conditions and Targets replace the
// existing sets wholesale.
type UpdateCampaignInput struct {
	Name               *string
	Description        *string
	DiscountType       *string
	DiscountValue      *int64
	Code               *string
	StartDate          *time.Time
	EndDate            *time.Time
	IsActive           *bool
	Priority           *int
	IsStackable        *bool
	MaxUsesTotal       *int
	MaxUsesPerCustomer *int
	Metadata           map[string]any
	Conditions         []domain.Condition
	Targets            []domain.Target
}

// CreateCampaign creates a new campaign with its conditions and targets.
func (s *CampaignService) CreateCampaign(ctx context.Context, input *CreateCampaignInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("campaign name is required")
	}
	if !domain.IsValidDiscountType(input.DiscountType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid discount type %q, must be one of: %s", input.DiscountType, discountTypeList()))
	}

	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" && input.GenerateCode {
		code = generateCampaignCode(input.Name)
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:                 uuid.New().String(),
		Name:               input.Name,
		Description:        input.Description,
		DiscountType:       domain.DiscountType(input.DiscountType),
		DiscountValue:      input.DiscountValue,
		StartDate:          input.StartDate,
		EndDate:            input.EndDate,
		IsActive:           isActive,
		Priority:           input.Priority,
		IsStackable:        input.IsStackable,
		MaxUsesTotal:       input.MaxUsesTotal,
		MaxUsesPerCustomer: input.MaxUsesPerCustomer,
		CurrentUses:        0,
		Metadata:           input.Metadata,
		Conditions:         input.Conditions,
		Targets:            input.Targets,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if code != "" {
		campaign.Code = &code
	}

	if err := campaign.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	if err := s.producer.PublishCampaignCreated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_created event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("name", campaign.Name),
	)

	return campaign, nil
}

// GetCampaign retrieves a campaign by its ID.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign by id: %w", err)
	}
	return campaign, nil
}

// GetCampaignByCode retrieves a campaign by its coupon code.
func (s *CampaignService) GetCampaignByCode(ctx context.Context, code string) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get campaign by code: %w", err)
	}
	return campaign, nil
}

// ListCampaigns returns a filtered, paginated list of campaigns.
func (s *CampaignService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	campaigns, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}

	return campaigns, total, nil
}

// UpdateCampaign applies partial updates to an existing campaign.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, input *UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign for update: %w", err)
	}

	if input.Name != nil {
		campaign.Name = *input.Name
	}
	if input.Description != nil {
		campaign.Description = *input.Description
	}
	if input.DiscountType != nil {
		if !domain.IsValidDiscountType(*input.DiscountType) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid discount type %q, must be one of: %s", *input.DiscountType, discountTypeList()))
		}
		campaign.DiscountType = domain.DiscountType(*input.DiscountType)
	}
	if input.DiscountValue != nil {
		campaign.DiscountValue = *input.DiscountValue
	}
	if input.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*input.Code))
		if code == "" {
			campaign.Code = nil
		} else {
			campaign.Code = &code
		}
	}
	if input.StartDate != nil {
		campaign.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		campaign.EndDate = *input.EndDate
	}
	if input.IsActive != nil {
		campaign.IsActive = *input.IsActive
	}
	if input.Priority != nil {
		campaign.Priority = *input.Priority
	}
	if input.IsStackable != nil {
		campaign.IsStackable = *input.IsStackable
	}
	if input.MaxUsesTotal != nil {
		campaign.MaxUsesTotal = input.MaxUsesTotal
	}
	if input.MaxUsesPerCustomer != nil {
		campaign.MaxUsesPerCustomer = input.MaxUsesPerCustomer
	}
	if input.Metadata != nil {
		campaign.Metadata = input.Metadata
	}
	if input.Conditions != nil {
		campaign.Conditions = input.Conditions
	}
	if input.Targets != nil {
		campaign.Targets = input.Targets
	}

	if err := campaign.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	campaign.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	if err := s.producer.PublishCampaignUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_updated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign updated",
		slog.String("campaign_id", campaign.ID),
	)

	return campaign, nil
}

// DeactivateCampaign switches a campaign off without deleting it.
func (s *CampaignService) DeactivateCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return nil, fmt.Errorf("deactivate campaign: %w", err)
	}

	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign after deactivate: %w", err)
	}

	if err := s.producer.PublishCampaignUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_updated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign deactivated",
		slog.String("campaign_id", campaign.ID),
	)

	return campaign, nil
}

// DeleteCampaign removes a campaign. Conditions and targets cascade; usage
// history survives, referencing the campaign by id only.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get campaign for delete: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}

	if err := s.producer.PublishCampaignDeleted(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign_deleted event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign deleted",
		slog.String("campaign_id", campaign.ID),
	)

	return nil
}

func discountTypeList() string {
	types := domain.ValidDiscountTypes()
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// generateCampaignCode creates a human-readable campaign code from the
// campaign name by slugifying it and appending a 4-character random hex
// suffix. Example: "Summer Sale 2026" -> "SUMMER-SALE-2026-A3F2".
func generateCampaignCode(name string) string {
	slug := strings.ToUpper(strings.TrimSpace(name))
	// Replace spaces and underscores with hyphens.
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	// Remove any character that is not alphanumeric or hyphen.
	slug = nonAlphanumRe.ReplaceAllString(slug, "")
	// Collapse consecutive hyphens.
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	// Truncate the slug portion to keep the total code within 50 chars
	// (the DB column limit). We need room for "-" + 4 hex chars = 5 chars.
	const maxSlugLen = 44
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
		slug = strings.TrimRight(slug, "-")
	}

	// Generate 2 random bytes -> 4 hex characters.
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		// Extremely unlikely; fall back to a UUID fragment.
		b = []byte(uuid.New().String()[:2])
	}
	suffix := strings.ToUpper(hex.EncodeToString(b))

	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}
