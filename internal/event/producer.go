package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/discounts/internal/domain"
	pkgkafka "github.com/utafrali/discounts/pkg/kafka"
)

// Kafka topic constants for discount domain events.
const (
	TopicCampaignCreated = "ecommerce.discount.campaign_created"
	TopicCampaignUpdated = "ecommerce.discount.campaign_updated"
	TopicCampaignDeleted = "ecommerce.discount.campaign_deleted"
	TopicDiscountApplied = "ecommerce.discount.applied"
)

// Aggregate type constant.
const AggregateTypeCampaign = "discount_campaign"

// Source identifier for events originating from the discount service.
const SourceDiscountService = "discount-service"

// CampaignEventData is the payload for campaign lifecycle events.
type CampaignEventData struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Code          *string `json:"code,omitempty"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue int64   `json:"discount_value"`
	IsActive      bool    `json:"is_active"`
	IsStackable   bool    `json:"is_stackable"`
	Priority      int     `json:"priority"`
}

// DiscountAppliedData is the payload for a discount.applied event.
type DiscountAppliedData struct {
	CampaignID    string  `json:"campaign_id"`
	CustomerID    *string `json:"customer_id,omitempty"`
	OrderableType string  `json:"orderable_type"`
	OrderableID   string  `json:"orderable_id"`
	AmountApplied int64   `json:"amount_applied"`
}

// Producer publishes discount domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the discount service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func campaignEventData(campaign *domain.Campaign) CampaignEventData {
	return CampaignEventData{
		ID:            campaign.ID,
		Name:          campaign.Name,
		Code:          campaign.Code,
		DiscountType:  string(campaign.DiscountType),
		DiscountValue: campaign.DiscountValue,
		IsActive:      campaign.IsActive,
		IsStackable:   campaign.IsStackable,
		Priority:      campaign.Priority,
	}
}

// PublishCampaignCreated publishes a campaign_created event.
func (p *Producer) PublishCampaignCreated(ctx context.Context, campaign *domain.Campaign) error {
	return p.publishCampaignEvent(ctx, TopicCampaignCreated, campaign)
}

// PublishCampaignUpdated publishes a campaign_updated event.
func (p *Producer) PublishCampaignUpdated(ctx context.Context, campaign *domain.Campaign) error {
	return p.publishCampaignEvent(ctx, TopicCampaignUpdated, campaign)
}

// PublishCampaignDeleted publishes a campaign_deleted event.
func (p *Producer) PublishCampaignDeleted(ctx context.Context, campaign *domain.Campaign) error {
	return p.publishCampaignEvent(ctx, TopicCampaignDeleted, campaign)
}

func (p *Producer) publishCampaignEvent(ctx context.Context, topic string, campaign *domain.Campaign) error {
	event, err := pkgkafka.NewEvent(topic, campaign.ID, AggregateTypeCampaign, SourceDiscountService, campaignEventData(campaign))
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published campaign event",
		slog.String("topic", topic),
		slog.String("campaign_id", campaign.ID),
	)
	return nil
}

// PublishDiscountApplied publishes a discount.applied event for a recorded
// usage.
func (p *Producer) PublishDiscountApplied(ctx context.Context, usage *domain.Usage) error {
	data := DiscountAppliedData{
		CampaignID:    usage.CampaignID,
		CustomerID:    usage.CustomerID,
		OrderableType: usage.OrderableType,
		OrderableID:   usage.OrderableID,
		AmountApplied: usage.AmountApplied,
	}

	event, err := pkgkafka.NewEvent(TopicDiscountApplied, usage.CampaignID, AggregateTypeCampaign, SourceDiscountService, data)
	if err != nil {
		return fmt.Errorf("create discount.applied event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDiscountApplied, event); err != nil {
		return fmt.Errorf("publish discount.applied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published discount.applied event",
		slog.String("campaign_id", usage.CampaignID),
		slog.String("orderable_id", usage.OrderableID),
	)
	return nil
}
