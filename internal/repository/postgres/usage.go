package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/discounts/internal/domain"
	"github.com/utafrali/discounts/pkg/database"
	apperrors "github.com/utafrali/discounts/pkg/errors"
)

// UsageRepository implements repository.UsageRepository using PostgreSQL.
// Usage rows reference campaigns by id without a foreign key so the audit
// trail survives campaign deletion.
type UsageRepository struct {
	db database.DBTX
}

// NewUsageRepository creates a new PostgreSQL-backed usage repository.
func NewUsageRepository(db database.DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// Record inserts a usage row and increments the campaign's current_uses
// counter in one transaction, so a rolled-back order never counts a use.
func (r *UsageRepository) Record(ctx context.Context, usage *domain.Usage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record usage: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	metadataJSON, err := json.Marshal(usage.Metadata)
	if err != nil {
		return fmt.Errorf("marshal usage metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO discount_usages (
			id, campaign_id, customer_id, orderable_type, orderable_id,
			discount_amount_applied, used_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		usage.ID,
		usage.CampaignID,
		usage.CustomerID,
		usage.OrderableType,
		usage.OrderableID,
		usage.AmountApplied,
		usage.UsedAt,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert discount usage: %w", err)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE discount_campaigns
		SET current_uses = current_uses + 1, updated_at = NOW()
		WHERE id = $1`, usage.CampaignID)
	if err != nil {
		return fmt.Errorf("increment campaign uses: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", usage.CampaignID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record usage: %w", err)
	}
	return nil
}

// CountByCustomer returns how many times a customer has used a campaign.
func (r *UsageRepository) CountByCustomer(ctx context.Context, campaignID, customerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM discount_usages
		WHERE campaign_id = $1 AND customer_id = $2`,
		campaignID, customerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usages by customer: %w", err)
	}
	return count, nil
}

// ListByOrderable returns the usage records attached to an orderable
// reference, oldest first.
func (r *UsageRepository) ListByOrderable(ctx context.Context, orderableType, orderableID string) ([]domain.Usage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, campaign_id, customer_id, orderable_type, orderable_id,
		       discount_amount_applied, used_at, metadata
		FROM discount_usages
		WHERE orderable_type = $1 AND orderable_id = $2
		ORDER BY used_at ASC, id ASC`,
		orderableType, orderableID,
	)
	if err != nil {
		return nil, fmt.Errorf("list usages by orderable: %w", err)
	}
	defer rows.Close()

	var usages []domain.Usage
	for rows.Next() {
		var (
			u            domain.Usage
			metadataJSON []byte
		)
		if err := rows.Scan(
			&u.ID,
			&u.CampaignID,
			&u.CustomerID,
			&u.OrderableType,
			&u.OrderableID,
			&u.AmountApplied,
			&u.UsedAt,
			&metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		if err := unmarshalMetadata(metadataJSON, &u.Metadata); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return usages, nil
}
