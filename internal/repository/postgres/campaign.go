package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/discounts/internal/domain"
	"github.com/utafrali/discounts/internal/repository"
	"github.com/utafrali/discounts/pkg/database"
	apperrors "github.com/utafrali/discounts/pkg/errors"
)

const campaignColumns = `id, code, name, description, discount_type, discount_value,
	   start_date, end_date, is_active, priority, is_stackable,
	   max_uses_total, max_uses_per_customer, current_uses, metadata,
	   created_at, updated_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db database.DBTX
}

// NewCampaignRepository creates a new PostgreSQL-backed campaign repository.
func NewCampaignRepository(db database.DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a campaign together with its conditions and targets in one
// transaction. Any failure rolls the whole unit back and re-raises.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create campaign: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal campaign metadata: %w", err)
	}

	query := `
		INSERT INTO discount_campaigns (
			id, code, name, description, discount_type, discount_value,
			start_date, end_date, is_active, priority, is_stackable,
			max_uses_total, max_uses_per_customer, current_uses, metadata,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = tx.Exec(ctx, query,
		c.ID,
		c.Code,
		c.Name,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.StartDate,
		c.EndDate,
		c.IsActive,
		c.Priority,
		c.IsStackable,
		c.MaxUsesTotal,
		c.MaxUsesPerCustomer,
		c.CurrentUses,
		metadataJSON,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "code", codeString(c.Code))
		}
		return fmt.Errorf("insert campaign: %w", err)
	}

	if err := insertChildren(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign with conditions and targets loaded.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM discount_campaigns WHERE id = $1`, campaignColumns)
	c, err := r.scanCampaign(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, []*domain.Campaign{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// GetByCode retrieves a campaign by its coupon code.
func (r *CampaignRepository) GetByCode(ctx context.Context, code string) (*domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM discount_campaigns WHERE code = $1`, campaignColumns)
	c, err := r.scanCampaign(ctx, query, code)
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, []*domain.Campaign{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns campaigns matching the given filter with the total count.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *filter.IsActive)
		argIndex++
	}

	if filter.DiscountType != nil {
		conditions = append(conditions, fmt.Sprintf("discount_type = $%d", argIndex))
		args = append(args, *filter.DiscountType)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM discount_campaigns
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		campaignColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns  []domain.Campaign
		totalCount int
	)

	for rows.Next() {
		var (
			c            domain.Campaign
			metadataJSON []byte
		)
		if err := scanCampaignRow(rows, &c, &metadataJSON, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("scan campaign row: %w", err)
		}
		if err := unmarshalMetadata(metadataJSON, &c.Metadata); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}

	refs := make([]*domain.Campaign, len(campaigns))
	for i := range campaigns {
		refs[i] = &campaigns[i]
	}
	if err := r.loadChildren(ctx, refs); err != nil {
		return nil, 0, err
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	return campaigns, totalCount, nil
}

// Update modifies a campaign and replaces its conditions and targets in one
// transaction.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update campaign: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal campaign metadata: %w", err)
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE discount_campaigns
		SET code = $1, name = $2, description = $3, discount_type = $4,
		    discount_value = $5, start_date = $6, end_date = $7, is_active = $8,
		    priority = $9, is_stackable = $10, max_uses_total = $11,
		    max_uses_per_customer = $12, metadata = $13, updated_at = $14
		WHERE id = $15`

	ct, err := tx.Exec(ctx, query,
		c.Code,
		c.Name,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.StartDate,
		c.EndDate,
		c.IsActive,
		c.Priority,
		c.IsStackable,
		c.MaxUsesTotal,
		c.MaxUsesPerCustomer,
		metadataJSON,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "code", codeString(c.Code))
		}
		return fmt.Errorf("update campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", c.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM discount_conditions WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("delete campaign conditions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM discount_targets WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("delete campaign targets: %w", err)
	}
	if err := insertChildren(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update campaign: %w", err)
	}
	return nil
}

// Delete removes a campaign; conditions and targets cascade at the schema
// level, usage history survives.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM discount_campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", id)
	}
	return nil
}

// Deactivate switches a campaign off without deleting it.
func (r *CampaignRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE discount_campaigns SET is_active = false, updated_at = NOW() WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", id)
	}
	return nil
}

// FindActiveInRange returns active campaigns whose window contains now,
// priority-descending, with conditions and targets loaded. The ordering tie
// break on created_at keeps equal priorities stable across calls.
func (r *CampaignRepository) FindActiveInRange(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM discount_campaigns
		WHERE is_active = true AND start_date <= $1 AND end_date >= $1
		ORDER BY priority DESC, created_at ASC`, campaignColumns)

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("find active campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		var (
			c            domain.Campaign
			metadataJSON []byte
		)
		if err := scanCampaignRow(rows, &c, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan campaign row: %w", err)
		}
		if err := unmarshalMetadata(metadataJSON, &c.Metadata); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign rows: %w", err)
	}

	refs := make([]*domain.Campaign, len(campaigns))
	for i := range campaigns {
		refs[i] = &campaigns[i]
	}
	if err := r.loadChildren(ctx, refs); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// insertChildren writes a campaign's conditions and targets inside the given
// transaction.
func insertChildren(ctx context.Context, tx pgx.Tx, c *domain.Campaign) error {
	for i := range c.Conditions {
		cond := &c.Conditions[i]
		valueJSON, err := json.Marshal(cond.Value)
		if err != nil {
			return fmt.Errorf("marshal condition value: %w", err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO discount_conditions (campaign_id, condition_type, operator, value, logic_operator, priority)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			c.ID, cond.Type, nullString(string(cond.Operator)), valueJSON,
			nullString(string(cond.LogicOperator)), cond.Priority,
		).Scan(&cond.ID)
		if err != nil {
			return fmt.Errorf("insert campaign condition: %w", err)
		}
		cond.CampaignID = c.ID
	}

	for i := range c.Targets {
		t := &c.Targets[i]
		metadataJSON, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshal target metadata: %w", err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO discount_targets (campaign_id, targetable_type, targetable_id, target_action, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			c.ID, t.Type, t.TargetableID, t.Action, metadataJSON,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("insert campaign target: %w", err)
		}
		t.CampaignID = c.ID
	}
	return nil
}

// loadChildren attaches conditions and targets to the given campaigns with
// one query per child table.
func (r *CampaignRepository) loadChildren(ctx context.Context, campaigns []*domain.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}

	ids := make([]string, len(campaigns))
	byID := make(map[string]*domain.Campaign, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	condRows, err := r.db.Query(ctx, `
		SELECT id, campaign_id, condition_type, operator, value, logic_operator, priority
		FROM discount_conditions
		WHERE campaign_id = ANY($1)
		ORDER BY priority ASC, id ASC`, ids)
	if err != nil {
		return fmt.Errorf("load campaign conditions: %w", err)
	}
	defer condRows.Close()

	for condRows.Next() {
		var (
			cond      domain.Condition
			operator  *string
			logicOp   *string
			valueJSON []byte
		)
		if err := condRows.Scan(&cond.ID, &cond.CampaignID, &cond.Type, &operator, &valueJSON, &logicOp, &cond.Priority); err != nil {
			return fmt.Errorf("scan condition row: %w", err)
		}
		if operator != nil {
			cond.Operator = domain.Operator(*operator)
		}
		if logicOp != nil {
			cond.LogicOperator = domain.LogicOperator(*logicOp)
		}
		if valueJSON != nil {
			if err := json.Unmarshal(valueJSON, &cond.Value); err != nil {
				return fmt.Errorf("unmarshal condition value: %w", err)
			}
		}
		if c, ok := byID[cond.CampaignID]; ok {
			c.Conditions = append(c.Conditions, cond)
		}
	}
	if err := condRows.Err(); err != nil {
		return fmt.Errorf("iterate condition rows: %w", err)
	}

	targetRows, err := r.db.Query(ctx, `
		SELECT id, campaign_id, targetable_type, targetable_id, target_action, metadata
		FROM discount_targets
		WHERE campaign_id = ANY($1)
		ORDER BY id ASC`, ids)
	if err != nil {
		return fmt.Errorf("load campaign targets: %w", err)
	}
	defer targetRows.Close()

	for targetRows.Next() {
		var (
			t            domain.Target
			metadataJSON []byte
		)
		if err := targetRows.Scan(&t.ID, &t.CampaignID, &t.Type, &t.TargetableID, &t.Action, &metadataJSON); err != nil {
			return fmt.Errorf("scan target row: %w", err)
		}
		if err := unmarshalMetadata(metadataJSON, &t.Metadata); err != nil {
			return err
		}
		if c, ok := byID[t.CampaignID]; ok {
			c.Targets = append(c.Targets, t)
		}
	}
	if err := targetRows.Err(); err != nil {
		return fmt.Errorf("iterate target rows: %w", err)
	}

	return nil
}

// scanCampaignRow scans one campaign row into c; extra receives trailing
// columns such as a windowed total count.
func scanCampaignRow(row pgx.Rows, c *domain.Campaign, metadataJSON *[]byte, extra ...any) error {
	dest := []any{
		&c.ID,
		&c.Code,
		&c.Name,
		&c.Description,
		&c.DiscountType,
		&c.DiscountValue,
		&c.StartDate,
		&c.EndDate,
		&c.IsActive,
		&c.Priority,
		&c.IsStackable,
		&c.MaxUsesTotal,
		&c.MaxUsesPerCustomer,
		&c.CurrentUses,
		metadataJSON,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// scanCampaign executes a query expected to return a single campaign row.
func (r *CampaignRepository) scanCampaign(ctx context.Context, query string, args ...any) (*domain.Campaign, error) {
	var (
		c            domain.Campaign
		metadataJSON []byte
	)

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&c.Description,
		&c.DiscountType,
		&c.DiscountValue,
		&c.StartDate,
		&c.EndDate,
		&c.IsActive,
		&c.Priority,
		&c.IsStackable,
		&c.MaxUsesTotal,
		&c.MaxUsesPerCustomer,
		&c.CurrentUses,
		&metadataJSON,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}

	if err := unmarshalMetadata(metadataJSON, &c.Metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

func unmarshalMetadata(data []byte, dst *map[string]any) error {
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func codeString(code *string) string {
	if code == nil {
		return ""
	}
	return *code
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
