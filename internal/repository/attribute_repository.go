package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

// AttributeRepo is the attribute store for the loyalty fields of a customer:
// spend figures, tier, manual override flag and last sync time. Rows are
// created lazily with an upsert; reading a customer that was never synced
// returns ErrNotFound.
//
// Writes are per-customer and last-writer-wins, which is safe because every
// value is a deterministic function of order data, never an accumulator.
type AttributeRepo struct {
	db *sql.DB
}

// NewAttributeRepo returns an AttributeRepo bound to the provided database.
func NewAttributeRepo(db *sql.DB) *AttributeRepo { return &AttributeRepo{db: db} }

// Get fetches the loyalty attributes of one customer.
func (r *AttributeRepo) Get(ctx context.Context, customerID uint64) (model.CustomerAttributes, error) {
	var (
		a        model.CustomerAttributes
		yearly   string
		lifetime string
		tier     string
		synced   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT customer_id, yearly_spend, lifetime_spend, tier, manual_override, last_synced_at
		FROM customer_attributes WHERE customer_id = ? LIMIT 1`, customerID,
	).Scan(&a.CustomerID, &yearly, &lifetime, &tier, &a.ManualOverride, &synced)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.YearlySpend = parseAmount(yearly)
	a.LifetimeSpend = parseAmount(lifetime)
	a.Tier = model.ParseTier(tier)
	if synced.Valid {
		t := synced.Time
		a.LastSyncedAt = &t
	}
	return a, nil
}

// GetTier returns just the current tier of a customer. A customer without a
// row has TierNone. This is the hot path at checkout, so it reads a single
// column.
func (r *AttributeRepo) GetTier(ctx context.Context, customerID uint64) (model.Tier, error) {
	var tier string
	err := r.db.QueryRowContext(ctx,
		`SELECT tier FROM customer_attributes WHERE customer_id = ? LIMIT 1`, customerID,
	).Scan(&tier)
	if err == sql.ErrNoRows {
		return model.TierNone, nil
	}
	if err != nil {
		return model.TierNone, err
	}
	return model.ParseTier(tier), nil
}

// SetSpend writes the recomputed spend figures, creating the row when
// missing. The tier column is untouched here: spend is always refreshed,
// even for overridden customers.
func (r *AttributeRepo) SetSpend(ctx context.Context, customerID uint64, yearly, lifetime decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customer_attributes (customer_id, yearly_spend, lifetime_spend, tier)
		VALUES (?, ?, ?, 'None')
		ON DUPLICATE KEY UPDATE yearly_spend = VALUES(yearly_spend), lifetime_spend = VALUES(lifetime_spend)`,
		customerID, yearly.StringFixed(2), lifetime.StringFixed(2))
	return err
}

// SetTier writes a new tier and stamps last_synced_at.
func (r *AttributeRepo) SetTier(ctx context.Context, customerID uint64, tier model.Tier, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customer_attributes (customer_id, yearly_spend, lifetime_spend, tier, last_synced_at)
		VALUES (?, 0, 0, ?, ?)
		ON DUPLICATE KEY UPDATE tier = VALUES(tier), last_synced_at = VALUES(last_synced_at)`,
		customerID, tier.String(), syncedAt.UTC())
	return err
}

// SetManualOverride toggles the operator override flag. When enabled, sync
// runs keep refreshing spend but leave the tier alone.
func (r *AttributeRepo) SetManualOverride(ctx context.Context, customerID uint64, override bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customer_attributes (customer_id, yearly_spend, lifetime_spend, tier, manual_override)
		VALUES (?, 0, 0, 'None', ?)
		ON DUPLICATE KEY UPDATE manual_override = VALUES(manual_override)`,
		customerID, override)
	return err
}
