package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

// SpendRepo aggregates per-customer spend from completed orders. It is the
// engine's read-only view of the order store: yearly net spend over the
// trailing year, lifetime net spend over everything.
//
// Batches are ordered by customer id ascending. That ordering, not the
// freshness of the amounts, is what makes a run resumable: a fetch repeated
// at the same offset sees the same customers even while new orders land.
type SpendRepo struct {
	db *sql.DB
}

// NewSpendRepo returns a SpendRepo bound to the provided database.
func NewSpendRepo(db *sql.DB) *SpendRepo { return &SpendRepo{db: db} }

// CountCandidates returns the number of distinct customers with at least one
// completed order.
func (r *SpendRepo) CountCandidates(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT customer_id) FROM orders WHERE status = 'completed'`,
	).Scan(&n)
	return n, err
}

// FetchBatch returns up to limit spend aggregates starting at offset.
func (r *SpendRepo) FetchBatch(ctx context.Context, offset, limit int) ([]model.SpendAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT customer_id,
		       ROUND(SUM(CASE
		           WHEN created_at >= DATE_SUB(UTC_TIMESTAMP(), INTERVAL 1 YEAR)
		           THEN net_total ELSE 0
		       END), 2) AS yearly_spend,
		       ROUND(SUM(net_total), 2) AS lifetime_spend
		FROM orders
		WHERE status = 'completed'
		GROUP BY customer_id
		ORDER BY customer_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SpendAggregate
	for rows.Next() {
		var agg model.SpendAggregate
		var yearly, lifetime string
		if err := rows.Scan(&agg.CustomerID, &yearly, &lifetime); err != nil {
			return nil, err
		}
		agg.YearlySpend = parseAmount(yearly)
		agg.LifetimeSpend = parseAmount(lifetime)
		out = append(out, agg)
	}
	return out, rows.Err()
}

// FetchCustomer recomputes the aggregates for a single customer, used by the
// per-order resync path. A customer with no completed orders yields zeros.
func (r *SpendRepo) FetchCustomer(ctx context.Context, customerID uint64) (model.SpendAggregate, error) {
	agg := model.SpendAggregate{CustomerID: customerID, YearlySpend: decimal.Zero, LifetimeSpend: decimal.Zero}
	var yearly, lifetime sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT ROUND(SUM(CASE
		           WHEN created_at >= DATE_SUB(UTC_TIMESTAMP(), INTERVAL 1 YEAR)
		           THEN net_total ELSE 0
		       END), 2),
		       ROUND(SUM(net_total), 2)
		FROM orders
		WHERE status = 'completed' AND customer_id = ?`, customerID,
	).Scan(&yearly, &lifetime)
	if err != nil {
		return agg, err
	}
	if yearly.Valid {
		agg.YearlySpend = parseAmount(yearly.String)
	}
	if lifetime.Valid {
		agg.LifetimeSpend = parseAmount(lifetime.String)
	}
	return agg, nil
}

// parseAmount coerces a DB decimal string to a Decimal, treating malformed
// values as zero rather than failing the whole batch.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
