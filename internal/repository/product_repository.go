package repository

import (
	"context"
	"database/sql"
)

// ProductRepo exposes the per-product loyalty opt-in flag. Products are
// excluded from the loyalty discount unless an operator has explicitly
// enabled them, so a missing row simply reads as false.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo returns a ProductRepo bound to the provided database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// IsEligible reports whether a product participates in loyalty discounting.
func (r *ProductRepo) IsEligible(ctx context.Context, productID uint64) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx,
		`SELECT loyalty_enabled FROM product_attributes WHERE product_id = ? LIMIT 1`, productID,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// SetEligible stores the operator's opt-in decision for a product.
func (r *ProductRepo) SetEligible(ctx context.Context, productID uint64, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_attributes (product_id, loyalty_enabled)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE loyalty_enabled = VALUES(loyalty_enabled)`,
		productID, enabled)
	return err
}
