package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

const settingsKey = "loyalty_settings"

// SettingsRepo persists the operator-tunable configuration as a single JSON
// document in the settings table, keyed by name. Defaults are served when
// nothing has been saved yet, so a fresh install works without a setup step.
type SettingsRepo struct {
	db *sql.DB
}

// NewSettingsRepo returns a SettingsRepo bound to the provided database.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Load reads the current settings, normalized. Missing row means defaults.
func (r *SettingsRepo) Load(ctx context.Context) (model.Settings, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE name = ? LIMIT 1`, settingsKey,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	var s model.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.Normalize()
	return s, nil
}

// Save stores the settings after normalizing and validating the threshold
// table, so a broken table can never reach a sync run through this path.
func (r *SettingsRepo) Save(ctx context.Context, s model.Settings) error {
	s.Normalize()
	if err := s.Thresholds.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)`,
		settingsKey, raw)
	return err
}
