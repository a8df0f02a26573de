package sqlite

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// SaveConfig upserts every key of cfg as a JSON value.
func (d *DB) SaveConfig(cfg map[string]json.RawMessage) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO plugin_config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)")
	if err != nil {
		zap.L().Error("Failed to prepare statement for config upsert", zap.Error(err))
		return fmt.Errorf("failed to prepare config upsert: %w", err)
	}
	defer stmt.Close()

	for key, value := range cfg {
		if _, err := stmt.Exec(key, string(value)); err != nil {
			zap.L().Error("Failed to store config key", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("failed to store config key %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadConfig returns all stored config keys.
func (d *DB) LoadConfig() (map[string]json.RawMessage, error) {
	rows, err := d.db.Query("SELECT key, value FROM plugin_config")
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		cfg[key] = json.RawMessage(value)
	}
	return cfg, rows.Err()
}
