package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const maxSQLiteParams = 999 // SQLite's SQLITE_MAX_VARIABLE_NUMBER

// LoadBlocklist returns the persisted ban list in insertion order.
func (d *DB) LoadBlocklist() ([]string, error) {
	rows, err := d.db.Query("SELECT ip FROM blocked_ips ORDER BY seq")
	if err != nil {
		zap.L().Error("Failed to query blocked IPs", zap.Error(err))
		return nil, fmt.Errorf("failed to query blocklist: %w", err)
	}
	defer rows.Close()

	ips := make([]string, 0)
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan blocked ip: %w", err)
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blocklist: %w", err)
	}

	zap.L().Debug("Loaded blocklist from DB", zap.Int("count", len(ips)))
	return ips, nil
}

// ReplaceBlocklist swaps the persisted ban list for ips in one transaction.
func (d *DB) ReplaceBlocklist(ips []string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM blocked_ips"); err != nil {
		return fmt.Errorf("failed to clear blocklist: %w", err)
	}
	if err := insertBatches(tx, ips); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	zap.L().Debug("Persisted blocklist replace", zap.Int("count", len(ips)))
	return nil
}

// AddIPs appends ips to the ban list; IPs already present are kept in place.
func (d *DB) AddIPs(ips []string) error {
	if len(ips) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertBatches(tx, ips); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveIPs deletes ips from the ban list.
func (d *DB) RemoveIPs(ips []string) error {
	if len(ips) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(ips); i += maxSQLiteParams {
		end := i + maxSQLiteParams
		if end > len(ips) {
			end = len(ips)
		}
		batch := ips[i:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
		args := make([]interface{}, len(batch))
		for j, ip := range batch {
			args[j] = ip
		}
		query := fmt.Sprintf("DELETE FROM blocked_ips WHERE ip IN (%s)", placeholders)
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertBatches(tx *sql.Tx, ips []string) error {
	for i := 0; i < len(ips); i += maxSQLiteParams {
		end := i + maxSQLiteParams
		if end > len(ips) {
			end = len(ips)
		}
		batch := ips[i:end]

		placeholders := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch))
		for j, ip := range batch {
			placeholders[j] = "(?)"
			args = append(args, ip)
		}

		query := fmt.Sprintf(
			"INSERT OR IGNORE INTO blocked_ips (ip) VALUES %s",
			strings.Join(placeholders, ", "),
		)
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to execute batch insert: %w", err)
		}
	}
	return nil
}
