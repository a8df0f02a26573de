package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB persists the adapter core state: the ban list and the plugin config.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and bootstraps the schema.
func Open(dbPath string) (*DB, error) {
	zap.L().Info("Initializing SQLite database", zap.String("dbPath", dbPath))

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		zap.L().Error("Failed to open SQLite database", zap.String("dbPath", dbPath), zap.Error(err))
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(1 * time.Hour)

	zap.L().Debug("Setting up SQLite connection pool",
		zap.Int("maxOpenConns", 1),
		zap.Int("maxIdleConns", 1),
		zap.Duration("connMaxLifetime", 1*time.Hour),
	)

	d := &DB{db: db}
	if err := d.bootstrapSchema(); err != nil {
		zap.L().Error("Failed to initialize SQLite schema", zap.Error(err))
		_ = db.Close()
		return nil, err
	}

	zap.L().Info("SQLite initialization complete")
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) bootstrapSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocked_ips (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		ip TEXT NOT NULL UNIQUE,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS plugin_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := d.db.Exec(schema)
	if err != nil {
		zap.L().Error("Failed to execute schema statement", zap.Error(err))
		return fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return nil
}
