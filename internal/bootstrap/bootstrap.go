package bootstrap

import (
	"github.com/PBH-BTN/pbh-adapter-deluge/config"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/blocklist"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/sqlite"
	"go.uber.org/zap"
)

// InitializeCore opens the database and restores the persisted blocklist.
// The caller owns the returned DB.
func InitializeCore(cfg *config.Config) (*sqlite.DB, *blocklist.Manager, error) {
	db, err := sqlite.Open(cfg.SqliteDbPath)
	if err != nil {
		return nil, nil, err
	}

	manager, err := blocklist.NewManager(db, cfg.FilterCacheSize)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	// Restore persisted blocklist
	if err := manager.Load(); err != nil {
		db.Close()
		return nil, nil, err
	}

	zap.L().Info("Adapter core bootstrapped successfully.", zap.Int("blocked", manager.Snapshot().Size))
	return db, manager, nil
}
