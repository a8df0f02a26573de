package blocklist

import (
	"encoding/json"
	"fmt"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"go.uber.org/zap"
)

const ConfKeyBlocklist = "blocklist"

// ConfigStore persists plugin config keys.
type ConfigStore interface {
	SaveConfig(cfg map[string]json.RawMessage) error
}

// Config returns the plugin config as exposed over RPC.
func (m *Manager) Config() types.ConfigResponse {
	return types.ConfigResponse{Blocklist: m.Snapshot().IPs}
}

// SetConfig stores every key of cfg. A "blocklist" key replaces the ban list.
func (m *Manager) SetConfig(store ConfigStore, cfg map[string]json.RawMessage) error {
	if raw, ok := cfg[ConfKeyBlocklist]; ok {
		var ips []string
		if err := json.Unmarshal(raw, &ips); err != nil {
			return fmt.Errorf("invalid %s config value: %w", ConfKeyBlocklist, err)
		}
		if err := m.Replace(ips); err != nil {
			return err
		}
	}

	if err := store.SaveConfig(cfg); err != nil {
		zap.L().Error("Failed to save plugin config", zap.Error(err))
		return err
	}
	zap.L().Info("Plugin config saved", zap.Int("keys", len(cfg)))
	return nil
}
