package sqlite

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "adapter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBlocklistRoundTripKeepsOrder(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.ReplaceBlocklist([]string{"5.6.7.8", "1.2.3.4"}))
	require.NoError(t, db.AddIPs([]string{"9.9.9.9", "1.2.3.4"}))

	ips, err := db.LoadBlocklist()
	require.NoError(t, err)
	require.Equal(t, []string{"5.6.7.8", "1.2.3.4", "9.9.9.9"}, ips)

	require.NoError(t, db.RemoveIPs([]string{"1.2.3.4", "10.0.0.1"}))
	ips, err = db.LoadBlocklist()
	require.NoError(t, err)
	require.Equal(t, []string{"5.6.7.8", "9.9.9.9"}, ips)

	require.NoError(t, db.ReplaceBlocklist(nil))
	ips, err = db.LoadBlocklist()
	require.NoError(t, err)
	require.Empty(t, ips)
}

func TestReplaceBlocklistBatchesLargeLists(t *testing.T) {
	db := openTestDB(t)

	ips := make([]string, 2500)
	for i := range ips {
		ips[i] = fmt.Sprintf("10.%d.%d.1", i/256, i%256)
	}
	require.NoError(t, db.ReplaceBlocklist(ips))
	require.NoError(t, db.RemoveIPs(ips[:1500]))

	loaded, err := db.LoadBlocklist()
	require.NoError(t, err)
	require.Equal(t, ips[1500:], loaded)
}

func TestConfigUpsert(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveConfig(map[string]json.RawMessage{
		"blocklist": json.RawMessage(`["1.2.3.4"]`),
		"note":      json.RawMessage(`"a"`),
	}))
	require.NoError(t, db.SaveConfig(map[string]json.RawMessage{
		"note": json.RawMessage(`"b"`),
	}))

	cfg, err := db.LoadConfig()
	require.NoError(t, err)
	require.JSONEq(t, `"b"`, string(cfg["note"]))
	require.JSONEq(t, `["1.2.3.4"]`, string(cfg["blocklist"]))
}
