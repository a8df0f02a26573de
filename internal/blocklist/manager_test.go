package blocklist

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/sqlite"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "adapter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := NewManager(db, 16)
	require.NoError(t, err)
	require.NoError(t, m.Load())
	return m, db
}

func TestBanIsIncremental(t *testing.T) {
	m, _ := newTestManager(t)

	added, err := m.Ban([]string{"1.2.3.4", "5.6.7.8", "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = m.Ban([]string{"5.6.7.8"})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	added, err = m.Ban([]string{"2001:db8::1"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	snap := m.Snapshot()
	assert.Equal(t, 3, snap.Size)
	assert.Equal(t, []string{"1.2.3.4", "5.6.7.8", "2001:db8::1"}, snap.IPs)
}

func TestUnbanRemovesOnlyPresent(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Ban([]string{"1.2.3.4", "5.6.7.8", "9.9.9.9"})
	require.NoError(t, err)

	removed, err := m.Unban([]string{"5.6.7.8", "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"1.2.3.4", "9.9.9.9"}, m.Snapshot().IPs)
	assert.False(t, m.IsBlocked("5.6.7.8"))
	assert.True(t, m.IsBlocked("9.9.9.9"))
}

func TestReplaceIsWholesale(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Ban([]string{"1.2.3.4"})
	require.NoError(t, err)

	require.NoError(t, m.Replace([]string{"5.6.7.8", "::ffff:9.9.9.9"}))
	assert.Equal(t, []string{"5.6.7.8", "9.9.9.9"}, m.Snapshot().IPs)
	assert.False(t, m.IsBlocked("1.2.3.4"))
	assert.True(t, m.IsBlocked("9.9.9.9"))
}

func TestInvalidIPRejectsWholeCall(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Ban([]string{"1.2.3.4"})
	require.NoError(t, err)

	_, err = m.Ban([]string{"5.6.7.8", "not-an-ip", "300.1.1.1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-ip")
	assert.Contains(t, err.Error(), "300.1.1.1")

	require.Error(t, m.Replace([]string{"bogus"}))
	assert.Equal(t, []string{"1.2.3.4"}, m.Snapshot().IPs)
}

func TestIsBlockedCacheIsInvalidated(t *testing.T) {
	m, _ := newTestManager(t)

	assert.False(t, m.IsBlocked("1.2.3.4"))
	_, err := m.Ban([]string{"1.2.3.4"})
	require.NoError(t, err)
	assert.True(t, m.IsBlocked("1.2.3.4"))
	assert.False(t, m.IsBlocked("1.2.3.5"))
	assert.False(t, m.IsBlocked("garbage"))
}

func TestStateSurvivesReload(t *testing.T) {
	m, db := newTestManager(t)
	_, err := m.Ban([]string{"1.2.3.4", "5.6.7.8"})
	require.NoError(t, err)
	_, err = m.Unban([]string{"1.2.3.4"})
	require.NoError(t, err)

	restored, err := NewManager(db, 16)
	require.NoError(t, err)
	require.NoError(t, restored.Load())
	assert.Equal(t, []string{"5.6.7.8"}, restored.Snapshot().IPs)
	assert.True(t, restored.IsBlocked("5.6.7.8"))
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	m, _ := newTestManager(t)

	var sizes []int
	m.OnChange(func(snap types.BlocklistResponse) {
		sizes = append(sizes, snap.Size)
	})

	_, err := m.Ban([]string{"1.2.3.4"})
	require.NoError(t, err)
	_, err = m.Ban([]string{"1.2.3.4"}) // no change, no notification
	require.NoError(t, err)
	require.NoError(t, m.Replace(nil))

	assert.Equal(t, []int{1, 0}, sizes)
}

func TestSetConfigReplacesBlocklist(t *testing.T) {
	m, db := newTestManager(t)

	err := m.SetConfig(db, map[string]json.RawMessage{
		ConfKeyBlocklist: json.RawMessage(`["1.1.1.1","2.2.2.2"]`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, m.Config().Blocklist)

	stored, err := db.LoadConfig()
	require.NoError(t, err)
	assert.JSONEq(t, `["1.1.1.1","2.2.2.2"]`, string(stored[ConfKeyBlocklist]))

	err = m.SetConfig(db, map[string]json.RawMessage{
		ConfKeyBlocklist: json.RawMessage(`"nope"`),
	})
	require.Error(t, err)
}
