package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/scheduler"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePreferences struct {
	mu      sync.Mutex
	pages   []Page
	removed []Page
}

func (f *fakePreferences) AddPage(page Page) Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, page)
	return page
}

func (f *fakePreferences) RemovePage(page Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pages {
		if p == page {
			f.pages = append(f.pages[:i], f.pages[i+1:]...)
			break
		}
	}
	f.removed = append(f.removed, page)
}

type fakeHost struct {
	prefs *fakePreferences
}

func (h fakeHost) Preferences() Preferences {
	return h.prefs
}

type staticClient struct{}

func (staticClient) GetBlocklist(ctx context.Context) (*types.BlocklistResponse, error) {
	return &types.BlocklistResponse{Size: 1, IPs: []string{"1.2.3.4"}}, nil
}

func newTestManager(t *testing.T) (*Manager, *fakePreferences, *scheduler.Runner) {
	t.Helper()
	prefs := &fakePreferences{}
	runner := scheduler.NewRunner(clock.NewMock())
	m := NewManager(fakeHost{prefs: prefs})
	require.NoError(t, Register(m, staticClient{}, runner))
	return m, prefs, runner
}

func TestEnableMountsExactlyOnePage(t *testing.T) {
	m, prefs, runner := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Enable(ctx, types.PluginName))
	require.NoError(t, m.Enable(ctx, types.PluginName))

	require.Len(t, prefs.pages, 1)
	assert.Equal(t, "PeerBanHelperAdapter", prefs.pages[0].Title())
	assert.Equal(t, []string{types.PluginName}, m.Enabled())
	assert.Equal(t, 1, runner.Running())
}

func TestDisableUnmountsAndTearsDown(t *testing.T) {
	m, prefs, runner := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Enable(ctx, types.PluginName))
	page := prefs.pages[0]

	require.NoError(t, m.Disable(types.PluginName))
	assert.Empty(t, prefs.pages)
	require.Len(t, prefs.removed, 1)
	assert.Same(t, page, prefs.removed[0])
	assert.Equal(t, 0, runner.Running())
	assert.Empty(t, m.Enabled())

	// Disabling twice is harmless.
	require.NoError(t, m.Disable(types.PluginName))

	require.NoError(t, m.Enable(ctx, types.PluginName))
	require.Len(t, prefs.pages, 1)
	assert.NotSame(t, page, prefs.pages[0], "re-enable builds a new panel")
	require.NoError(t, m.DisableAll())
}

func TestRegistrationErrors(t *testing.T) {
	m, _, runner := newTestManager(t)

	err := Register(m, staticClient{}, runner)
	require.Error(t, err)
	require.Error(t, m.Enable(context.Background(), "missing"))
	require.Error(t, m.UnregisterPlugin("missing"))
}

type failingPlugin struct{}

func (failingPlugin) OnEnable(ctx context.Context, host Host) error { return errors.New("no surface") }
func (failingPlugin) OnDisable(host Host) error { return nil }

func TestEnableFailurePropagates(t *testing.T) {
	m := NewManager(fakeHost{prefs: &fakePreferences{}})
	require.NoError(t, m.RegisterPlugin("broken", func() Plugin { return failingPlugin{} }))

	err := m.Enable(context.Background(), "broken")
	require.ErrorContains(t, err, "no surface")
	assert.Empty(t, m.Enabled())
}

func TestUnregisterDisablesFirst(t *testing.T) {
	m, prefs, _ := newTestManager(t)
	require.NoError(t, m.Enable(context.Background(), types.PluginName))

	require.NoError(t, m.UnregisterPlugin(types.PluginName))
	assert.Empty(t, prefs.pages)
	require.Error(t, m.Enable(context.Background(), types.PluginName))
}
