package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/panel"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/plugin"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/scheduler"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *syncBuffer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}

type listClient struct {
	mu  sync.Mutex
	ips []string
	n   int
}

func (c *listClient) set(ips ...string) {
	c.mu.Lock()
	c.ips = ips
	c.mu.Unlock()
}

func (c *listClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *listClient) GetBlocklist(ctx context.Context) (*types.BlocklistResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	ips := append([]string{}, c.ips...)
	return &types.BlocklistResponse{Size: len(ips), IPs: ips}, nil
}

type scriptReader struct {
	lines []string
}

func (s *scriptReader) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func TestTableViewRendersRows(t *testing.T) {
	var out bytes.Buffer
	NewTableView(&out).Render(panel.ViewModel{
		Title:      "PeerBanHelperAdapter",
		Fieldset:   "Blocklist",
		Columns:    []panel.Column{{Header: "IP", Editable: true}},
		Rows:       []panel.Row{{IP: "1.2.3.4"}, {IP: "5.6.7.8"}},
		EmptyText:  "No IP addresses blocklisted.",
		ButtonText: "Update Block list",
	})

	text := out.String()
	assert.Contains(t, text, "PeerBanHelperAdapter")
	assert.Contains(t, text, "[Blocklist]")
	assert.Contains(t, text, "IP*")
	assert.Contains(t, text, "   0  1.2.3.4\n")
	assert.Contains(t, text, "   1  5.6.7.8\n")
	assert.Contains(t, text, "[ Update Block list ]")
	assert.NotContains(t, text, "No IP addresses blocklisted.")
	assert.Less(t, strings.Index(text, "1.2.3.4"), strings.Index(text, "5.6.7.8"))
}

func TestTableViewRendersEmptyText(t *testing.T) {
	var out bytes.Buffer
	NewTableView(&out).Render(panel.ViewModel{
		Title:      "PeerBanHelperAdapter",
		Fieldset:   "Blocklist",
		Columns:    []panel.Column{{Header: "IP", Editable: true}},
		EmptyText:  "No IP addresses blocklisted.",
		ButtonText: "Update Block list",
	})
	assert.Contains(t, out.String(), "No IP addresses blocklisted.")
}

func mountBlocklist(t *testing.T, client *listClient) (*Preferences, *plugin.Manager, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	prefs := NewPreferences(out)
	m := plugin.NewManager(Host{Prefs: prefs})
	require.NoError(t, plugin.Register(m, client, scheduler.NewRunner(clock.NewMock())))
	require.NoError(t, m.Enable(context.Background(), types.PluginName))
	t.Cleanup(func() { _ = m.DisableAll() })
	return prefs, m, out
}

func TestPreferencesMountAndShow(t *testing.T) {
	client := &listClient{}
	client.set("1.2.3.4", "5.6.7.8")
	prefs, m, out := mountBlocklist(t, client)

	assert.Equal(t, []string{"PeerBanHelperAdapter"}, prefs.Titles())

	// The first timer run has been issued on enable; wait until it landed.
	page := prefs.Page(panel.PageTitle).(*panel.Panel)
	require.Eventually(t, func() bool { return page.Store().Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, out.String(), "nothing is drawn before first layout")

	require.NoError(t, prefs.Show(panel.PageTitle))
	assert.Contains(t, out.String(), "5.6.7.8")

	require.NoError(t, m.Disable(types.PluginName))
	assert.Empty(t, prefs.Titles())
	assert.Error(t, prefs.Show(panel.PageTitle))
}

func TestConsoleCommands(t *testing.T) {
	client := &listClient{}
	client.set("1.2.3.4")
	prefs, _, out := mountBlocklist(t, client)
	page := prefs.Page(panel.PageTitle).(*panel.Panel)
	require.Eventually(t, func() bool { return page.Store().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, prefs.Show(panel.PageTitle))

	console := NewConsole(prefs, out)

	callsBefore := client.calls()
	out.Reset()
	require.NoError(t, console.Exec("edit 0 9.9.9.9"))
	assert.Contains(t, out.String(), "9.9.9.9")
	assert.Equal(t, callsBefore, client.calls(), "edit must not hit the backend")

	client.set("5.6.7.8", "6.7.8.9")
	require.NoError(t, console.Exec("refresh"))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "6.7.8.9") }, 2*time.Second, 5*time.Millisecond)

	assert.Error(t, console.Exec("edit 7 1.1.1.1"))
	assert.Error(t, console.Exec("edit x 1.1.1.1"))
	assert.Error(t, console.Exec("bogus"))
	assert.NoError(t, console.Exec("   "))
}

func TestConsoleRunStopsOnQuit(t *testing.T) {
	client := &listClient{}
	prefs, _, out := mountBlocklist(t, client)
	console := NewConsole(prefs, out)

	err := console.Run(context.Background(), &scriptReader{lines: []string{"help", "nope", "quit", "refresh"}})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "edit <row> <ip>")
	assert.Contains(t, out.String(), `error: unknown command "nope"`)
}
