package plugin

import (
	"context"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/panel"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
)

// BlocklistPlugin mounts the blocklist panel while enabled.
type BlocklistPlugin struct {
	client panel.BlocklistClient
	runner panel.TaskScheduler

	page *panel.Panel
}

// NewBlocklistFactory returns a factory for the plugin bound to client and runner.
func NewBlocklistFactory(client panel.BlocklistClient, runner panel.TaskScheduler) Factory {
	return func() Plugin {
		return &BlocklistPlugin{client: client, runner: runner}
	}
}

// Register registers the blocklist plugin under its fixed name.
func Register(m *Manager, client panel.BlocklistClient, runner panel.TaskScheduler) error {
	return m.RegisterPlugin(types.PluginName, NewBlocklistFactory(client, runner))
}

func (b *BlocklistPlugin) OnEnable(ctx context.Context, host Host) error {
	page := panel.New(b.client, b.runner)
	page.Initialize(ctx)
	host.Preferences().AddPage(page)
	b.page = page
	return nil
}

func (b *BlocklistPlugin) OnDisable(host Host) error {
	if b.page == nil {
		return nil
	}
	host.Preferences().RemovePage(b.page)
	b.page.Teardown()
	b.page = nil
	return nil
}

// Page returns the mounted panel, nil while disabled.
func (b *BlocklistPlugin) Page() *panel.Panel {
	return b.page
}
