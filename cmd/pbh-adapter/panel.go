package main

import (
	"errors"
	"sync"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/deluge"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/panel"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/plugin"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/scheduler"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/ui"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/updates"
	"github.com/PBH-BTN/pbh-adapter-deluge/utils"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Show the blocklist preferences page of a Deluge web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup("panel")
		defer zap.L().Sync()

		rootCtx, rootCancel := rootContext()
		defer rootCancel()

		client := deluge.NewClient(utils.NewAPIClient(cfg), cfg.DelugePassword)
		runner := scheduler.NewRunner(nil)
		defer runner.StopAll()

		// Page output goes through readline so the prompt is redrawn after it.
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "pbh> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		prefs := ui.NewPreferences(rl.Stdout())
		plugins := plugin.NewManager(ui.Host{Prefs: prefs})
		if err := plugin.Register(plugins, client, runner); err != nil {
			return err
		}
		if err := plugins.Enable(rootCtx, types.PluginName); err != nil {
			zap.L().Error("Failed to enable plugin", zap.String("plugin", types.PluginName), zap.Error(err))
			return err
		}
		defer func() {
			if err := plugins.DisableAll(); err != nil {
				zap.L().Warn("Failed to disable plugins", zap.Error(err))
			}
		}()

		if err := prefs.Show(panel.PageTitle); err != nil {
			return err
		}

		var wg sync.WaitGroup
		if cfg.PanelWatchUpdates {
			watcher, err := updates.NewWatcher(updates.Options{
				BaseUrl:       client.BaseUrl(),
				Jar:           client.Jar(),
				SkipVerifyTLS: cfg.SkipVerifyTLS,
				Keepalive:     cfg.WsKeepalivePeriod,
				MinBackoff:    cfg.RequestInitBackoff,
				Login:         client.Login,
			})
			if err != nil {
				zap.L().Warn("Update watcher disabled", zap.Error(err))
			} else {
				watcher.OnBlocklist = func(types.BlocklistUpdate) {
					if page, ok := prefs.Page(panel.PageTitle).(*panel.Panel); ok && page != nil {
						page.RefreshFromPush()
					}
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					watcher.Run(rootCtx)
				}()
			}
		}

		go func() {
			<-rootCtx.Done()
			rl.Close()
		}()

		err = ui.NewConsole(prefs, rl.Stdout()).Run(rootCtx, rl)
		if errors.Is(err, readline.ErrInterrupt) {
			err = nil
		}

		rootCancel()
		wg.Wait()
		return err
	},
}
