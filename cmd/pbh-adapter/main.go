package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PBH-BTN/pbh-adapter-deluge/config"
	"github.com/PBH-BTN/pbh-adapter-deluge/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "pbh-adapter",
	Short: "PeerBanHelper adapter for Deluge",
	Long: `pbh-adapter serves the PeerBanHelperAdapter blocklist over the Deluge web
JSON endpoint and hosts the blocklist preferences page in a terminal.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, panelCmd)
}

// setup loads .env and the config and installs the global logger.
func setup(component string) *config.Config {
	godotenv.Load()
	cfg := config.Load()
	utils.InitLogger(cfg, component)
	zap.L().Debug("Config loaded", zap.Any("config", cfg.Redacted()))
	return cfg
}

// rootContext is canceled on SIGINT or SIGTERM.
func rootContext() (context.Context, context.CancelFunc) {
	rootCtx, rootCancel := context.WithCancel(context.Background())

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-stopChan:
			zap.L().Info("Received termination signal, shutting down...")
			rootCancel()
		case <-rootCtx.Done():
		}
		signal.Stop(stopChan)
	}()

	return rootCtx, rootCancel
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
