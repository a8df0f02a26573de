package main

import (
	"sync"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/bootstrap"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/rpcserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the blocklist over the Deluge web JSON endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup("core")
		defer zap.L().Sync()

		rootCtx, rootCancel := rootContext()
		defer rootCancel()

		zap.L().Info("PeerBanHelper adapter starting up...")

		db, manager, err := bootstrap.InitializeCore(cfg)
		if err != nil {
			zap.L().Error("Startup failed", zap.Error(err))
			return err
		}
		defer db.Close()

		server, err := rpcserver.New(cfg, manager, db)
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		errChan := make(chan error, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(rootCtx); err != nil {
				errChan <- err
				rootCancel()
			}
		}()

		<-rootCtx.Done()
		zap.L().Info("Shutdown signal received, waiting for goroutines...")
		wg.Wait()
		zap.L().Info("All goroutines finished, exiting")

		select {
		case err := <-errChan:
			return err
		default:
			return nil
		}
	},
}
