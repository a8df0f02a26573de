package utils

import (
	"context"
	"time"

	zaploki "github.com/DavidMuth/zap-loki"
	"github.com/PBH-BTN/pbh-adapter-deluge/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func InitLogger(cfg *config.Config, component string) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	// The interactive panel owns stdout.
	if component == "panel" {
		zapConfig.OutputPaths = []string{"stderr"}
	}

	var logger *zap.Logger
	var err error

	if cfg.LogToLoki {
		loki := zaploki.New(context.Background(), zaploki.Config{
			Url:          cfg.LokiAddress,
			BatchMaxSize: 1000,
			BatchMaxWait: 10 * time.Second,
			Labels: map[string]string{
				"app":       "pbh_adapter_deluge",
				"component": component,
			},
		})

		logger, err = loki.WithCreateLogger(zapConfig)
		if err != nil {
			panic(err)
		}
	} else {
		logger, err = zapConfig.Build()
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger.With(zap.String("component", component)))
}
