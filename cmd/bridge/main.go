package main

import (
	"flag"

	"pushbridge/internal/config"
	"pushbridge/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}

	if err := logger.Init(cfg.Logging.Path, cfg.Logging.Level); err != nil {
		panic(err)
	}
	defer logger.Info("bridge shutting down")

	bridge, err := SetupBridge(cfg)
	if err != nil {
		logger.Fatal("Failed to set up bridge", zap.Error(err))
	}

	if err := RunBridge(bridge); err != nil {
		logger.Fatal("Bridge error", zap.Error(err))
	}
}
