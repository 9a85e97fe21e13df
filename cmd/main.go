package main

import (
	"log/slog"
	"os"

	"github.com/Anvoria/sessionly/internal/config"
	"github.com/Anvoria/sessionly/internal/server"
)

func main() {
	envConfig := config.LoadEnv()

	cfg, err := config.Load(envConfig.ConfigPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := server.Start(cfg, envConfig); err != nil {
		os.Exit(1)
	}
}
