package cli

import (
	"context"
	"fmt"

	"github.com/Anvoria/sessionly/internal/cache"
	"github.com/Anvoria/sessionly/internal/config"
	"github.com/Anvoria/sessionly/internal/database"
	"github.com/Anvoria/sessionly/internal/migrations"
)

// LoadConfig reads the environment and the config file it points at
func LoadConfig() (*config.Config, *config.Environment, error) {
	envConfig := config.LoadEnv()
	cfg, err := config.Load(envConfig.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, envConfig, nil
}

// ConnectStores connects the database, runs migrations and connects Redis
// when configured. The returned func closes both.
func ConnectStores(cfg *config.Config) (func(), error) {
	if err := database.ConnectDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	closeAll := func() {
		_ = cache.CloseRedis()
		_ = database.CloseDB()
	}

	if err := migrations.RunMigrations(cfg); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.Redis.Enabled() {
		if err := cache.ConnectRedis(context.Background(), &cfg.Redis); err != nil {
			closeAll()
			return nil, err
		}
	}

	return closeAll, nil
}
