package server

import (
	"fmt"
	"log/slog"

	"github.com/Anvoria/sessionly/internal/cache"
	"github.com/Anvoria/sessionly/internal/config"
	"github.com/Anvoria/sessionly/internal/database"
	"github.com/Anvoria/sessionly/internal/domain/auth"
	"github.com/Anvoria/sessionly/internal/domain/session"
	"github.com/Anvoria/sessionly/internal/domain/user"
	"github.com/Anvoria/sessionly/internal/janitor"
)

// Components is the wired session stack shared by the server and the CLI
type Components struct {
	KeyStore    *auth.KeyStore
	Users       *user.Service
	Sessions    *session.Manager
	Revocations *cache.TokenRevocationCache
	Janitor     *janitor.Scheduler
}

// NewComponents builds the session stack on top of database.DB and, when
// Redis is configured, cache.RedisClient. Both must be connected first.
func NewComponents(cfg *config.Config, envConfig *config.Environment) (*Components, error) {
	keyStore, err := auth.LoadKeyStore(&cfg.Auth, envConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}

	activeKey, err := keyStore.GetActiveKey()
	if err != nil {
		return nil, fmt.Errorf("active key with KID %s not found in key store: %w", cfg.Auth.ActiveKID, err)
	}
	keyID, _ := activeKey.KeyID()
	slog.Info("Active key loaded", "key_id", keyID, "keys", keyStore.KeySet.Len())

	refreshSecret, err := config.LoadRefreshSecret(envConfig.RefreshSecret, envConfig.Environment)
	if err != nil {
		return nil, err
	}

	signer, err := auth.NewSigner(keyStore, refreshSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Session.AccessTTL.Std())
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	userService := user.NewService(user.NewRepository(database.DB))

	c := &Components{
		KeyStore: keyStore,
		Users:    userService,
	}

	opts := []session.Option{session.WithDirectory(userService)}
	var locker janitor.Locker
	if cfg.Redis.Enabled() && cache.RedisClient != nil {
		c.Revocations = cache.NewTokenRevocationCache(cache.RedisClient)
		opts = []session.Option{
			session.WithDirectory(cache.NewDirectoryCache(cache.RedisClient, userService)),
			session.WithRevocationNotifier(c.Revocations),
		}
		locker = cache.NewLocker(cache.RedisClient)
	} else {
		slog.Warn("Redis disabled, revoked sessions keep access until their access token expires")
	}

	c.Sessions = session.NewManager(
		session.NewRepository(database.DB),
		signer,
		sessionConfig(&cfg.Session),
		opts...,
	)
	c.Janitor = janitor.NewScheduler(c.Sessions, cfg.Janitor, locker)

	return c, nil
}

// RevocationChecker returns the cache as an auth.RevocationChecker, or nil
// without Redis so the middleware skips the check.
func (c *Components) RevocationChecker() auth.RevocationChecker {
	if c.Revocations == nil {
		return nil
	}
	return c.Revocations
}

func sessionConfig(cfg *config.SessionConfig) session.Config {
	return session.Config{
		AccessTTL:        cfg.AccessTTL.Std(),
		RefreshTTL:       cfg.RefreshTTL.Std(),
		MaxActivePerUser: cfg.MaxActivePerUser,
		Retention:        cfg.Retention.Std(),
		StoreTimeout:     cfg.StoreTimeout.Std(),
	}
}
