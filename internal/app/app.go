// Package app assembles the try-on client from configuration. The companion server
// and tryonctl share it.
package app

import (
	"database/sql"
	"fmt"

	"jorra-tryon/internal/config"
	"jorra-tryon/internal/db"
	"jorra-tryon/internal/progress"
	"jorra-tryon/internal/services"
	"jorra-tryon/internal/store"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const transferCapacity = 32

type App struct {
	Sessions *services.SessionManager
	Catalog  *services.CatalogService
	TryOn    *services.TryOnService
	Shares   *services.ShareService
	Admin    *services.AdminService

	database *sql.DB
}

// New wires every service against cfg. onTick receives progress snapshots while a
// generation runs and may be nil.
func New(cfg config.Config, onTick func(progress.Snapshot), logger zerolog.Logger) (*App, error) {
	creds, database, err := openCredentialStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), max(cfg.RateLimitBurst, 1))
	}
	api := services.NewAPIClient(cfg.APIBaseURL, services.ClientOptions{
		Timeout:      cfg.RequestTimeout,
		TunnelBypass: cfg.TunnelBypassHeader,
		Limiter:      limiter,
	}, logger)
	partner := services.NewAPIClient(cfg.NHBBaseURL, services.ClientOptions{
		Timeout: cfg.RequestTimeout,
		Limiter: limiter,
	}, logger)

	sessions := services.NewSessionManager(api, creds, logger)

	return &App{
		Sessions: sessions,
		Catalog:  services.NewCatalogService(api, partner, sessions, logger),
		TryOn: services.NewTryOnService(
			api,
			sessions,
			store.NewTransferStore(cfg.ResultTTL, transferCapacity),
			progress.New(progress.DefaultInterval, onTick),
			services.TryOnOptions{GenerationTimeout: cfg.GenerationTimeout, NominalDuration: cfg.ProgressDuration},
			logger,
		),
		Shares:   services.NewShareService(api, sessions, logger),
		Admin:    services.NewAdminService(api, sessions, logger),
		database: database,
	}, nil
}

func (a *App) Close() error {
	if a.database == nil {
		return nil
	}
	return a.database.Close()
}

func openCredentialStore(cfg config.Config, logger zerolog.Logger) (store.CredentialStore, *sql.DB, error) {
	if cfg.DBDriver == "memory" {
		logger.Warn().Msg("Using in-memory credential store, sign-ins will not survive a restart")
		return store.NewMemoryCredentialStore(), nil, nil
	}

	database, err := db.InitDB(cfg.DBDriver, cfg.DBUrl)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, nil, err
	}

	if cfg.TokenSecret == "" {
		logger.Warn().Msg("TOKEN_SECRET not set, credentials are stored unencrypted")
	}
	creds, err := store.NewSQLCredentialStore(database, cfg.TokenSecret)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return creds, database, nil
}
