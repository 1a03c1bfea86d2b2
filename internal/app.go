// Package internal wires the nighthub server together.
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"nighthub/internal/config"
	"nighthub/internal/database"
	"nighthub/internal/jobs"
	"nighthub/internal/pkg/geoip"
	"nighthub/internal/settings"
)

// Application wraps cartridge.Application with nighthub's database manager.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
}

// NewApp creates the application from the global configuration.
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig connects and migrates the database, then builds the
// server with the background jobs attached.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)
	geoip.InitLogger(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := settings.SetupDefaultSettings(dbManager.GetConnection()); err != nil {
		return nil, fmt.Errorf("failed to set up default settings: %w", err)
	}

	scheduler := jobs.NewScheduler(dbManager, logger, cfg)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountAppRoutes,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
	}, nil
}
