package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/demandsight/demand-planner/internal/domain/import/assist"
	importhandler "github.com/demandsight/demand-planner/internal/domain/import/handler"
	importrepo "github.com/demandsight/demand-planner/internal/domain/import/repository"
	importservice "github.com/demandsight/demand-planner/internal/domain/import/service"
	"github.com/demandsight/demand-planner/internal/domain/import/session"
	"github.com/demandsight/demand-planner/internal/domain/organization"
	"github.com/demandsight/demand-planner/pkg/config"
	"github.com/demandsight/demand-planner/pkg/cron"
	"github.com/demandsight/demand-planner/pkg/db"
	"github.com/demandsight/demand-planner/pkg/metrics"
	"github.com/demandsight/demand-planner/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	DB       *db.DB
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Repositories
	ImportRepo importrepo.ImportRepository
	OrgRepo    organization.Repository

	// Services
	Sessions      *session.Store
	ImportService *importservice.ImportService
	OrgService    *organization.Service
	Scheduler     *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
	OrgHandler    *organization.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initMetrics()
	deps.initRepositories()
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = metrics.New(d.Registry)
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.OrgRepo = organization.NewPostgresRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.Sessions = session.NewStore(d.Config.Import.SessionTTL)

	d.ImportService = importservice.NewImportService(
		d.ImportRepo,
		d.Sessions,
		d.Metrics,
		d.Logger,
		d.Config.Import.MaxInlineBytes,
		d.Config.Import.DateValidityThreshold,
	)
	if d.Config.Assist.BaseURL != "" {
		assistClient := assist.NewClient(d.Config.Assist.BaseURL, d.Config.Assist.APIKey, d.Logger)
		d.ImportService.WithAssistClient(assistClient)
	}

	staging, err := storage.NewLocalStaging(d.Config.Import.StagingPath)
	if err != nil {
		return fmt.Errorf("failed to init staging area: %w", err)
	}
	d.ImportService.WithStaging(staging)

	d.OrgService = organization.NewService(d.OrgRepo, d.Logger)
	d.Scheduler = cron.NewScheduler(d.Sessions, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.OrgService, d.Logger)
	d.OrgHandler = organization.NewHandler(d.OrgService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
