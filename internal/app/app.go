// -----------------------------------------------------------------------
// Application - Component wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/common"
	"github.com/ternarybob/tabula/internal/handlers"
	"github.com/ternarybob/tabula/internal/interfaces"
	"github.com/ternarybob/tabula/internal/queue"
	"github.com/ternarybob/tabula/internal/scraper"
	badgerstore "github.com/ternarybob/tabula/internal/storage/badger"
	"github.com/ternarybob/tabula/internal/storage/artifacts"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB            *badgerstore.BadgerDB
	TaskStorage   interfaces.TaskStorage
	ArtifactStore interfaces.ArtifactStore

	// Scrape pipeline
	SessionClient *scraper.SessionClient
	Pipeline      *scraper.Pipeline

	// Background work
	Dispatcher *queue.Dispatcher
	Reaper     *queue.Reaper

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	TaskHandler    *handlers.TaskHandler
	OptionsHandler *handlers.OptionsHandler
}

// New wires the application from configuration. Components are constructed
// leaves first; a failure anywhere tears down nothing because nothing has
// started yet.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}

	taskStorage := badgerstore.NewTaskStorage(db, logger)

	artifactStore, err := artifacts.NewStore(config.Storage.Artifacts.Dir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}

	sessionClient, err := scraper.NewSessionClient(&config.Portal, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session client: %w", err)
	}

	pipeline := scraper.NewPipeline(sessionClient, artifactStore, logger)
	dispatcher := queue.NewDispatcher(config, taskStorage, pipeline, logger)
	reaper := queue.NewReaper(taskStorage, logger)

	return &App{
		Config:         config,
		Logger:         logger,
		DB:             db,
		TaskStorage:    taskStorage,
		ArtifactStore:  artifactStore,
		SessionClient:  sessionClient,
		Pipeline:       pipeline,
		Dispatcher:     dispatcher,
		Reaper:         reaper,
		APIHandler:     handlers.NewAPIHandler(),
		TaskHandler:    handlers.NewTaskHandler(taskStorage, artifactStore, logger),
		OptionsHandler: handlers.NewOptionsHandler(pipeline, logger),
	}, nil
}

// Start starts the background components
func (a *App) Start() error {
	if err := a.Dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	if err := a.Reaper.Start(a.Config.Dispatcher.ReaperSchedule); err != nil {
		return fmt.Errorf("failed to start reaper: %w", err)
	}
	return nil
}

// Stop stops background components and closes storage
func (a *App) Stop() error {
	a.Reaper.Stop()
	if err := a.Dispatcher.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Dispatcher stop failed")
	}
	return a.DB.Close()
}
