package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ooredoo-bot/internal/bot"
	"ooredoo-bot/internal/config"
	"ooredoo-bot/internal/conversation"
	"ooredoo-bot/internal/identity"
	"ooredoo-bot/internal/ooredoo"
	"ooredoo-bot/internal/storage"
	"ooredoo-bot/internal/worker"
)

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	Store         *storage.SQLiteStore
	Machine       *conversation.Machine
	Bot           *bot.Service
	WorkerPool    *worker.Pool
	MetricsServer *http.Server

	pollingDone chan struct{}
	cancelPoll  context.CancelFunc
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config) (*Application, error) {
	logger := log.New(os.Stdout, "ooredoobot: ", log.LstdFlags)

	// Setup: Database
	dbCfg := storage.DefaultConfig()
	dbCfg.Path = cfg.DBPath
	store, err := storage.OpenDatabase(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Setup: device identity and carrier client
	devices := identity.NewProvider(store)
	fingerprints := identity.NewFingerprintGenerator()
	client := ooredoo.NewClient(cfg.Ooredoo.BaseURL, cfg.Ooredoo.RequestTimeout.Duration, fingerprints, logger)

	// Setup: conversation machine
	machine := conversation.NewMachine(store, devices, client, logger)

	// Setup: worker pool
	pool := worker.NewPool(cfg.NumWorkers)
	pool.OnError(func(err error) {
		logger.Printf("task error: %v", err)
	})

	// Setup: Telegram front-end
	botService, err := bot.NewService(cfg.Telegram.BotToken, machine, pool, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create telegram service: %w", err)
	}

	// Setup: HTTP server for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	return &Application{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Machine:       machine,
		Bot:           botService,
		WorkerPool:    pool,
		MetricsServer: metricsServer,
		pollingDone:   make(chan struct{}),
	}, nil
}

// Start begins the application's services.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Println("Starting application services...")

	a.WorkerPool.Start()
	a.Logger.Println("Worker pool started.")

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancelPoll = cancel
	go func() {
		defer close(a.pollingDone)
		a.Bot.StartPolling(pollCtx)
	}()
	a.Logger.Println("Telegram polling started.")

	go func() {
		a.Logger.Printf("Starting metrics server on %s", a.MetricsServer.Addr)
		if err := a.MetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Printf("Metrics server ListenAndServe: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Println("Stopping application services...")

	var errs *multierror.Error

	// Stop receiving updates, then wait for in-flight polling to end.
	if a.cancelPoll != nil {
		a.cancelPoll()
		select {
		case <-a.pollingDone:
		case <-time.After(5 * time.Second):
			a.Logger.Println("Timed out waiting for polling to stop.")
		}
	}

	// Drain the worker pool.
	a.WorkerPool.Stop()
	a.Logger.Println("Worker pool stopped.")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("metrics server shutdown: %w", err))
	}

	if err := a.Store.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("closing database: %w", err))
	}

	a.Logger.Println("Application stopped.")
	return errs.ErrorOrNil()
}
