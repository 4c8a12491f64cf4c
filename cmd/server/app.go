package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/phrazzld/reelchain/internal/api"
	"github.com/phrazzld/reelchain/internal/config"
	"github.com/phrazzld/reelchain/internal/eventlog"
	"github.com/phrazzld/reelchain/internal/generation"
	"github.com/phrazzld/reelchain/internal/orchestrator"
	"github.com/phrazzld/reelchain/internal/pipeline"
	"github.com/phrazzld/reelchain/internal/platform/audio"
	"github.com/phrazzld/reelchain/internal/platform/elevenlabs"
	"github.com/phrazzld/reelchain/internal/platform/gemini"
	"github.com/phrazzld/reelchain/internal/platform/pollinations"
	"github.com/phrazzld/reelchain/internal/platform/postgres"
	"github.com/phrazzld/reelchain/internal/platform/redisconn"
	"github.com/phrazzld/reelchain/internal/platform/redisstore"
	"github.com/phrazzld/reelchain/internal/platform/scheduler"
	"github.com/phrazzld/reelchain/internal/retry"
	"github.com/phrazzld/reelchain/internal/service/auth"
	"github.com/phrazzld/reelchain/internal/service/credentials"
)

// application holds the shared dependencies so they can be shut down in order.
type application struct {
	config *config.Config
	logger *slog.Logger

	registry  *prometheus.Registry
	metrics   *orchestrator.Metrics
	stores    *redisconn.Manager
	store     *redisstore.Store
	db        *sql.DB
	events    *eventlog.Log
	services  *generation.Services
	creds     *credentials.Service
	jwt       auth.JWTService
	orch      *orchestrator.Orchestrator
	scheduler *scheduler.Scheduler
}

// newApplication connects to the backing store and builds every component.
// On error, anything already opened is released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			app.closeResources()
		}
	}()

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = orchestrator.NewMetrics(app.registry)

	if err := app.connectStore(ctx); err != nil {
		return nil, err
	}
	if err := app.openArchive(ctx); err != nil {
		return nil, err
	}

	app.jwt, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	if err := app.setupGeneration(ctx); err != nil {
		return nil, err
	}

	app.events = eventlog.New(
		eventlog.NewRedisBackend(app.stores, cfg.EventLog.Capacity),
		eventlog.Options{PollWindow: cfg.EventLog.PollWindow, Logger: logger},
	)

	if err := app.setupOrchestrator(); err != nil {
		return nil, err
	}

	app.scheduler = scheduler.New(logger)
	if err := app.stores.Schedule(app.scheduler); err != nil {
		return nil, fmt.Errorf("failed to schedule store health checks: %w", err)
	}
	if err := app.orch.Schedule(app.scheduler); err != nil {
		return nil, fmt.Errorf("failed to schedule run sweeps: %w", err)
	}

	logger.Info("application initialized", "active_store", app.stores.ActiveName())
	return app, nil
}

func (app *application) connectStore(ctx context.Context) error {
	cfg := app.config.Store
	instances := make([]redisconn.InstanceConfig, 0, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		instances = append(instances, redisconn.InstanceConfig{Name: inst.Name, URL: inst.URL})
	}

	policy := retry.Default()
	policy.MaxAttempts = cfg.ConnectAttempts
	policy.OnFailure = app.metrics.RetryFailure

	manager, err := redisconn.New(redisconn.Options{
		Instances:      instances,
		ConnectPolicy:  policy,
		HealthInterval: cfg.HealthInterval,
		Logger:         app.logger,
		OnSwitch:       app.metrics.StoreSwitched,
	})
	if err != nil {
		return fmt.Errorf("failed to configure store instances: %w", err)
	}
	app.stores = manager

	if err := manager.Init(ctx); err != nil {
		return fmt.Errorf("failed to connect to the backing store: %w", err)
	}
	app.store = redisstore.New(manager)
	return nil
}

func (app *application) openArchive(ctx context.Context) error {
	if app.config.Database.URL == "" {
		app.logger.Info("chain archive disabled")
		return nil
	}
	db, err := postgres.Open(ctx, app.config.Database.URL, app.logger)
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	app.db = db
	if err := postgres.Migrate(ctx, db, app.logger); err != nil {
		return fmt.Errorf("failed to migrate archive database: %w", err)
	}
	return nil
}

// setupGeneration installs clients from configured keys, then lets
// credentials stored through the configure endpoint take precedence.
func (app *application) setupGeneration(ctx context.Context) error {
	cfg := app.config

	sealer, err := credentials.NewSealer(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential sealer: %w", err)
	}
	factory := app.clientFactory()

	var initial generation.Clients
	if cfg.LLM.GeminiAPIKey != "" {
		text, err := factory.Text(ctx, cfg.LLM.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("failed to initialize text generator: %w", err)
		}
		initial.Text = text
	}
	if cfg.Voice.APIKey != "" && cfg.Voice.VoiceID != "" {
		voice, err := factory.Voice(cfg.Voice.APIKey, cfg.Voice.VoiceID)
		if err != nil {
			return fmt.Errorf("failed to initialize voice synthesizer: %w", err)
		}
		initial.Voice = voice
	}
	app.services = generation.NewServices(initial)

	app.creds, err = credentials.NewService(app.services, app.store, sealer, factory, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create credential service: %w", err)
	}
	restored, err := app.creds.Restore(ctx)
	if err != nil {
		app.logger.Warn("stored credentials could not be restored", "error", err)
	}

	current := app.services.Current()
	app.logger.Info("generation services initialized",
		"text_configured", current.Text != nil,
		"voice_configured", current.Voice != nil,
		"restored", restored)
	return nil
}

func (app *application) clientFactory() credentials.Factory {
	cfg := app.config
	return credentials.Factory{
		Text: func(ctx context.Context, apiKey string) (credentials.TextClient, error) {
			c, err := gemini.New(ctx, gemini.Config{APIKey: apiKey, Model: cfg.LLM.Model},
				app.logger.With("component", "gemini"))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Voice: func(apiKey, voiceID string) (credentials.VoiceClient, error) {
			c, err := elevenlabs.New(elevenlabs.Config{
				APIKey:  apiKey,
				VoiceID: voiceID,
				BaseURL: cfg.Voice.BaseURL,
			}, app.logger.With("component", "elevenlabs"))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func (app *application) setupOrchestrator() error {
	cfg := app.config.Tasks

	pool, err := orchestrator.NewResourcePool(map[orchestrator.ResourceClass]int{
		orchestrator.ClassAudio: cfg.AudioLimit,
		orchestrator.ClassImage: cfg.ImageLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to create resource pool: %w", err)
	}

	handlers := pipeline.Handlers(pipeline.Deps{
		Text:     app.services,
		Voice:    app.services,
		Prober:   audio.MP3Prober{},
		Images:   pollinations.New(app.config.Images.BaseURL, app.config.Images.Model),
		Audio:    app.store,
		AudioTTL: cfg.ResultTTL,
	})

	policy := retry.Default()
	policy.OnFailure = app.metrics.RetryFailure

	opts := orchestrator.Options{
		Graph:       orchestrator.PipelineGraph(),
		Handlers:    handlers,
		Pool:        pool,
		Admitter:    orchestrator.NewSystemAdmitter(orchestrator.HostSampler{}, cfg.AdmissionThreshold, cfg.MaxChains, app.logger),
		Results:     app.store,
		Chains:      app.store,
		Events:      app.events,
		Reconnector: app.stores,
		Metrics:     app.metrics,
		Retry:       policy,
		Config: orchestrator.Config{
			TaskTimeout:         cfg.Timeout,
			AcquireTimeout:      cfg.AcquireTimeout,
			ResultTTL:           cfg.ResultTTL,
			StoreErrorThreshold: cfg.StoreErrorThreshold,
		},
		Logger: app.logger,
	}
	if app.db != nil {
		opts.Archive = postgres.NewChainArchive(app.db)
	}

	app.orch, err = orchestrator.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return nil
}

func (app *application) router() http.Handler {
	return api.NewRouter(api.RouterDeps{
		Chains:         app.orch,
		Events:         app.events,
		Audio:          app.store,
		Configurer:     app.creds,
		Store:          app.stores,
		JWT:            app.jwt,
		Gatherer:       app.registry,
		Logger:         app.logger,
		RequestTimeout: app.config.Tasks.Timeout,
	})
}

// Run serves HTTP until ctx is cancelled, then shuts down.
func (app *application) Run(ctx context.Context) error {
	app.scheduler.Start()
	if err := app.startHTTPServer(ctx, app.router()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// shutdown stops accepting chains, gives running ones the grace period,
// then stops background jobs and closes connections.
func (app *application) shutdown() {
	if app.orch != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownGrace)
		defer cancel()
		if err := app.orch.Shutdown(ctx); err != nil {
			app.logger.Warn("chain runs did not finish before shutdown", "error", err)
		}
	}
	if app.scheduler != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.scheduler.Stop(stopCtx); err != nil {
			app.logger.Warn("scheduler did not stop cleanly", "error", err)
		}
	}
	app.closeResources()
	app.logger.Info("application shutdown completed")
}

func (app *application) closeResources() {
	if app.stores != nil {
		if err := app.stores.Close(); err != nil {
			app.logger.Error("error closing store connections", "error", err)
		}
		app.stores = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
		app.db = nil
	}
}
