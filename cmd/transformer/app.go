package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/adapter"
	"github.com/jonathan/persona-transformer/internal/assets"
	"github.com/jonathan/persona-transformer/internal/config"
	"github.com/jonathan/persona-transformer/internal/db"
	"github.com/jonathan/persona-transformer/internal/llm"
	"github.com/jonathan/persona-transformer/internal/logging"
	"github.com/jonathan/persona-transformer/internal/metrics"
	"github.com/jonathan/persona-transformer/internal/orchestrator"
	"github.com/jonathan/persona-transformer/internal/quality"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/templates"
)

// app is the fully wired service
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        store.Store
	templates    *templates.Registry
	client       llm.Client
	metrics      *metrics.Metrics
	controller   *quality.Controller
	orchestrator *orchestrator.Orchestrator
}

// loadConfig reads and validates the configuration and builds the logger
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore connects to Postgres when a database URL is configured and falls
// back to the in-memory store otherwise
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	status, err := database.MigrationStatus()
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	if status.Dirty || status.Pending() {
		_ = database.Close()
		return nil, fmt.Errorf("database schema at version %d, need %d (dirty=%t): run 'transformer migrate up'",
			status.Current, status.Latest, status.Dirty)
	}
	return database, nil
}

// loadTemplates builds the registry, overlaying templates from the configured directory
func loadTemplates(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*templates.Registry, error) {
	reg := templates.NewRegistry()
	if cfg.TemplatesDir == "" {
		return reg, nil
	}
	n, err := reg.LoadDir(ctx, cfg.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	logger.Info("templates loaded", zap.String("dir", cfg.TemplatesDir), zap.Int("count", n))
	return reg, nil
}

// newAssets returns the asset collaborator, or none when no endpoint is set
func newAssets(cfg *config.Config) (assets.Generator, error) {
	if cfg.AssetsEndpoint == "" {
		return assets.None{}, nil
	}
	return assets.NewHTTPGenerator(cfg.AssetsEndpoint, cfg.AssetsTimeout)
}

// buildApp wires store, provider, adapter, controller and orchestrator
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s_API_KEY environment variable or api_key config value is required", config.EnvPrefix)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	reg, err := loadTemplates(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	gen, err := newAssets(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	llmCfg, err := cfg.LLM()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	m := metrics.New()
	controller := quality.NewController(st, quality.Options{
		Templates:    reg,
		Assets:       gen,
		AssetTimeout: cfg.AssetsTimeout,
		Metrics:      m,
		Logger:       logger.Named("quality"),
	})
	adapt := adapter.New(client, cfg.Adapter(), logger.Named("adapter"))
	orch := orchestrator.New(st, reg, adapt, controller, cfg.Orchestrator(), logger.Named("orchestrator"), m)
	controller.SetRequeuer(orch)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		templates:    reg,
		client:       client,
		metrics:      m,
		controller:   controller,
		orchestrator: orch,
	}, nil
}

// Close releases the provider client and the store
func (a *app) Close() {
	if err := a.client.Close(); err != nil {
		a.logger.Warn("failed to close LLM client", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
}
