package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/classifier"
	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/router"
	"github.com/xaenox/stylist-bot/internal/settings"
	"github.com/xaenox/stylist-bot/internal/storage"
	"github.com/xaenox/stylist-bot/internal/stream"
	"github.com/xaenox/stylist-bot/internal/stylist"
	"github.com/xaenox/stylist-bot/internal/vision"
	"github.com/xaenox/stylist-bot/pkg/config"
)

// app holds the long-lived components shared by every command
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Storage
	selector *settings.Selector
	sessions *stylist.Registry
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newStorage(cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.SQLitePath))
		return storage.NewSQLiteStorage(cfg.SQLitePath, logger)
	case "postgres":
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host))
		return storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := newStorage(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	selector := settings.NewSelector(store, logger)

	tokens := make(map[models.Provider]string)
	if cfg.HuggingFace.Token != "" {
		tokens[models.ProviderHuggingFace] = cfg.HuggingFace.Token
	}
	if cfg.Pollinations.Token != "" {
		tokens[models.ProviderPollinations] = cfg.Pollinations.Token
	}
	modelRouter := router.New(router.Config{
		GeminiAPIKey: cfg.Gemini.APIKey,
		Tokens:       tokens,
		Timeout:      cfg.Router.Timeout,
	}, logger)

	analyzer := vision.NewAnalyzer(modelRouter, vision.Config{
		MaxRetries:  cfg.Vision.MaxRetries,
		GatewayWait: cfg.Vision.GatewayWait,
	}, logger)

	emitter := stream.NewEmitter(stream.Config{
		WordsPerChunk: cfg.Stream.WordsPerChunk,
		ChunkDelay:    cfg.Stream.ChunkDelay,
		AckPause:      cfg.Stream.AckPause,
		InstantAck:    cfg.Stream.InstantAck,
	})

	keywords := classifier.NewKeywordClassifier()
	deps := stylist.Deps{
		Classifier: keywords,
		Emitter:    emitter,
		Router:     modelRouter,
		Vision:     analyzer,
		Selector:   selector,
		Archive:    store,
		MaxHistory: cfg.Context.MaxHistory,
		Logger:     logger,
	}
	if cfg.Classifier.Mode == "gpt" {
		logger.Info("Using model-based exchange enrichment",
			zap.String("model", cfg.Classifier.Model),
			zap.String("base_url", cfg.Classifier.BaseURL))
		deps.Enricher = classifier.NewGPTClassifier(
			cfg.Classifier.APIKey,
			cfg.Classifier.BaseURL,
			cfg.Classifier.Model,
			keywords,
			logger,
		)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		selector: selector,
		sessions: stylist.NewRegistry(deps),
	}, nil
}

// loadApp reads the config named by --config and builds the app
func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close storage", zap.Error(err))
	}
	a.logger.Sync()
}
