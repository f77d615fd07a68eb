package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/adapters"
	"github.com/satriahrh/audiolens/adapters/llm"
	"github.com/satriahrh/audiolens/adapters/mongo"
	"github.com/satriahrh/audiolens/domain/repositories"
	"github.com/satriahrh/audiolens/internal/api"
	"github.com/satriahrh/audiolens/internal/config"
	"github.com/satriahrh/audiolens/internal/websocket"
	"github.com/satriahrh/audiolens/usecase"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 512
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	analysisRepo, closeStore := initStore(ctx, cfg, logger)
	defer closeStore()

	// Initialize model provider
	model, generator := initModel(ctx, cfg, logger)

	// Initialize usecase services
	analysisService := usecase.NewAnalysisService(analysisRepo, logger)
	chatService := usecase.NewChatService(model, analysisService, usecase.ChatConfig{
		UpstreamTimeout: cfg.UpstreamTimeout,
		Temperature:     defaultTemperature,
		MaxTokens:       defaultMaxTokens,
	}, logger)

	cleanupService := usecase.NewSessionCleanupService(analysisRepo, cfg.CleanupInterval, logger)
	cleanupService.Start()
	defer cleanupService.Stop()

	// Initialize WebSocket hub
	hub := websocket.NewHub(chatService, logger)
	go hub.Run(ctx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	api.UseMiddleware(e, cfg.AllowOrigins, logger)
	api.InitRoutes(e, api.NewHandler(chatService, analysisService, generator, logger), hub, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Chat relay started",
		zap.String("addr", cfg.Addr()),
		zap.String("provider", cfg.ModelProvider),
		zap.String("store", cfg.StoreBackend))

	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initStore opens the configured session store. The returned func releases it.
func initStore(ctx context.Context, cfg *config.ServerConfig, logger *zap.Logger) (repositories.AnalysisRepository, func()) {
	if cfg.StoreBackend != config.StoreMongo {
		logger.Info("Using in-memory session store")
		return adapters.NewMemoryAnalysisRepository(), func() {}
	}

	client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	repo, err := mongo.NewAnalysisRepository(ctx, client.Database, logger)
	if err != nil {
		logger.Fatal("Failed to prepare analysis collection", zap.Error(err))
	}

	return repo, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}
}

// initModel builds the chat model endpoint and, when possible, a text
// generator for /api/generate
func initModel(ctx context.Context, cfg *config.ServerConfig, logger *zap.Logger) (repositories.ModelEndpoint, repositories.TextGenerator) {
	var gemini *llm.GeminiClient
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxTokens,
		}, logger)
		if err != nil {
			if cfg.ModelProvider == config.ProviderGemini {
				logger.Fatal("Failed to create Gemini client", zap.Error(err))
			}
			logger.Warn("Gemini unavailable, /api/generate disabled", zap.Error(err))
		} else {
			gemini = client
		}
	}

	var generator repositories.TextGenerator
	if gemini != nil {
		generator = gemini
	}

	switch cfg.ModelProvider {
	case config.ProviderGemini:
		return gemini, generator

	case config.ProviderMock:
		mock := llm.NewMockModel()
		if generator == nil {
			generator = mock
		}
		return mock, generator

	default:
		holder := config.NewHolder(logger)
		startWatcher(ctx, cfg.EnvFile, holder, logger)
		return llm.NewOllamaClient(holder, logger), generator
	}
}

// startWatcher reloads the Ollama endpoint when the env file changes
func startWatcher(ctx context.Context, envFile string, holder *config.Holder, logger *zap.Logger) {
	if _, err := os.Stat(envFile); err != nil {
		logger.Info("Env file not found, endpoint reload disabled", zap.String("file", envFile))
		return
	}

	watcher, err := config.NewWatcher(envFile, holder, logger)
	if err != nil {
		logger.Warn("Failed to watch env file", zap.String("file", envFile), zap.Error(err))
		return
	}
	watcher.OnReload(func(endpoint config.EndpointConfig) {
		logger.Info("Ollama endpoint reloaded",
			zap.String("base_url", endpoint.BaseURL),
			zap.String("model", endpoint.ModelName))
	})

	go func() {
		watcher.Run(ctx)
		_ = watcher.Close()
	}()
}
