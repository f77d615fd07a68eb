// Package config resolves process configuration from the environment and an
// optional env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Model providers
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// ServerConfig holds everything the relay process needs at startup
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	UpstreamTimeout time.Duration
	CleanupInterval time.Duration
	AllowOrigins    []string

	StoreBackend  string
	MongoURI      string
	MongoDatabase string

	ModelProvider string
	GeminiAPIKey  string
	GeminiModel   string

	EnvFile string
}

// Addr is the listen address
func (c *ServerConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Validate checks the resolved values
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Port)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %s", c.UpstreamTimeout)
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	switch c.ModelProvider {
	case ProviderOllama, ProviderMock:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown model provider %q", c.ModelProvider)
	}
	return nil
}

// Load reads the env file (ENV_FILE, default ".env") when present and
// resolves the server configuration. Variables already set in the process
// environment win over the file.
func Load(logger *zap.Logger) (*ServerConfig, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		logger.Info("No env file loaded, using process environment", zap.String("file", envFile))
	}

	cfg, err := resolveServer(logger)
	if err != nil {
		return nil, err
	}
	cfg.EnvFile = envFile

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func resolveServer(logger *zap.Logger) (*ServerConfig, error) {
	v := viper.New()
	for key, env := range map[string]string{
		"port":             "PORT",
		"read_timeout":     "READ_TIMEOUT",
		"write_timeout":    "WRITE_TIMEOUT",
		"upstream_timeout": "UPSTREAM_TIMEOUT",
		"cleanup_interval": "SESSION_CLEANUP_INTERVAL",
		"allow_origins":    "CORS_ALLOW_ORIGINS",
		"store_backend":    "STORE_BACKEND",
		"mongodb_uri":      "MONGODB_URI",
		"mongodb_database": "MONGODB_DATABASE",
		"model_provider":   "MODEL_PROVIDER",
		"gemini_api_key":   "GEMINI_API_KEY",
		"gemini_model":     "GEMINI_MODEL",
	} {
		_ = v.BindEnv(key, env)
	}

	v.SetDefault("port", 8080)
	v.SetDefault("read_timeout", "30s")
	v.SetDefault("write_timeout", "0s")
	v.SetDefault("upstream_timeout", "60s")
	v.SetDefault("cleanup_interval", "10m")
	v.SetDefault("allow_origins", "*")
	v.SetDefault("store_backend", StoreMemory)
	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb_database", "audiolens")
	v.SetDefault("model_provider", ProviderOllama)
	v.SetDefault("gemini_model", "gemini-2.0-flash")

	cfg := &ServerConfig{
		Port:          v.GetInt("port"),
		AllowOrigins:  splitList(v.GetString("allow_origins")),
		StoreBackend:  strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
		MongoURI:      v.GetString("mongodb_uri"),
		MongoDatabase: v.GetString("mongodb_database"),
		ModelProvider: strings.ToLower(strings.TrimSpace(v.GetString("model_provider"))),
		GeminiAPIKey:  v.GetString("gemini_api_key"),
		GeminiModel:   v.GetString("gemini_model"),
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"read_timeout", &cfg.ReadTimeout},
		{"write_timeout", &cfg.WriteTimeout},
		{"upstream_timeout", &cfg.UpstreamTimeout},
		{"cleanup_interval", &cfg.CleanupInterval},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(v.GetString(d.key)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	logger.Info("Resolved server configuration",
		zap.Int("port", cfg.Port),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("model_provider", cfg.ModelProvider),
		zap.Duration("upstream_timeout", cfg.UpstreamTimeout))

	return cfg, nil
}

// parseDuration accepts Go durations ("45s") and bare seconds ("45").
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
