package config

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Holder hands out the current EndpointConfig. Readers always see a complete
// snapshot; Reload swaps in a freshly resolved one.
type Holder struct {
	current atomic.Pointer[EndpointConfig]
	logger  *zap.Logger
}

// NewHolder resolves the endpoint once from the environment
func NewHolder(logger *zap.Logger) *Holder {
	h := &Holder{logger: logger}
	h.Reload()
	return h
}

// NewStaticHolder serves a fixed config, mainly for tests and tools
func NewStaticHolder(cfg EndpointConfig, logger *zap.Logger) *Holder {
	h := &Holder{logger: logger}
	if cfg.Headers == nil {
		cfg.Headers = buildHeaders(cfg.BaseURL, "", logger)
	}
	h.current.Store(&cfg)
	return h
}

// Endpoint returns the current snapshot. It must be treated as read-only.
func (h *Holder) Endpoint() EndpointConfig {
	return *h.current.Load()
}

// Reload re-resolves the endpoint from the environment
func (h *Holder) Reload() EndpointConfig {
	cfg := ResolveEndpoint(h.logger)
	h.current.Store(&cfg)
	h.logger.Info("Upstream endpoint resolved",
		zap.String("base_url", cfg.BaseURL),
		zap.String("model", cfg.ModelName),
		zap.String("api_path", cfg.APIPath),
		zap.Int("headers", len(cfg.Headers)))
	return cfg
}
