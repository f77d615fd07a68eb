package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "http://localhost:11434"
	defaultModelName = "ministral-3:3b"
	defaultAPIPath   = "/api/chat"

	tunnelHostPattern = "ngrok"
	tunnelBypassKey   = "ngrok-skip-browser-warning"
)

// EndpointConfig describes the upstream model-serving endpoint. A resolved
// config is never mutated, so one value can be shared by every exchange.
type EndpointConfig struct {
	BaseURL   string            `json:"baseUrl"`
	ModelName string            `json:"modelName"`
	APIPath   string            `json:"apiPath"`
	Headers   map[string]string `json:"-"`
}

// ChatURL is the completion endpoint
func (c EndpointConfig) ChatURL() string {
	return c.BaseURL + c.APIPath
}

// TagsURL is the model-listing endpoint used for health probes
func (c EndpointConfig) TagsURL() string {
	return c.BaseURL + "/api/tags"
}

// PullURL is the model download endpoint
func (c EndpointConfig) PullURL() string {
	return c.BaseURL + "/api/pull"
}

// HeaderValues returns a copy of the request headers
func (c EndpointConfig) HeaderValues() map[string]string {
	return maps.Clone(c.Headers)
}

// ResolveEndpoint reads the endpoint from the environment. Each field takes
// the OLLAMA_* variable, then its PUBLIC_OLLAMA_* and NEXT_PUBLIC_OLLAMA_*
// variants, then a default.
func ResolveEndpoint(logger *zap.Logger) EndpointConfig {
	v := viper.New()
	bindPublic(v, "url", "OLLAMA_URL")
	bindPublic(v, "model", "OLLAMA_MODEL")
	bindPublic(v, "api_path", "OLLAMA_API_PATH")
	bindPublic(v, "headers", "OLLAMA_HEADERS")

	v.SetDefault("url", defaultBaseURL)
	v.SetDefault("model", defaultModelName)
	v.SetDefault("api_path", defaultAPIPath)

	baseURL := normalizeBaseURL(v.GetString("url"))
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default upstream URL", zap.String("url", baseURL))
	}

	model := strings.TrimSpace(v.GetString("model"))
	if model == "" {
		model = defaultModelName
		logger.Info("Using default model", zap.String("model", model))
	}

	return EndpointConfig{
		BaseURL:   baseURL,
		ModelName: model,
		APIPath:   normalizeAPIPath(v.GetString("api_path")),
		Headers:   buildHeaders(baseURL, v.GetString("headers"), logger),
	}
}

func bindPublic(v *viper.Viper, key, env string) {
	// BindEnv only errors when no key is given.
	_ = v.BindEnv(key, env, "PUBLIC_"+env, "NEXT_PUBLIC_"+env)
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func normalizeAPIPath(raw string) string {
	path := strings.TrimSpace(raw)
	if path == "" {
		return defaultAPIPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func buildHeaders(baseURL, custom string, logger *zap.Logger) map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}
	if strings.Contains(baseURL, tunnelHostPattern) {
		headers[tunnelBypassKey] = "true"
	}

	custom = strings.TrimSpace(custom)
	if custom == "" {
		return headers
	}

	var extra map[string]any
	if err := json.Unmarshal([]byte(custom), &extra); err != nil {
		logger.Warn("Ignoring malformed OLLAMA_HEADERS", zap.Error(err))
		return headers
	}
	for k, val := range extra {
		switch s := val.(type) {
		case string:
			headers[k] = s
		case nil:
			delete(headers, k)
		default:
			headers[k] = fmt.Sprint(s)
		}
	}
	return headers
}
