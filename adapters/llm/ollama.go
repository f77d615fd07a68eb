package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/repositories"
	"github.com/satriahrh/audiolens/internal/config"
	"github.com/satriahrh/audiolens/internal/streaming"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 512
	readBufferSize     = 4096
	maxErrorBodySize   = 4 << 10

	unreachableMessage = "Cannot connect to Ollama. Make sure it is running: ollama serve"
)

// HTTPStatusError captures non-2xx upstream responses
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// HTTPStatusCode exposes the upstream status for error classification
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ErrNoBody is returned when the upstream answers without a response body
var ErrNoBody = errors.New("upstream returned no response body")

type ollamaChatRequest struct {
	Model    string                     `json:"model"`
	Messages []repositories.ChatMessage `json:"messages"`
	Stream   bool                       `json:"stream"`
	Options  ollamaOptions              `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaClient talks to an Ollama-compatible model server. The endpoint is
// read from the holder on every request so reloads apply to new exchanges
// only.
type OllamaClient struct {
	holder     *config.Holder
	httpClient *http.Client
	logger     *zap.Logger
}

var (
	_ repositories.ModelEndpoint = (*OllamaClient)(nil)
	_ repositories.ModelPuller   = (*OllamaClient)(nil)
)

// OllamaOption configures an OllamaClient
type OllamaOption func(*OllamaClient)

// WithHTTPClient replaces the default HTTP client. Timeouts belong on the
// request context, so the default client has none.
func WithHTTPClient(httpClient *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.httpClient = httpClient
	}
}

// NewOllamaClient creates a client for the endpoint held by holder
func NewOllamaClient(holder *config.Holder, logger *zap.Logger, opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		holder:     holder,
		httpClient: &http.Client{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat performs a non-streaming completion
func (c *OllamaClient) Chat(ctx context.Context, req repositories.CompletionRequest) (repositories.Completion, error) {
	cfg := c.holder.Endpoint()

	resp, err := c.post(ctx, cfg, cfg.ChatURL(), c.buildRequest(cfg, req, false), "application/json")
	if err != nil {
		return repositories.Completion{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return repositories.Completion{}, fmt.Errorf("failed to read upstream response: %w", err)
	}

	answer, ok := streaming.ExtractContent(body)
	if !ok {
		answer = string(body)
	}

	c.logger.Debug("Upstream chat completed",
		zap.String("model", cfg.ModelName),
		zap.Int("answer_length", len(answer)))

	return repositories.Completion{Content: strings.TrimSpace(answer), Model: cfg.ModelName}, nil
}

// ChatStream performs a streaming completion. The upstream body is fed to a
// parser owned by this call, and onChunk runs synchronously per increment.
func (c *OllamaClient) ChatStream(ctx context.Context, req repositories.CompletionRequest, onChunk func(string)) (repositories.Completion, error) {
	cfg := c.holder.Endpoint()

	resp, err := c.post(ctx, cfg, cfg.ChatURL(), c.buildRequest(cfg, req, true), "text/event-stream")
	if err != nil {
		return repositories.Completion{}, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return repositories.Completion{}, ErrNoBody
	}
	defer resp.Body.Close()

	parser := streaming.NewParser(onChunk)
	buffer := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 && parser.Feed(buffer[:n]) {
			break
		}
		if errors.Is(readErr, io.EOF) {
			parser.Flush()
			break
		}
		if readErr != nil {
			return repositories.Completion{Content: parser.Answer(), Model: cfg.ModelName},
				fmt.Errorf("upstream stream interrupted: %w", readErr)
		}
	}

	c.logger.Debug("Upstream stream completed",
		zap.String("model", cfg.ModelName),
		zap.Int("answer_length", len(parser.Answer())))

	return repositories.Completion{Content: parser.Answer(), Model: cfg.ModelName}, nil
}

// HealthCheck lists the models on the server. Failures are reported in the
// returned status, never as an error.
func (c *OllamaClient) HealthCheck(ctx context.Context) repositories.HealthStatus {
	cfg := c.holder.Endpoint()

	unhealthy := func(err error) repositories.HealthStatus {
		c.logger.Warn("Upstream health check failed", zap.String("url", cfg.TagsURL()), zap.Error(err))
		return repositories.HealthStatus{
			Healthy: false,
			Model:   cfg.ModelName,
			Error:   err.Error(),
			Message: unreachableMessage,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.TagsURL(), nil)
	if err != nil {
		return unhealthy(err)
	}
	setHeaders(httpReq, cfg)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return unhealthy(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unhealthy(statusError(resp, cfg.TagsURL()))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return unhealthy(fmt.Errorf("failed to decode model list: %w", err))
	}

	status := repositories.HealthStatus{
		Healthy:         true,
		AvailableModels: make([]string, 0, len(tags.Models)),
		Model:           cfg.ModelName,
	}
	for _, m := range tags.Models {
		status.AvailableModels = append(status.AvailableModels, m.Name)
		if strings.Contains(m.Name, cfg.ModelName) {
			status.ModelLoaded = true
		}
	}
	return status
}

// PullModel asks the server to download a model
func (c *OllamaClient) PullModel(ctx context.Context, name string) (string, error) {
	cfg := c.holder.Endpoint()
	if name = strings.TrimSpace(name); name == "" {
		name = cfg.ModelName
	}

	payload := map[string]any{"name": name, "stream": false}
	resp, err := c.post(ctx, cfg, cfg.PullURL(), payload, "application/json")
	if err != nil {
		return "", fmt.Errorf("failed to pull model %s: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("Model pulled", zap.String("model", name))
	return name, nil
}

func (c *OllamaClient) buildRequest(cfg config.EndpointConfig, req repositories.CompletionRequest, stream bool) ollamaChatRequest {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return ollamaChatRequest{
		Model:    cfg.ModelName,
		Messages: req.Messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	}
}

// post sends payload as JSON and returns the response only for 2xx statuses
func (c *OllamaClient) post(ctx context.Context, cfg config.EndpointConfig, url string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	setHeaders(httpReq, cfg)
	httpReq.Header.Set("Accept", accept)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		statusErr := statusError(resp, url)
		c.logger.Error("Upstream returned error status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(started)))
		return nil, statusErr
	}
	return resp, nil
}

func setHeaders(req *http.Request, cfg config.EndpointConfig) {
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
}

func statusError(resp *http.Response, url string) *HTTPStatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &HTTPStatusError{
		StatusCode: resp.StatusCode,
		URL:        url,
		Body:       strings.TrimSpace(string(body)),
	}
}
