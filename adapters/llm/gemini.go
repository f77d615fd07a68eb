package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/audiolens/domain/repositories"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultGenerateSystem = "You are a helpful AI assistant that provides clear and concise responses."
	geminiMaxAttempts     = 3
)

// GeminiConfig configures the Gemini provider
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	// BaseURL overrides the API host, used against local test servers
	BaseURL string
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}

	return nil
}

// GeminiClient serves chat completions and one-shot generation through
// Google's Gemini API
type GeminiClient struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	maxOutputTokens int
}

var (
	_ repositories.ModelEndpoint = (*GeminiClient)(nil)
	_ repositories.TextGenerator = (*GeminiClient)(nil)
)

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
		logger.Info("Using default temperature", zap.Float32("temperature", temperature))
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
		logger.Info("Using default maxOutputTokens", zap.Int("maxOutputTokens", maxOutputTokens))
	}

	return &GeminiClient{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

// Chat generates a complete answer, retrying transient failures
func (g *GeminiClient) Chat(ctx context.Context, req repositories.CompletionRequest) (repositories.Completion, error) {
	contents, config := g.prepare(req)

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < geminiMaxAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < geminiMaxAttempts-1 {
			select {
			case <-ctx.Done():
				return repositories.Completion{}, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return repositories.Completion{}, fmt.Errorf("gemini generate content: %w", err)
	}

	return repositories.Completion{Content: strings.TrimSpace(responseText(response)), Model: g.model}, nil
}

// ChatStream streams the answer. Retrying is left to the caller since
// content may already have been delivered.
func (g *GeminiClient) ChatStream(ctx context.Context, req repositories.CompletionRequest, onChunk func(string)) (repositories.Completion, error) {
	contents, config := g.prepare(req)

	var answer strings.Builder
	for response, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
		if err != nil {
			return repositories.Completion{Content: answer.String(), Model: g.model},
				fmt.Errorf("gemini stream interrupted: %w", err)
		}
		if text := responseText(response); text != "" {
			answer.WriteString(text)
			if onChunk != nil {
				onChunk(text)
			}
		}
	}

	return repositories.Completion{Content: answer.String(), Model: g.model}, nil
}

// HealthCheck looks up the configured model
func (g *GeminiClient) HealthCheck(ctx context.Context) repositories.HealthStatus {
	model, err := g.client.Models.Get(ctx, g.model, nil)
	if err != nil {
		g.logger.Warn("Gemini health check failed", zap.Error(err))
		return repositories.HealthStatus{
			Healthy: false,
			Model:   g.model,
			Error:   err.Error(),
			Message: "Cannot reach the Gemini API. Check GEMINI_API_KEY and network access.",
		}
	}

	return repositories.HealthStatus{
		Healthy:         true,
		AvailableModels: []string{strings.TrimPrefix(model.Name, "models/")},
		ModelLoaded:     true,
		Model:           g.model,
	}
}

// GenerateText answers a free-form prompt with an optional system prompt
func (g *GeminiClient) GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultGenerateSystem
	}
	completion, err := g.Chat(ctx, repositories.CompletionRequest{
		Messages: []repositories.ChatMessage{
			{Role: repositories.SystemRole, Content: systemPrompt},
			{Role: repositories.UserRole, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

func (g *GeminiClient) prepare(req repositories.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	temperature := g.temperature
	if req.Temperature != 0 {
		temperature = float32(req.Temperature)
	}
	maxTokens := g.maxOutputTokens
	if req.MaxTokens != 0 {
		maxTokens = req.MaxTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	}

	var system []string
	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case repositories.SystemRole:
			system = append(system, msg.Content)
		case repositories.AssistantRole:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}

// responseText joins the text parts of the first candidate
func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String()
}
