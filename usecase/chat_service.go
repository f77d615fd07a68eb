package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/domain/repositories"
)

const defaultUpstreamTimeout = 60 * time.Second

// PayloadResolver looks up a registered analysis by session ID
type PayloadResolver interface {
	Resolve(ctx context.Context, sessionID string) (entities.AnalysisPayload, error)
}

// ChatInput is a raw chat request before validation
type ChatInput struct {
	Question  string
	Payload   entities.AnalysisPayload
	SessionID string
}

// ChatRequest is a validated question with its analysis attached
type ChatRequest struct {
	Question string
	Payload  entities.AnalysisPayload
}

// ChatConfig tunes a ChatService
type ChatConfig struct {
	UpstreamTimeout time.Duration
	Temperature     float64
	MaxTokens       int
}

// ChatService relays questions about an analysis to a model endpoint. It
// holds no per-exchange state; every call builds its own exchange.
type ChatService struct {
	model    repositories.ModelEndpoint
	resolver PayloadResolver
	config   ChatConfig
	logger   *zap.Logger
}

// NewChatService creates a new chat service. resolver may be nil when
// session lookups are not supported.
func NewChatService(model repositories.ModelEndpoint, resolver PayloadResolver, config ChatConfig, logger *zap.Logger) *ChatService {
	if config.UpstreamTimeout <= 0 {
		config.UpstreamTimeout = defaultUpstreamTimeout
		logger.Info("Using default upstream timeout", zap.Duration("timeout", config.UpstreamTimeout))
	}
	return &ChatService{
		model:    model,
		resolver: resolver,
		config:   config,
		logger:   logger,
	}
}

// Prepare validates input and resolves a session ID into its payload. An
// inline payload wins over a session ID.
func (s *ChatService) Prepare(ctx context.Context, in ChatInput) (ChatRequest, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return ChatRequest{}, newError(ErrorMissingPrompt, MessageMissingPrompt, nil)
	}

	payload := in.Payload
	sessionID := strings.TrimSpace(in.SessionID)
	if payload.IsEmpty() && sessionID != "" && s.resolver != nil {
		resolved, err := s.resolver.Resolve(ctx, sessionID)
		if err != nil {
			return ChatRequest{}, err
		}
		payload = resolved
	}
	if payload.IsEmpty() {
		return ChatRequest{}, newError(ErrorMissingAudioContext, MessageMissingAudioContext, nil)
	}

	return ChatRequest{Question: question, Payload: payload}, nil
}

// Ask performs one non-streaming exchange. Upstream failures are captured in
// the exchange's Error field; the returned error is reserved for failures of
// the relay itself.
func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (entities.ChatExchange, error) {
	exchange, messages, err := s.begin(req)
	if err != nil {
		return entities.ChatExchange{}, err
	}
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.config.UpstreamTimeout)
	defer cancel()

	completion, err := s.model.Chat(ctx, s.completionRequest(messages))
	if err != nil {
		classified := classifyUpstream(err)
		s.logger.Warn("Upstream chat failed",
			zap.String("exchange_id", exchange.ID()),
			zap.String("code", string(classified.Code)),
			zap.Error(err))
		_ = exchange.Fail(errors.New(classified.Message()))
		return exchange.Snapshot(), nil
	}

	_ = exchange.ReplaceAnswer(completion.Content)
	_ = exchange.Complete(completion.Model)

	s.logger.Info("Chat exchange completed",
		zap.String("exchange_id", exchange.ID()),
		zap.String("model", completion.Model),
		zap.Int("answer_length", len(completion.Content)),
		zap.Duration("elapsed", time.Since(started)))

	return exchange.Snapshot(), nil
}

// AskStream performs one streaming exchange. onChunk receives each increment
// in upstream order. On failure the partial exchange is returned together
// with the classified error.
func (s *ChatService) AskStream(ctx context.Context, req ChatRequest, onChunk func(string)) (entities.ChatExchange, error) {
	exchange, messages, err := s.begin(req)
	if err != nil {
		return entities.ChatExchange{}, err
	}
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.config.UpstreamTimeout)
	defer cancel()

	chunks := 0
	completion, err := s.model.ChatStream(ctx, s.completionRequest(messages), func(chunk string) {
		if exchange.Append(chunk) != nil {
			return
		}
		chunks++
		if onChunk != nil {
			onChunk(chunk)
		}
	})
	if err != nil {
		classified := classifyUpstream(err)
		s.logger.Warn("Upstream stream failed",
			zap.String("exchange_id", exchange.ID()),
			zap.String("code", string(classified.Code)),
			zap.Int("chunks", chunks),
			zap.Error(err))
		_ = exchange.Fail(errors.New(classified.Message()))
		return exchange.Snapshot(), classified
	}

	_ = exchange.Complete(completion.Model)

	s.logger.Info("Chat stream completed",
		zap.String("exchange_id", exchange.ID()),
		zap.String("model", completion.Model),
		zap.Int("chunks", chunks),
		zap.Duration("elapsed", time.Since(started)))

	return exchange.Snapshot(), nil
}

// Health probes the model endpoint
func (s *ChatService) Health(ctx context.Context) repositories.HealthStatus {
	return s.model.HealthCheck(ctx)
}

// PullModel downloads a model when the endpoint supports it
func (s *ChatService) PullModel(ctx context.Context, name string) (string, error) {
	puller, ok := s.model.(repositories.ModelPuller)
	if !ok {
		return "", newError(ErrorRelayInternal, "model provider does not support pulling models", nil)
	}
	model, err := puller.PullModel(ctx, name)
	if err != nil {
		return "", classifyUpstream(err)
	}
	return model, nil
}

func (s *ChatService) begin(req ChatRequest) (*entities.Exchange, []repositories.ChatMessage, error) {
	if req.Payload.IsEmpty() {
		return nil, nil, newError(ErrorMissingAudioContext, MessageMissingAudioContext, nil)
	}
	exchange, err := entities.NewExchange(req.Question)
	if err != nil {
		return nil, nil, newError(ErrorMissingPrompt, MessageMissingPrompt, err)
	}

	messages, err := BuildMessages(exchange.Question(), req.Payload)
	if err != nil {
		return nil, nil, newError(ErrorRelayInternal, "failed to compose upstream messages", err)
	}
	if err := exchange.Begin(); err != nil {
		return nil, nil, newError(ErrorRelayInternal, "failed to start exchange", err)
	}
	return exchange, messages, nil
}

func (s *ChatService) completionRequest(messages []repositories.ChatMessage) repositories.CompletionRequest {
	return repositories.CompletionRequest{
		Messages:    messages,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	}
}
