package repositories

import "context"

// ModelEndpoint abstracts any model-serving backend the relay can talk to
type ModelEndpoint interface {
	// Chat performs one request/response completion
	Chat(ctx context.Context, req CompletionRequest) (Completion, error)
	// ChatStream performs a streamed completion, calling onChunk for every
	// content increment in arrival order
	ChatStream(ctx context.Context, req CompletionRequest, onChunk func(string)) (Completion, error)
	// HealthCheck probes reachability. It never fails; problems are
	// reported through the returned status.
	HealthCheck(ctx context.Context) HealthStatus
}

// ModelPuller is implemented by endpoints that can download models on demand
type ModelPuller interface {
	// PullModel downloads name, or the configured model when name is empty,
	// and returns the model that was pulled
	PullModel(ctx context.Context, name string) (string, error)
}

// TextGenerator produces a one-shot answer for a free-form prompt
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// CompletionRequest is what the relay asks of a model endpoint
type CompletionRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Completion is the final answer of one request
type Completion struct {
	Content string
	Model   string
}

// HealthStatus is the result of probing a model endpoint
type HealthStatus struct {
	Healthy         bool     `json:"healthy"`
	AvailableModels []string `json:"availableModels"`
	ModelLoaded     bool     `json:"modelLoaded"`
	Model           string   `json:"model,omitempty"`
	Error           string   `json:"error,omitempty"`
	Message         string   `json:"message,omitempty"`
}
