package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/satriahrh/audiolens/domain/repositories"
)

const mockModelName = "mock-audio-analyst"

// MockModel is a deterministic model endpoint for local runs and tests. It
// echoes the question back and streams the answer word by word.
type MockModel struct {
	// Answer overrides the generated reply when set
	Answer string
	// Err makes every call fail
	Err error
}

var (
	_ repositories.ModelEndpoint = (*MockModel)(nil)
	_ repositories.TextGenerator = (*MockModel)(nil)
)

// NewMockModel creates a new mock model endpoint
func NewMockModel() *MockModel {
	return &MockModel{}
}

// Chat implements repositories.ModelEndpoint
func (m *MockModel) Chat(ctx context.Context, req repositories.CompletionRequest) (repositories.Completion, error) {
	if m.Err != nil {
		return repositories.Completion{}, m.Err
	}
	if err := ctx.Err(); err != nil {
		return repositories.Completion{}, err
	}
	return repositories.Completion{Content: m.reply(req), Model: mockModelName}, nil
}

// ChatStream implements repositories.ModelEndpoint
func (m *MockModel) ChatStream(ctx context.Context, req repositories.CompletionRequest, onChunk func(string)) (repositories.Completion, error) {
	if m.Err != nil {
		return repositories.Completion{}, m.Err
	}

	var answer strings.Builder
	for _, chunk := range splitWords(m.reply(req)) {
		if err := ctx.Err(); err != nil {
			return repositories.Completion{Content: answer.String(), Model: mockModelName}, err
		}
		answer.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return repositories.Completion{Content: answer.String(), Model: mockModelName}, nil
}

// HealthCheck implements repositories.ModelEndpoint
func (m *MockModel) HealthCheck(ctx context.Context) repositories.HealthStatus {
	if m.Err != nil {
		return repositories.HealthStatus{Healthy: false, Model: mockModelName, Error: m.Err.Error()}
	}
	return repositories.HealthStatus{
		Healthy:         true,
		AvailableModels: []string{mockModelName},
		ModelLoaded:     true,
		Model:           mockModelName,
	}
}

// GenerateText implements repositories.TextGenerator
func (m *MockModel) GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Answer != "" {
		return m.Answer, nil
	}
	return fmt.Sprintf("Mock response to: %s", prompt), nil
}

func (m *MockModel) reply(req repositories.CompletionRequest) string {
	if m.Answer != "" {
		return m.Answer
	}
	question := ""
	for _, msg := range req.Messages {
		if msg.Role == repositories.UserRole {
			question = firstLine(msg.Content)
		}
	}
	return fmt.Sprintf("**Mock answer.** I received %q but no model is connected.\n\n- Set MODEL_PROVIDER=ollama to use a real model.", question)
}

func firstLine(s string) string {
	s = strings.TrimPrefix(s, "User Question: ")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// splitWords cuts s into chunks that concatenate back to s exactly
func splitWords(s string) []string {
	var chunks []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == ' ' {
			chunks = append(chunks, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}
