package api

import (
	"encoding/json"
	"time"

	"github.com/satriahrh/audiolens/domain/entities"
)

// ChatRequest is the body of POST /chat. prompt and question are aliases, as
// are audioResults and audioData; the first non-empty one wins.
type ChatRequest struct {
	Prompt       string          `json:"prompt"`
	Question     string          `json:"question"`
	AudioResults json.RawMessage `json:"audioResults"`
	AudioData    json.RawMessage `json:"audioData"`
	SessionID    string          `json:"session_id"`
	Stream       any             `json:"stream"`
}

// EffectiveQuestion returns prompt, falling back to question
func (r ChatRequest) EffectiveQuestion() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.Question
}

// EffectivePayload returns audioResults, falling back to audioData
func (r ChatRequest) EffectivePayload() entities.AnalysisPayload {
	payload := entities.NewAnalysisPayload(r.AudioResults)
	if payload.IsEmpty() {
		payload = entities.NewAnalysisPayload(r.AudioData)
	}
	return payload
}

// WantsStream reports whether the body asked for streaming. Only a JSON true
// counts.
func (r ChatRequest) WantsStream() bool {
	v, ok := r.Stream.(bool)
	return ok && v
}

// ChatResponse is the non-streaming answer
type ChatResponse struct {
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	ModelUsed *string `json:"model_used"`
	Error     *string `json:"error"`
}

// RegisterSessionRequest is the body of POST /sessions. It accepts the
// process-audio response as-is.
type RegisterSessionRequest struct {
	Filename string          `json:"filename"`
	Results  json.RawMessage `json:"results"`
}

// SessionResponse describes a registered analysis
type SessionResponse struct {
	SessionID string                   `json:"session_id"`
	Filename  string                   `json:"filename"`
	Results   entities.AnalysisPayload `json:"results"`
	Cached    bool                     `json:"cached"`
	CreatedAt time.Time                `json:"created_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// PullRequest is the body of POST /api/chat/pull
type PullRequest struct {
	Model string `json:"model"`
}

// PullResponse reports the outcome of a model pull
type PullResponse struct {
	Success bool   `json:"success"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GenerateRequest is the body of POST /api/generate
type GenerateRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"systemPrompt"`
}

// GenerateResponse carries generated text
type GenerateResponse struct {
	Text string `json:"text"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

func newSessionResponse(session *entities.AnalysisSession, cached bool) SessionResponse {
	return SessionResponse{
		SessionID: session.ID,
		Filename:  session.Filename,
		Results:   session.Payload,
		Cached:    cached,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
}
