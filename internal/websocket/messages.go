package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeChat      MessageType = "chat"
	MessageTypeChatChunk MessageType = "chat_chunk"
	MessageTypeChatDone  MessageType = "chat_done"
	MessageTypePing      MessageType = "ping"
	MessageTypePong      MessageType = "pong"
	MessageTypeError     MessageType = "error"
)

// Error codes produced by the WebSocket layer itself
const (
	ErrorCodeInvalidMessage = "INVALID_MESSAGE"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// ChatMessage asks one question. Either SessionID or AudioResults carries
// the analysis.
type ChatMessage struct {
	BaseMessage
	ExchangeID   string          `json:"exchange_id,omitempty"`
	Question     string          `json:"question"`
	SessionID    string          `json:"session_id,omitempty"`
	AudioResults json.RawMessage `json:"audioResults,omitempty"`
}

// ChatChunkMessage carries one answer increment
type ChatChunkMessage struct {
	BaseMessage
	ExchangeID string `json:"exchange_id"`
	Content    string `json:"content"`
}

// ChatDoneMessage ends a successful exchange
type ChatDoneMessage struct {
	BaseMessage
	ExchangeID string  `json:"exchange_id"`
	Answer     string  `json:"answer"`
	ModelUsed  *string `json:"model_used"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response. ExchangeID is empty when the
// error is not tied to an exchange.
type ErrorMessage struct {
	BaseMessage
	ExchangeID string `json:"exchange_id,omitempty"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses an incoming message into its typed form. Chat
// messages without an exchange_id get a generated one.
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid chat message: %w", err)
		}
		if msg.Timestamp == "" {
			msg.Timestamp = now()
		}
		if strings.TrimSpace(msg.ExchangeID) == "" {
			msg.ExchangeID = uuid.New().String()
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message missing type field")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// CreateChunkMessage creates an answer increment message
func CreateChunkMessage(exchangeID, content string) *ChatChunkMessage {
	return &ChatChunkMessage{
		BaseMessage: BaseMessage{Type: MessageTypeChatChunk, Timestamp: now()},
		ExchangeID:  exchangeID,
		Content:     content,
	}
}

// CreateDoneMessage creates the terminal success message of an exchange
func CreateDoneMessage(exchangeID, answer string, modelUsed *string) *ChatDoneMessage {
	return &ChatDoneMessage{
		BaseMessage: BaseMessage{Type: MessageTypeChatDone, Timestamp: now()},
		ExchangeID:  exchangeID,
		Answer:      answer,
		ModelUsed:   modelUsed,
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(exchangeID, code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: now()},
		ExchangeID:  exchangeID,
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{Type: MessageTypePong, Timestamp: now()},
		Data:        data,
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
