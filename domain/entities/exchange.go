package entities

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExchangeState represents where a chat exchange is in its lifecycle
type ExchangeState string

const (
	ExchangeStateIdle      ExchangeState = "idle"
	ExchangeStateSending   ExchangeState = "sending"
	ExchangeStateStreaming ExchangeState = "streaming"
	ExchangeStateCompleted ExchangeState = "completed"
	ExchangeStateFailed    ExchangeState = "failed"
)

var (
	// ErrExchangeFinalized is returned when a finished exchange is mutated.
	ErrExchangeFinalized = errors.New("chat exchange is already finalized")
	// ErrEmptyQuestion is returned for a question that is blank after trimming.
	ErrEmptyQuestion = errors.New("question must not be empty")
)

// ChatExchange is one question and its answer as seen at a point in time.
type ChatExchange struct {
	ID         string        `json:"id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	ModelUsed  *string       `json:"model_used"`
	Error      *string       `json:"error"`
	State      ExchangeState `json:"state"`
	FellBack   bool          `json:"fell_back,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Exchange owns the mutable state of one chat exchange. The answer grows
// while it streams and is frozen once it completes or fails for good.
// Exchanges never share state with each other.
type Exchange struct {
	mu       sync.Mutex
	data     ChatExchange
	answer   strings.Builder
	fallback bool
}

// NewExchange creates an idle exchange for a trimmed, non-empty question
func NewExchange(question string) (*Exchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	return &Exchange{
		data: ChatExchange{
			ID:        uuid.New().String(),
			Question:  question,
			State:     ExchangeStateIdle,
			StartedAt: time.Now(),
		},
	}, nil
}

// ID returns the exchange identifier
func (e *Exchange) ID() string {
	return e.data.ID
}

// Question returns the trimmed question
func (e *Exchange) Question() string {
	return e.data.Question
}

// Begin moves the exchange to sending. A failed exchange may be sent once
// more, which is how the non-streaming fallback re-enters the lifecycle.
func (e *Exchange) Begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.data.State {
	case ExchangeStateIdle:
	case ExchangeStateFailed:
		if e.fallback {
			return ErrExchangeFinalized
		}
		e.fallback = true
		e.data.FellBack = true
		e.data.Error = nil
		e.data.FinishedAt = nil
	default:
		return fmt.Errorf("cannot send exchange in state %s", e.data.State)
	}

	e.data.State = ExchangeStateSending
	return nil
}

// Append adds a content increment to the answer
func (e *Exchange) Append(chunk string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.data.State != ExchangeStateSending && e.data.State != ExchangeStateStreaming {
		return ErrExchangeFinalized
	}
	e.data.State = ExchangeStateStreaming
	e.answer.WriteString(chunk)
	e.data.Answer = e.answer.String()
	return nil
}

// ReplaceAnswer discards any partial answer in favour of a complete one
func (e *Exchange) ReplaceAnswer(answer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.data.State != ExchangeStateSending && e.data.State != ExchangeStateStreaming {
		return ErrExchangeFinalized
	}
	e.answer.Reset()
	e.answer.WriteString(answer)
	e.data.Answer = answer
	return nil
}

// Complete finalizes a successful exchange
func (e *Exchange) Complete(modelUsed string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.data.State != ExchangeStateSending && e.data.State != ExchangeStateStreaming {
		return ErrExchangeFinalized
	}
	if modelUsed != "" {
		e.data.ModelUsed = &modelUsed
	}
	e.finish(ExchangeStateCompleted)
	return nil
}

// Fail records err on the exchange. The exchange can still be re-sent once
// through Begin unless it already fell back.
func (e *Exchange) Fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.data.State != ExchangeStateSending && e.data.State != ExchangeStateStreaming {
		return ErrExchangeFinalized
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	e.data.Error = &msg
	e.finish(ExchangeStateFailed)
	return nil
}

// IsFinal reports whether no further transition is possible
func (e *Exchange) IsFinal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.State == ExchangeStateCompleted || (e.data.State == ExchangeStateFailed && e.fallback)
}

// Snapshot returns a copy safe to hand to other goroutines
func (e *Exchange) Snapshot() ChatExchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

func (e *Exchange) finish(state ExchangeState) {
	now := time.Now()
	e.data.State = state
	e.data.FinishedAt = &now
}
