package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/internal/streaming"
)

type chatRequestBody struct {
	Question     string                    `json:"question"`
	SessionID    string                    `json:"session_id,omitempty"`
	AudioResults *entities.AnalysisPayload `json:"audioResults,omitempty"`
	Stream       bool                      `json:"stream,omitempty"`
}

// ChatResponse is the relay's non-streaming answer
type ChatResponse struct {
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	ModelUsed *string `json:"model_used"`
	Error     *string `json:"error"`
}

func newChatBody(session Session, question string, stream bool) ([]byte, error) {
	body := chatRequestBody{Question: question, Stream: stream}
	if session.ID != "" {
		body.SessionID = session.ID
	} else if !session.Payload.IsEmpty() {
		payload := session.Payload
		body.AudioResults = &payload
	}
	return json.Marshal(body)
}

// SendStreaming asks question over SSE. Each base URL is tried in order
// until one reaches the terminal frame. onChunk only runs while ctx is alive.
//
// When streaming fails and ctx is still alive, one non-streaming request is
// made. Its answer replaces whatever was streamed and reaches onChunk as a
// single chunk only if nothing was delivered before. Once a stream has
// delivered content the remaining URLs are skipped.
func (c *Client) SendStreaming(ctx context.Context, session Session, question string, onChunk func(string)) entities.ChatExchange {
	exchange, err := entities.NewExchange(question)
	if err != nil {
		return rejected(question, err)
	}
	if err := exchange.Begin(); err != nil {
		return rejected(question, err)
	}

	body, err := newChatBody(session, exchange.Question(), true)
	if err != nil {
		return c.fail(exchange, fmt.Errorf("failed to encode request: %w", err))
	}

	delivered := false
	deliver := func(chunk string) {
		if ctx.Err() != nil {
			return
		}
		if exchange.Append(chunk) != nil {
			return
		}
		delivered = true
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	var errs error
	for _, base := range c.baseURLs {
		if ctx.Err() != nil || delivered {
			break
		}
		url := base + c.chatPath + "?stream=true"
		err := c.streamOnce(ctx, url, body, deliver)
		if err == nil {
			_ = exchange.Complete("")
			snapshot := exchange.Snapshot()
			c.logger.Debug("Chat stream completed",
				zap.String("url", url),
				zap.Int("answer_length", len(snapshot.Answer)))
			return snapshot
		}
		c.logger.Warn("Chat stream failed",
			zap.String("url", url),
			zap.Bool("delivered", delivered),
			zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", url, err))
	}

	if err := ctx.Err(); err != nil {
		return c.fail(exchange, multierr.Append(errs, err))
	}

	_ = exchange.Fail(errs)
	if err := exchange.Begin(); err != nil {
		return exchange.Snapshot()
	}

	c.logger.Info("Falling back to a non-streaming request", zap.Error(errs))
	resp, err := c.ask(ctx, session, exchange.Question())
	if err != nil {
		return c.fail(exchange, multierr.Append(fmt.Errorf("streaming failed: %w", errs), err))
	}

	_ = exchange.ReplaceAnswer(resp.Answer)
	if !delivered && onChunk != nil && ctx.Err() == nil && resp.Answer != "" {
		onChunk(resp.Answer)
	}
	_ = exchange.Complete(modelName(resp.ModelUsed))
	return exchange.Snapshot()
}

// SendNonStreaming asks question with one JSON request per base URL until
// one succeeds
func (c *Client) SendNonStreaming(ctx context.Context, session Session, question string) entities.ChatExchange {
	exchange, err := entities.NewExchange(question)
	if err != nil {
		return rejected(question, err)
	}
	if err := exchange.Begin(); err != nil {
		return rejected(question, err)
	}

	resp, err := c.ask(ctx, session, exchange.Question())
	if err != nil {
		return c.fail(exchange, err)
	}
	_ = exchange.ReplaceAnswer(resp.Answer)
	_ = exchange.Complete(modelName(resp.ModelUsed))
	return exchange.Snapshot()
}

// ask performs the non-streaming call. A relay answering 200 with an error
// counts as a failed endpoint.
func (c *Client) ask(ctx context.Context, session Session, question string) (ChatResponse, error) {
	body, err := newChatBody(session, question, false)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp ChatResponse
	err = c.fetchWithFallback(ctx, http.MethodPost, c.chatPath, body, func(r *http.Response) error {
		var decoded ChatResponse
		if err := decodeInto(&decoded)(r); err != nil {
			return err
		}
		if decoded.Error != nil && *decoded.Error != "" {
			return errors.New(*decoded.Error)
		}
		resp = decoded
		return nil
	})
	return resp, err
}

// streamOnce reads one SSE response to its terminal frame
func (c *Client) streamOnce(ctx context.Context, url string, body []byte, deliver func(string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return ErrNoBody
	}

	parser := streaming.NewFrameParser(deliver)
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 && parser.Feed(buf[:n]) {
			break
		}
		if rerr == io.EOF {
			parser.Flush()
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	if err := parser.FrameError(); err != nil {
		return err
	}
	if !parser.Done() {
		return ErrIncompleteStream
	}
	return nil
}

// fail ends the exchange with err and an answer describing it
func (c *Client) fail(exchange *entities.Exchange, err error) entities.ChatExchange {
	_ = exchange.ReplaceAnswer(failureAnswer(err))
	_ = exchange.Fail(err)
	return exchange.Snapshot()
}

func rejected(question string, err error) entities.ChatExchange {
	msg := err.Error()
	return entities.ChatExchange{
		Question: question,
		Answer:   failureAnswer(err),
		Error:    &msg,
		State:    entities.ExchangeStateFailed,
	}
}

func failureAnswer(err error) string {
	return fmt.Sprintf("Sorry, I could not get an answer: %v", err)
}

func modelName(model *string) string {
	if model == nil {
		return ""
	}
	return *model
}
