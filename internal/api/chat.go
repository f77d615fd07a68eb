package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/internal/streaming"
	"github.com/satriahrh/audiolens/usecase"
)

const chatFailureMessage = "Failed to process chat request"

// askChat handles POST /chat. Validation failures are answered as JSON even
// when streaming was requested.
func (h *Handler) askChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Details: err.Error(),
		})
	}

	ctx := c.Request().Context()
	prepared, err := h.chat.Prepare(ctx, usecase.ChatInput{
		Question:  req.EffectiveQuestion(),
		Payload:   req.EffectivePayload(),
		SessionID: req.SessionID,
	})
	if err != nil {
		if isClientError(err) {
			return c.JSON(statusFor(err), ErrorResponse{Error: usecase.MessageOf(err)})
		}
		h.logger.Error("Chat API error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   chatFailureMessage,
			Details: usecase.MessageOf(err),
		})
	}

	if c.QueryParam("stream") == "true" || req.WantsStream() {
		return h.streamChat(c, prepared)
	}

	exchange, err := h.chat.Ask(ctx, prepared)
	if err != nil {
		h.logger.Error("Chat API error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   chatFailureMessage,
			Details: usecase.MessageOf(err),
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Question:  exchange.Question,
		Answer:    exchange.Answer,
		ModelUsed: exchange.ModelUsed,
		Error:     exchange.Error,
	})
}

// streamChat relays increments as SSE frames and always ends the stream with
// exactly one terminal frame
func (h *Handler) streamChat(c echo.Context, req usecase.ChatRequest) error {
	res := c.Response()
	streaming.SetEventStreamHeaders(res.Header())
	res.WriteHeader(http.StatusOK)

	frames := streaming.NewFrameWriter(res)
	chunks := 0
	_, err := h.chat.AskStream(c.Request().Context(), req, func(chunk string) {
		if werr := frames.Content(chunk); werr != nil {
			h.logger.Debug("Failed to write chat chunk", zap.Error(werr))
			return
		}
		chunks++
	})
	if err != nil {
		h.logger.Warn("Chat stream ended with error",
			zap.Int("chunks", chunks),
			zap.Error(err))
		if werr := frames.Error(usecase.MessageOf(err)); werr != nil {
			h.logger.Debug("Failed to write error frame", zap.Error(werr))
		}
		return nil
	}

	if werr := frames.Done(); werr != nil {
		h.logger.Debug("Failed to write done frame", zap.Error(werr))
	}
	return nil
}

// chatHealth probes the model endpoint
func (h *Handler) chatHealth(c echo.Context) error {
	status := h.chat.Health(c.Request().Context())
	if !status.Healthy {
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}

// pullModel asks the model endpoint to download a model
func (h *Handler) pullModel(c echo.Context) error {
	var req PullRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Details: err.Error(),
		})
	}

	model, err := h.chat.PullModel(c.Request().Context(), req.Model)
	if err != nil {
		h.logger.Warn("Model pull failed", zap.String("model", req.Model), zap.Error(err))
		return c.JSON(statusFor(err), PullResponse{Success: false, Error: usecase.MessageOf(err)})
	}
	return c.JSON(http.StatusOK, PullResponse{Success: true, Model: model})
}
