package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// generate handles POST /api/generate, a single-turn completion with an
// optional system prompt
func (h *Handler) generate(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Details: err.Error(),
		})
	}

	if req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Prompt is required"})
	}

	if h.generator == nil {
		h.logger.Error("Text generation requested but no generator is configured")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "AI service not configured. Please set GEMINI_API_KEY environment variable.",
		})
	}

	text, err := h.generator.GenerateText(c.Request().Context(), req.SystemPrompt, req.Prompt)
	if err != nil {
		h.logger.Error("AI generation error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to generate text",
			Details: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, GenerateResponse{Text: text})
}
