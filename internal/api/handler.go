package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/repositories"
	"github.com/satriahrh/audiolens/usecase"
)

// Handler serves the relay's HTTP surface
type Handler struct {
	chat      *usecase.ChatService
	analyses  *usecase.AnalysisService
	generator repositories.TextGenerator
	logger    *zap.Logger
}

// NewHandler creates a new handler. generator may be nil, in which case
// /api/generate answers 500.
func NewHandler(chat *usecase.ChatService, analyses *usecase.AnalysisService, generator repositories.TextGenerator, logger *zap.Logger) *Handler {
	return &Handler{
		chat:      chat,
		analyses:  analyses,
		generator: generator,
		logger:    logger,
	}
}

// serviceHealth reports that the relay itself is up
func (h *Handler) serviceHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "audiolens-relay",
	})
}

// statusFor maps usecase error codes to HTTP statuses
func statusFor(err error) int {
	switch usecase.CodeOf(err) {
	case usecase.ErrorMissingPrompt, usecase.ErrorMissingAudioContext:
		return http.StatusBadRequest
	case usecase.ErrorSessionNotFound:
		return http.StatusNotFound
	case usecase.ErrorUpstreamUnreachable, usecase.ErrorUpstreamBadStatus:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isClientError reports whether err was caused by the request itself
func isClientError(err error) bool {
	return statusFor(err) < http.StatusInternalServerError
}
