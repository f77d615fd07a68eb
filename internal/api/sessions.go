package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/usecase"
)

func (h *Handler) registerSession(c echo.Context) error {
	var req RegisterSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Details: err.Error(),
		})
	}

	result, err := h.analyses.Register(c.Request().Context(), req.Filename, entities.NewAnalysisPayload(req.Results))
	if err != nil {
		return h.sessionError(c, err)
	}

	status := http.StatusCreated
	if result.Cached {
		status = http.StatusOK
	}
	return c.JSON(status, newSessionResponse(result.Session, result.Cached))
}

func (h *Handler) getSession(c echo.Context) error {
	session, err := h.analyses.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(session, false))
}

func (h *Handler) deleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.analyses.Delete(c.Request().Context(), id); err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Session %s deleted successfully", id),
	})
}

func (h *Handler) sessionError(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Session API error", zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: usecase.MessageOf(err)})
}
