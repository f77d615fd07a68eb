package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/internal/websocket"
)

// InitRoutes initializes all API routes. hub may be nil to disable the
// WebSocket relay.
func InitRoutes(e *echo.Echo, h *Handler, hub *websocket.Hub, logger *zap.Logger) {
	// Health check
	e.GET("/health", h.serviceHealth)

	// Chat relay, reachable both at the backend path and the web app path
	e.POST("/chat", h.askChat)

	g := e.Group("/api")
	g.POST("/chat", h.askChat)
	g.GET("/chat/health", h.chatHealth)
	g.POST("/chat/pull", h.pullModel)
	g.POST("/generate", h.generate)

	// Registered analyses
	e.POST("/sessions", h.registerSession)
	e.GET("/sessions/:id", h.getSession)
	e.DELETE("/sessions/:id", h.deleteSession)
	e.DELETE("/session/:id", h.deleteSession)

	if hub != nil {
		e.GET("/ws/chat", func(c echo.Context) error {
			return websocket.HandleWebSocket(hub, c, logger)
		})
	}
}

// UseMiddleware installs request logging, panic recovery and CORS
func UseMiddleware(e *echo.Echo, allowOrigins []string, logger *zap.Logger) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.RequestID != "" {
				fields = append(fields, zap.String("request_id", v.RequestID))
			}
			if v.Error != nil {
				logger.Error("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("Request handled", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
}
