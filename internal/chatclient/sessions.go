package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/satriahrh/audiolens/domain/entities"
)

// HealthResponse is the relay's service health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// SessionInfo describes a registered analysis
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Filename  string    `json:"filename"`
	Cached    bool      `json:"cached"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session returns a Session referring to the registered analysis
func (i SessionInfo) Session() Session {
	return Session{ID: i.SessionID}
}

type registerBody struct {
	Filename string                   `json:"filename,omitempty"`
	Results  entities.AnalysisPayload `json:"results"`
}

type messageBody struct {
	Message string `json:"message"`
}

// HealthCheck asks the first reachable relay for its health
func (c *Client) HealthCheck(ctx context.Context) (HealthResponse, error) {
	var health HealthResponse
	err := c.fetchWithFallback(ctx, http.MethodGet, "/health", nil, decodeInto(&health))
	return health, err
}

// RegisterAnalysis stores payload on the relay so later questions can refer
// to it by session ID
func (c *Client) RegisterAnalysis(ctx context.Context, filename string, payload entities.AnalysisPayload) (SessionInfo, error) {
	body, err := json.Marshal(registerBody{Filename: filename, Results: payload})
	if err != nil {
		return SessionInfo{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var info SessionInfo
	err = c.fetchWithFallback(ctx, http.MethodPost, "/sessions", body, decodeInto(&info))
	return info, err
}

// DeleteSession removes a registered analysis and returns the relay's
// confirmation
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (string, error) {
	var msg messageBody
	err := c.fetchWithFallback(ctx, http.MethodDelete, "/session/"+url.PathEscape(sessionID), nil, decodeInto(&msg))
	return msg.Message, err
}
