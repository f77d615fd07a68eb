package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a registered analysis stays available
// without activity.
const DefaultSessionTTL = 24 * time.Hour

// AnalysisSession is a registered analysis that chat requests can refer to by
// ID instead of re-sending the whole payload.
type AnalysisSession struct {
	ID           string          `json:"session_id" bson:"_id"`
	Filename     string          `json:"filename" bson:"filename"`
	ContentHash  string          `json:"-" bson:"content_hash"`
	Payload      AnalysisPayload `json:"results" bson:"-"`
	CreatedAt    time.Time       `json:"created_at" bson:"created_at"`
	LastActiveAt time.Time       `json:"last_active_at" bson:"last_active_at"`
	ExpiresAt    time.Time       `json:"expires_at" bson:"expires_at"`
}

// NewAnalysisSession creates a session for a normalized payload
func NewAnalysisSession(filename string, payload AnalysisPayload) *AnalysisSession {
	now := time.Now()
	return &AnalysisSession{
		ID:           uuid.New().String(),
		Filename:     filename,
		ContentHash:  payload.ContentHash(),
		Payload:      payload,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(DefaultSessionTTL),
	}
}

// Touch updates the last active timestamp and extends expiration
func (s *AnalysisSession) Touch() {
	s.LastActiveAt = time.Now()
	s.ExpiresAt = s.LastActiveAt.Add(DefaultSessionTTL)
}

// IsExpired checks if the session has expired
func (s *AnalysisSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Validate validates the session data
func (s *AnalysisSession) Validate() error {
	if s.ID == "" {
		return errors.New("session_id is required")
	}

	if s.Payload.IsEmpty() {
		return errors.New("analysis results are required")
	}

	if s.ContentHash == "" {
		return errors.New("content hash is required")
	}

	return nil
}
