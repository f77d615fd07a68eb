package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/audiolens/domain/entities"
)

// ErrSessionNotFound is returned when no stored analysis matches
var ErrSessionNotFound = errors.New("session not found")

// AnalysisRepository defines data access methods for registered analyses
type AnalysisRepository interface {
	Create(ctx context.Context, session *entities.AnalysisSession) error
	GetByID(ctx context.Context, id string) (*entities.AnalysisSession, error)
	// GetByHash finds a session holding the same payload. It returns
	// ErrSessionNotFound when there is none.
	GetByHash(ctx context.Context, hash string) (*entities.AnalysisSession, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// ExpireSessions removes sessions past their expiration and reports how
	// many were removed
	ExpireSessions(ctx context.Context) (int64, error)
}
