package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/domain/repositories"
)

// RegisterResult describes a registered analysis
type RegisterResult struct {
	Session *entities.AnalysisSession
	// Cached is true when an identical analysis was already registered
	Cached bool
}

// AnalysisService stores analyses so chat requests can refer to them by ID
type AnalysisService struct {
	repo   repositories.AnalysisRepository
	logger *zap.Logger
}

var _ PayloadResolver = (*AnalysisService)(nil)

// NewAnalysisService creates a new analysis service
func NewAnalysisService(repo repositories.AnalysisRepository, logger *zap.Logger) *AnalysisService {
	return &AnalysisService{repo: repo, logger: logger}
}

// Register stores payload, reusing the existing session when the same
// analysis was registered before
func (s *AnalysisService) Register(ctx context.Context, filename string, payload entities.AnalysisPayload) (RegisterResult, error) {
	if payload.IsEmpty() {
		return RegisterResult{}, newError(ErrorMissingAudioContext, MessageMissingAudioContext, nil)
	}

	normalized, err := payload.Normalize()
	if err != nil {
		return RegisterResult{}, newError(ErrorRelayInternal, "failed to normalize analysis", err)
	}

	if existing, err := s.cached(ctx, normalized.ContentHash()); err != nil {
		return RegisterResult{}, err
	} else if existing != nil {
		return RegisterResult{Session: existing, Cached: true}, nil
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "analysis.json"
	}
	session := entities.NewAnalysisSession(filename, normalized)
	if err := s.repo.Create(ctx, session); err != nil {
		// A concurrent register of the same content may have won.
		if existing, lookupErr := s.cached(ctx, session.ContentHash); lookupErr == nil && existing != nil {
			return RegisterResult{Session: existing, Cached: true}, nil
		}
		return RegisterResult{}, newError(ErrorRelayInternal, "failed to store analysis", err)
	}

	s.logger.Info("Analysis registered",
		zap.String("session_id", session.ID),
		zap.String("filename", session.Filename))

	return RegisterResult{Session: session}, nil
}

// Get returns a registered analysis
func (s *AnalysisService) Get(ctx context.Context, id string) (*entities.AnalysisSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(id, err)
	}
	return session, nil
}

// Delete removes a registered analysis
func (s *AnalysisService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapLookupError(id, err)
	}
	s.logger.Info("Analysis deleted", zap.String("session_id", id))
	return nil
}

// Resolve implements PayloadResolver. Each lookup extends the session's life.
func (s *AnalysisService) Resolve(ctx context.Context, sessionID string) (entities.AnalysisPayload, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return entities.AnalysisPayload{}, err
	}
	if err := s.repo.Touch(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to extend analysis session", zap.String("session_id", sessionID), zap.Error(err))
	}
	return session.Payload, nil
}

func (s *AnalysisService) cached(ctx context.Context, hash string) (*entities.AnalysisSession, error) {
	existing, err := s.repo.GetByHash(ctx, hash)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newError(ErrorRelayInternal, "failed to look up analysis", err)
	}
	if err := s.repo.Touch(ctx, existing.ID); err != nil {
		s.logger.Warn("Failed to extend analysis session", zap.String("session_id", existing.ID), zap.Error(err))
	}
	s.logger.Info("Analysis already registered", zap.String("session_id", existing.ID))
	return existing, nil
}

func (s *AnalysisService) mapLookupError(id string, err error) error {
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return newError(ErrorSessionNotFound, "Session ID not found: "+id, err)
	}
	return newError(ErrorRelayInternal, "failed to access analysis", err)
}
