package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/repositories"
)

const defaultCleanupInterval = 30 * time.Minute

// SessionCleanupService periodically removes expired analyses
type SessionCleanupService struct {
	repo     repositories.AnalysisRepository
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(repo repositories.AnalysisRepository, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = defaultCleanupInterval
		logger.Info("Using default cleanup interval", zap.Duration("interval", interval))
	}
	return &SessionCleanupService{
		repo:     repo,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background cleanup process. Calls after the first, or
// after Stop, do nothing.
func (s *SessionCleanupService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service and waits for the loop to exit.
// It is safe to call more than once, and without Start.
func (s *SessionCleanupService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopChan)
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.done
	}
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run initial cleanup soon after startup
	initialTimer := time.NewTimer(min(s.interval, time.Minute))
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.RunCleanup()
		case <-ticker.C:
			s.RunCleanup()
		}
	}
}

// RunCleanup performs one pass and returns how many sessions were removed
func (s *SessionCleanupService) RunCleanup() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := s.repo.ExpireSessions(ctx)
	if err != nil {
		s.logger.Error("Failed to expire sessions", zap.Error(err))
		return 0
	}

	s.logger.Info("Session cleanup completed", zap.Int64("removed", removed))
	return removed
}
