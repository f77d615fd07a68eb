package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/domain/repositories"
)

// TestAnalysisRepository_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestAnalysisRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, mongoURI, "audiolens_test", logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	repo, err := NewAnalysisRepository(ctx, client.Database, logger)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	payload := entities.NewAnalysisPayload([]byte(`{"transcription":{"original_text":"halo"},"custom":[1,2]}`))

	t.Run("CreateAndGetSession", func(t *testing.T) {
		session := entities.NewAnalysisSession("a.wav", payload)
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if string(retrieved.Payload.Raw()) != string(payload.Raw()) {
			t.Errorf("Expected payload %s, got %s", payload.Raw(), retrieved.Payload.Raw())
		}

		byHash, err := repo.GetByHash(ctx, payload.ContentHash())
		if err != nil || byHash.ID != session.ID {
			t.Errorf("Expected lookup by hash to find %s, got %v (%v)", session.ID, byHash, err)
		}

		if err := repo.Create(ctx, entities.NewAnalysisSession("b.wav", payload)); err == nil {
			t.Error("Expected duplicate content to be rejected")
		}

		if err := repo.Delete(ctx, session.ID); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if _, err := repo.GetByID(ctx, session.ID); !errors.Is(err, repositories.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound after delete, got %v", err)
		}
	})

	t.Run("ExpireSessions", func(t *testing.T) {
		session := entities.NewAnalysisSession("old.wav", entities.NewAnalysisPayload([]byte(`{"audio":{"old":true}}`)))
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		_, err := client.Database.Collection(analysisCollection).UpdateOne(ctx,
			bson.M{"_id": session.ID},
			bson.M{"$set": bson.M{"expires_at": time.Now().Add(-time.Hour)}})
		if err != nil {
			t.Fatalf("Failed to backdate session: %v", err)
		}

		removed, err := repo.ExpireSessions(ctx)
		if err != nil {
			t.Fatalf("Failed to expire sessions: %v", err)
		}
		// The server's TTL monitor may have removed it first.
		if removed > 1 {
			t.Errorf("Expected at most 1 expired session, got %d", removed)
		}
		if _, err := repo.GetByID(ctx, session.ID); !errors.Is(err, repositories.ErrSessionNotFound) {
			t.Errorf("Expected expired session to be gone, got %v", err)
		}
	})
}
