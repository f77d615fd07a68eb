package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/domain/repositories"
)

const analysisCollection = "analyses"

// analysisDocument is the stored form of an AnalysisSession. The payload is
// kept as a JSON string so arbitrary keys survive the round trip untouched.
type analysisDocument struct {
	ID           string    `bson:"_id"`
	Filename     string    `bson:"filename"`
	ContentHash  string    `bson:"content_hash"`
	Payload      string    `bson:"payload"`
	CreatedAt    time.Time `bson:"created_at"`
	LastActiveAt time.Time `bson:"last_active_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
}

func toDocument(s *entities.AnalysisSession) analysisDocument {
	return analysisDocument{
		ID:           s.ID,
		Filename:     s.Filename,
		ContentHash:  s.ContentHash,
		Payload:      string(s.Payload.Raw()),
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

func (d analysisDocument) toEntity() *entities.AnalysisSession {
	return &entities.AnalysisSession{
		ID:           d.ID,
		Filename:     d.Filename,
		ContentHash:  d.ContentHash,
		Payload:      entities.NewAnalysisPayload([]byte(d.Payload)),
		CreatedAt:    d.CreatedAt,
		LastActiveAt: d.LastActiveAt,
		ExpiresAt:    d.ExpiresAt,
	}
}

// AnalysisRepository implements repositories.AnalysisRepository on MongoDB
type AnalysisRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.AnalysisRepository = (*AnalysisRepository)(nil)

// NewAnalysisRepository creates the repository and ensures its indexes
func NewAnalysisRepository(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*AnalysisRepository, error) {
	collection := db.Collection(analysisCollection)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Unique hash for dedup of re-uploaded analyses
	hashIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "content_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	}

	// TTL index for automatic cleanup of expired sessions
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	if _, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{hashIndex, ttlIndex}); err != nil {
		return nil, fmt.Errorf("failed to create analysis indexes: %w", err)
	}
	logger.Info("Analysis indexes created successfully")

	return &AnalysisRepository{
		collection: collection,
		logger:     logger,
	}, nil
}

// Create stores a new session, replacing an expired one with the same content
func (r *AnalysisRepository) Create(ctx context.Context, session *entities.AnalysisSession) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	// The TTL monitor runs about once a minute, so stale twins may linger.
	if _, err := r.collection.DeleteMany(ctx, bson.M{
		"content_hash": session.ContentHash,
		"expires_at":   bson.M{"$lte": time.Now()},
	}); err != nil {
		return fmt.Errorf("failed to clear expired analysis: %w", err)
	}

	if _, err := r.collection.InsertOne(ctx, toDocument(session)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("session with this content already exists: %w", err)
		}
		r.logger.Error("Failed to create analysis session", zap.Error(err), zap.String("session_id", session.ID))
		return fmt.Errorf("failed to create analysis session: %w", err)
	}

	r.logger.Info("Analysis session created",
		zap.String("session_id", session.ID),
		zap.String("filename", session.Filename))
	return nil
}

// GetByID implements repositories.AnalysisRepository
func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*entities.AnalysisSession, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByHash implements repositories.AnalysisRepository
func (r *AnalysisRepository) GetByHash(ctx context.Context, hash string) (*entities.AnalysisSession, error) {
	return r.findOne(ctx, bson.M{"content_hash": hash})
}

func (r *AnalysisRepository) findOne(ctx context.Context, filter bson.M) (*entities.AnalysisSession, error) {
	filter["expires_at"] = bson.M{"$gt": time.Now()}

	var doc analysisDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrSessionNotFound
		}
		r.logger.Error("Failed to find analysis session", zap.Error(err))
		return nil, fmt.Errorf("failed to find analysis session: %w", err)
	}
	return doc.toEntity(), nil
}

// Touch implements repositories.AnalysisRepository
func (r *AnalysisRepository) Touch(ctx context.Context, id string) error {
	now := time.Now()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "expires_at": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{
			"last_active_at": now,
			"expires_at":     now.Add(entities.DefaultSessionTTL),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch analysis session: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrSessionNotFound
	}
	return nil
}

// Delete implements repositories.AnalysisRepository
func (r *AnalysisRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error("Failed to delete analysis session", zap.Error(err), zap.String("session_id", id))
		return fmt.Errorf("failed to delete analysis session: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrSessionNotFound
	}

	r.logger.Info("Analysis session deleted", zap.String("session_id", id))
	return nil
}

// ExpireSessions implements repositories.AnalysisRepository
func (r *AnalysisRepository) ExpireSessions(ctx context.Context) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now()}})
	if err != nil {
		r.logger.Error("Failed to expire analysis sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to expire analysis sessions: %w", err)
	}
	if result.DeletedCount > 0 {
		r.logger.Info("Expired analysis sessions", zap.Int64("count", result.DeletedCount))
	}
	return result.DeletedCount, nil
}
