// Package embed provides semantic listing search: text encoding, vector
// storage, similarity search over the in-memory index, and re-embedding
// training jobs.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/jobs"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/vector"
	"go.uber.org/zap"
)

var (
	ErrInvalidLimit  = errors.New("limit must be between 1 and 100")
	ErrInvalidOffset = errors.New("offset must not be negative")
)

// Query embeddings are cached briefly; repeated searches for the same text
// are common right after a user types a query.
const queryCacheTTL = time.Hour

// MaxSearchLimit caps one page of search results.
const MaxSearchLimit = 100

// EmbeddingStore is the persistence surface the service needs.
type EmbeddingStore interface {
	Upsert(ctx context.Context, embedding *types.ListingEmbedding) error
}

// Listing carries the fields of a marketplace listing that feed the encoder
// and the result metadata.
type Listing struct {
	ListingID   int64
	CampusID    int64
	OwnerID     int64
	Title       string
	Description string
	Price       float64
}

// SearchResult is one ranked listing from a similarity search.
type SearchResult struct {
	ListingID      int64                   `json:"listingId"`
	RelevanceScore float64                 `json:"relevanceScore"`
	Metadata       types.EmbeddingMetadata `json:"metadata"`
}

// Service implements semantic listing search on top of the encoder snapshot
// and the in-memory vector index.
type Service struct {
	models  *model.Manager
	store   EmbeddingStore
	index   *vector.Index
	runner  *jobs.Runner
	tracker *jobs.Tracker
	cache   rueidis.Client
	retrain jobs.TrainFunc
	logger  *zap.Logger
}

// NewService creates the embedding service. The retrain function rebuilds the
// encoder and index; it runs under the job runner's embedding lock.
func NewService(
	models *model.Manager, store EmbeddingStore, index *vector.Index,
	runner *jobs.Runner, tracker *jobs.Tracker, cache rueidis.Client,
	retrain jobs.TrainFunc, logger *zap.Logger,
) *Service {
	return &Service{
		models:  models,
		store:   store,
		index:   index,
		runner:  runner,
		tracker: tracker,
		cache:   cache,
		retrain: retrain,
		logger:  logger.Named("embed"),
	}
}

// GenerateEmbedding encodes text with the live encoder snapshot and returns
// the vector along with the snapshot version that produced it. Results are
// cached per version; cache failures fall back to encoding.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, string, error) {
	encoder, err := s.models.Encoder()
	if err != nil {
		return nil, "", err
	}

	cacheKey := embeddingCacheKey(encoder.Version, text)

	if cached, ok := s.cacheGet(ctx, cacheKey); ok {
		return cached, encoder.Version, nil
	}

	embedding, err := encoder.Encode(text)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode text: %w", err)
	}

	s.cacheSet(ctx, cacheKey, embedding)

	return embedding, encoder.Version, nil
}

// SearchSimilarListings ranks indexed listings against a text query by cosine
// similarity. Results are ordered by descending relevance with ties broken by
// ascending listing id; a page past the end of the results is empty.
func (s *Service) SearchSimilarListings(
	ctx context.Context, query string, campusID *int64, limit, offset int,
) ([]SearchResult, string, error) {
	if limit <= 0 || limit > MaxSearchLimit {
		return nil, "", fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	if offset < 0 {
		return nil, "", fmt.Errorf("%w: got %d", ErrInvalidOffset, offset)
	}

	embedding, version, err := s.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, "", err
	}

	matches, err := s.index.Search(embedding, campusID, limit, offset)
	if err != nil {
		return nil, "", fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, SearchResult{
			ListingID:      match.Entry.ListingID,
			RelevanceScore: match.Score,
			Metadata:       match.Entry.Metadata,
		})
	}

	return results, version, nil
}

// StoreListingEmbedding encodes a listing and persists the embedding to both
// the database and the live index, replacing any prior embedding for the
// same listing.
func (s *Service) StoreListingEmbedding(ctx context.Context, listing Listing) (*types.ListingEmbedding, error) {
	encoder, err := s.models.Encoder()
	if err != nil {
		return nil, err
	}

	embedding, err := encoder.Encode(listing.Title + " " + listing.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listing %d: %w", listing.ListingID, err)
	}

	return s.StoreEmbedding(ctx, listing, embedding)
}

// StoreEmbedding persists a precomputed vector for a listing. The vector must
// match the live encoder's dimension; a stale vector from an older encoder
// generation is rejected rather than silently mixed into the index.
func (s *Service) StoreEmbedding(
	ctx context.Context, listing Listing, embedding []float32,
) (*types.ListingEmbedding, error) {
	encoder, err := s.models.Encoder()
	if err != nil {
		return nil, err
	}

	if len(embedding) != encoder.Dimension {
		return nil, fmt.Errorf("%w: got %d, encoder has %d (listingID=%d)",
			vector.ErrDimensionMismatch, len(embedding), encoder.Dimension, listing.ListingID)
	}

	now := time.Now().UTC()
	stored := &types.ListingEmbedding{
		ListingID:    listing.ListingID,
		CampusID:     listing.CampusID,
		OwnerID:      listing.OwnerID,
		Vector:       embedding,
		Title:        listing.Title,
		Description:  listing.Description,
		Price:        listing.Price,
		ModelVersion: encoder.Version,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Upsert(ctx, stored); err != nil {
		return nil, err
	}

	err = s.index.Upsert(vector.Entry{
		ListingID: listing.ListingID,
		CampusID:  listing.CampusID,
		OwnerID:   listing.OwnerID,
		Vector:    embedding,
		Metadata: types.EmbeddingMetadata{
			Title:       listing.Title,
			Description: listing.Description,
			CampusID:    listing.CampusID,
			OwnerID:     listing.OwnerID,
			Price:       listing.Price,
			CreatedAt:   now,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index listing %d: %w", listing.ListingID, err)
	}

	return stored, nil
}

// TriggerModelTraining queues an asynchronous re-embedding job. At most one
// embedding job runs at a time.
func (s *Service) TriggerModelTraining(ctx context.Context) (*jobs.Job, error) {
	return s.runner.Run(ctx, jobs.TypeEmbedding, s.retrain)
}

// GetTrainingStatus returns the state of a training job.
func (s *Service) GetTrainingStatus(ctx context.Context, jobID string) (*jobs.Job, error) {
	return s.tracker.Get(ctx, jobID)
}

func (s *Service) cacheGet(ctx context.Context, key string) ([]float32, bool) {
	data, err := s.cache.Do(ctx, s.cache.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			s.logger.Warn("Failed to read embedding cache", zap.Error(err))
		}

		return nil, false
	}

	var embedding []float32
	if err := sonic.Unmarshal(data, &embedding); err != nil {
		s.logger.Warn("Failed to unmarshal cached embedding", zap.Error(err))
		return nil, false
	}

	return embedding, true
}

func (s *Service) cacheSet(ctx context.Context, key string, embedding []float32) {
	data, err := sonic.Marshal(embedding)
	if err != nil {
		s.logger.Warn("Failed to marshal embedding for cache", zap.Error(err))
		return
	}

	err = s.cache.Do(ctx, s.cache.B().
		Set().Key(key).Value(rueidis.BinaryString(data)).
		Ex(queryCacheTTL).Build()).Error()
	if err != nil {
		s.logger.Warn("Failed to write embedding cache", zap.Error(err))
	}
}

func embeddingCacheKey(version, text string) string {
	digest := sha256.Sum256([]byte(text))
	return "embedding:" + version + ":" + hex.EncodeToString(digest[:])
}
