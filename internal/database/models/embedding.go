package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unibazzar/ai-service/internal/database/dbretry"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// EmbeddingModel handles database operations for listing embeddings.
type EmbeddingModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewEmbedding creates a new EmbeddingModel.
func NewEmbedding(db *bun.DB, logger *zap.Logger) *EmbeddingModel {
	return &EmbeddingModel{
		db:     db,
		logger: logger.Named("db_embedding"),
	}
}

// Upsert stores a listing embedding, overwriting any prior embedding for
// the same listing id.
func (r *EmbeddingModel) Upsert(ctx context.Context, embedding *types.ListingEmbedding) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(embedding).
			On("CONFLICT (listing_id) DO UPDATE").
			Set("campus_id = EXCLUDED.campus_id").
			Set("owner_id = EXCLUDED.owner_id").
			Set("vector = EXCLUDED.vector").
			Set("title = EXCLUDED.title").
			Set("description = EXCLUDED.description").
			Set("price = EXCLUDED.price").
			Set("model_version = EXCLUDED.model_version").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert embedding: %w (listingID=%d)", err, embedding.ListingID)
		}

		return nil
	})
}

// Get retrieves the stored embedding for a listing.
func (r *EmbeddingModel) Get(ctx context.Context, listingID int64) (*types.ListingEmbedding, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ListingEmbedding, error) {
		var embedding types.ListingEmbedding

		err := r.db.NewSelect().
			Model(&embedding).
			Where("listing_id = ?", listingID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrEmbeddingNotFound
			}

			return nil, fmt.Errorf("failed to get embedding: %w (listingID=%d)", err, listingID)
		}

		return &embedding, nil
	})
}

// GetAll retrieves all stored embeddings, paginated by listing id so the
// index rebuild and re-embedding jobs can stream the corpus.
func (r *EmbeddingModel) GetAll(ctx context.Context, afterListingID int64, limit int) ([]*types.ListingEmbedding, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ListingEmbedding, error) {
		var embeddings []*types.ListingEmbedding

		err := r.db.NewSelect().
			Model(&embeddings).
			Where("listing_id > ?", afterListingID).
			Order("listing_id ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get embeddings: %w", err)
		}

		return embeddings, nil
	})
}

// GetByCampus retrieves embeddings for one campus, paginated by listing id.
func (r *EmbeddingModel) GetByCampus(
	ctx context.Context, campusID, afterListingID int64, limit int,
) ([]*types.ListingEmbedding, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ListingEmbedding, error) {
		var embeddings []*types.ListingEmbedding

		err := r.db.NewSelect().
			Model(&embeddings).
			Where("campus_id = ?", campusID).
			Where("listing_id > ?", afterListingID).
			Order("listing_id ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get embeddings by campus: %w (campusID=%d)", err, campusID)
		}

		return embeddings, nil
	})
}

// Count returns the number of stored embeddings.
func (r *EmbeddingModel) Count(ctx context.Context) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := r.db.NewSelect().
			Model((*types.ListingEmbedding)(nil)).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count embeddings: %w", err)
		}

		return count, nil
	})
}
