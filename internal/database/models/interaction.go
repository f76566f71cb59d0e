package models

import (
	"context"
	"fmt"

	"github.com/unibazzar/ai-service/internal/database/dbretry"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// InteractionModel handles database operations for the append-only
// interaction log.
type InteractionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewInteraction creates a new InteractionModel.
func NewInteraction(db *bun.DB, logger *zap.Logger) *InteractionModel {
	return &InteractionModel{
		db:     db,
		logger: logger.Named("db_interaction"),
	}
}

// Append inserts one interaction record. Interactions are immutable once
// written, so there is no conflict handling.
func (r *InteractionModel) Append(ctx context.Context, interaction *types.UserInteraction) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(interaction).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to append interaction: %w (userID=%d, listingID=%d)",
				err, interaction.UserID, interaction.ListingID)
		}

		return nil
	})
}

// GetByUser retrieves the most recent interactions for a user.
func (r *InteractionModel) GetByUser(ctx context.Context, userID int64, limit int) ([]*types.UserInteraction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.UserInteraction, error) {
		var interactions []*types.UserInteraction

		err := r.db.NewSelect().
			Model(&interactions).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get interactions: %w (userID=%d)", err, userID)
		}

		return interactions, nil
	})
}

// GetPage streams the full interaction log in insertion order for batch
// retraining, paginated by the record id.
func (r *InteractionModel) GetPage(ctx context.Context, afterID string, limit int) ([]*types.UserInteraction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.UserInteraction, error) {
		var interactions []*types.UserInteraction

		query := r.db.NewSelect().
			Model(&interactions).
			Order("id ASC").
			Limit(limit)

		if afterID != "" {
			query = query.Where("id > ?", afterID)
		}

		if err := query.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get interaction page: %w", err)
		}

		return interactions, nil
	})
}

// Count returns the total number of logged interactions.
func (r *InteractionModel) Count(ctx context.Context) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := r.db.NewSelect().
			Model((*types.UserInteraction)(nil)).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count interactions: %w", err)
		}

		return count, nil
	})
}
