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

// ProfileModel handles database operations for derived user profiles.
type ProfileModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewProfile creates a new ProfileModel.
func NewProfile(db *bun.DB, logger *zap.Logger) *ProfileModel {
	return &ProfileModel{
		db:     db,
		logger: logger.Named("db_profile"),
	}
}

// Get retrieves the stored profile for a user.
func (r *ProfileModel) Get(ctx context.Context, userID int64) (*types.UserProfile, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserProfile, error) {
		var profile types.UserProfile

		err := r.db.NewSelect().
			Model(&profile).
			Where("user_id = ?", userID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrProfileNotFound
			}

			return nil, fmt.Errorf("failed to get profile: %w (userID=%d)", err, userID)
		}

		return &profile, nil
	})
}

// Save upserts a user profile. Profiles are derived state, so the latest
// write wins.
func (r *ProfileModel) Save(ctx context.Context, profile *types.UserProfile) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(profile).
			On("CONFLICT (user_id) DO UPDATE").
			Set("campus_id = EXCLUDED.campus_id").
			Set("taste_vector = EXCLUDED.taste_vector").
			Set("latent_factors = EXCLUDED.latent_factors").
			Set("interaction_count = EXCLUDED.interaction_count").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save profile: %w (userID=%d)", err, profile.UserID)
		}

		return nil
	})
}
