package database

import (
	"github.com/unibazzar/ai-service/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	embedding   *models.EmbeddingModel
	interaction *models.InteractionModel
	moderation  *models.ModerationModel
	profile     *models.ProfileModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		embedding:   models.NewEmbedding(db, logger),
		interaction: models.NewInteraction(db, logger),
		moderation:  models.NewModeration(db, logger),
		profile:     models.NewProfile(db, logger),
	}
}

// Embedding returns the embedding model repository.
func (r *Repository) Embedding() *models.EmbeddingModel {
	return r.embedding
}

// Interaction returns the interaction model repository.
func (r *Repository) Interaction() *models.InteractionModel {
	return r.interaction
}

// Moderation returns the moderation model repository.
func (r *Repository) Moderation() *models.ModerationModel {
	return r.moderation
}

// Profile returns the profile model repository.
func (r *Repository) Profile() *models.ProfileModel {
	return r.profile
}
