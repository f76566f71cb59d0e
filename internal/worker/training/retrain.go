package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/setup/config"
	"go.uber.org/zap"
)

// A fixed seed keeps retrains reproducible over the same interaction log.
const trainingSeed = 1

// InteractionLog is the persistence surface the retrainer needs.
type InteractionLog interface {
	GetPage(ctx context.Context, afterID string, limit int) ([]*types.UserInteraction, error)
}

// ProfileStore persists the per-user latent factors learned by retraining.
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*types.UserProfile, error)
	Save(ctx context.Context, profile *types.UserProfile) error
}

// Retrainer rebuilds the collaborative-filtering model from the full
// interaction log and refreshes the stored latent factors per user.
type Retrainer struct {
	log       InteractionLog
	profiles  ProfileStore
	models    *model.Manager
	policy    *config.Recommendation
	artifacts *config.Models
	batchSize int
	logger    *zap.Logger
}

// NewRetrainer creates the collaborative-filtering trainer.
func NewRetrainer(
	log InteractionLog, profiles ProfileStore, models *model.Manager,
	policy *config.Recommendation, artifacts *config.Models,
	batchSize int, logger *zap.Logger,
) *Retrainer {
	return &Retrainer{
		log:       log,
		profiles:  profiles,
		models:    models,
		policy:    policy,
		artifacts: artifacts,
		batchSize: batchSize,
		logger:    logger.Named("retrain"),
	}
}

// Run executes one full retraining pass. It satisfies jobs.TrainFunc.
func (r *Retrainer) Run(ctx context.Context, report func(progress float64, message string)) error {
	report(5, "loading interaction log")

	interactions, err := r.loadInteractions(ctx)
	if err != nil {
		return err
	}

	if len(interactions) == 0 {
		r.logger.Info("No interactions to train on")
		report(100, "no interactions to train on")

		return nil
	}

	report(30, fmt.Sprintf("training on %d interactions", len(interactions)))

	version := "cf_v" + time.Now().UTC().Format("20060102150405")
	snapshot := model.TrainCF(interactions, version, model.CFTrainOptions{
		Factors:        r.policy.LatentFactors,
		Epochs:         r.policy.TrainingEpochs,
		LearningRate:   r.policy.LearningRate,
		Regularization: r.policy.Regularization,
		Seed:           trainingSeed,
	})

	report(70, "persisting model")

	if err := model.SaveArtifact(r.artifacts.ArtifactDir, r.artifacts.CollaborativeArtifact, snapshot); err != nil {
		return err
	}

	report(85, "refreshing user latent factors")

	if err := r.refreshProfiles(ctx, snapshot); err != nil {
		return err
	}

	r.models.SwapCF(snapshot)

	r.logger.Info("Collaborative retraining completed",
		zap.String("version", version),
		zap.Int("users", len(snapshot.UserFactors)),
		zap.Int("listings", len(snapshot.ItemFactors)))

	return nil
}

// refreshProfiles writes the freshly learned latent factors back into each
// user's profile, preserving the incrementally maintained taste vector.
func (r *Retrainer) refreshProfiles(ctx context.Context, snapshot *model.CFSnapshot) error {
	now := time.Now().UTC()

	for userID, factors := range snapshot.UserFactors {
		profile, err := r.profiles.Get(ctx, userID)
		if err != nil {
			if !errors.Is(err, types.ErrProfileNotFound) {
				return err
			}

			profile = &types.UserProfile{UserID: userID}
		}

		profile.LatentFactors = append([]float32(nil), factors...)
		profile.UpdatedAt = now

		if err := r.profiles.Save(ctx, profile); err != nil {
			return err
		}
	}

	return nil
}

func (r *Retrainer) loadInteractions(ctx context.Context) ([]*types.UserInteraction, error) {
	var (
		all   []*types.UserInteraction
		after string
	)

	for {
		page, err := r.log.GetPage(ctx, after, r.batchSize)
		if err != nil {
			return nil, err
		}

		if len(page) == 0 {
			return all, nil
		}

		all = append(all, page...)
		after = page[len(page)-1].ID
	}
}
