package recommend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/vector"
	"go.uber.org/zap"
)

// Profile updates are serialized per user through a fixed pool of shard
// locks, so concurrent interactions from the same user never lose updates
// while unrelated users stay uncontended.
const profileShards = 64

// ProfileStore is the persistence surface for derived user profiles.
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*types.UserProfile, error)
	Save(ctx context.Context, profile *types.UserProfile) error
}

type profileUpdater struct {
	store ProfileStore
	decay float64
	locks [profileShards]sync.Mutex
}

func (u *profileUpdater) shard(userID int64) *sync.Mutex {
	return &u.locks[uint64(userID)%profileShards]
}

// apply folds one interaction into the user's taste vector. The existing
// vector decays toward the listing vector, scaled by the interaction weight
// so a purchase moves the profile further than a view.
func (u *profileUpdater) apply(
	ctx context.Context, userID int64, entry vector.Entry, weight float64, logger *zap.Logger,
) error {
	mu := u.shard(userID)
	mu.Lock()
	defer mu.Unlock()

	profile, err := u.store.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, types.ErrProfileNotFound) {
			return err
		}

		profile = &types.UserProfile{UserID: userID}
	}

	if profile.CampusID == 0 {
		profile.CampusID = entry.CampusID
	}

	if len(profile.TasteVector) != len(entry.Vector) {
		// First interaction, or the encoder dimension changed underneath
		// the stored vector; either way the listing vector is the best
		// available estimate.
		profile.TasteVector = append([]float32(nil), entry.Vector...)
	} else {
		blend := (1 - u.decay) * normalizeWeight(weight)
		for i := range profile.TasteVector {
			profile.TasteVector[i] = float32(
				u.decay*float64(profile.TasteVector[i]) + blend*float64(entry.Vector[i]))
		}
	}

	profile.InteractionCount++
	profile.UpdatedAt = time.Now().UTC()

	if err := u.store.Save(ctx, profile); err != nil {
		return err
	}

	logger.Debug("Updated user profile",
		zap.Int64("userID", userID),
		zap.Int64("interactionCount", profile.InteractionCount))

	return nil
}

// normalizeWeight maps the implicit interaction weight (1 to 5) into (0, 1].
func normalizeWeight(weight float64) float64 {
	if weight <= 0 {
		weight = 1
	}

	if weight > 5 {
		weight = 5
	}

	return weight / 5
}
