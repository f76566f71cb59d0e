package model

import (
	"math"
	"math/rand"
	"sort"

	"github.com/unibazzar/ai-service/internal/database/types"
)

// CFSnapshot is an immutable trained collaborative-filtering model. It holds
// the learned latent factors plus a popularity ranking used as a fallback for
// users or listings the model has never seen.
type CFSnapshot struct {
	Version     string              `json:"version"`
	Factors     int                 `json:"factors"`
	GlobalMean  float64             `json:"globalMean"`
	UserFactors map[int64][]float32 `json:"userFactors"`
	ItemFactors map[int64][]float32 `json:"itemFactors"`
	UserBias    map[int64]float64   `json:"userBias"`
	ItemBias    map[int64]float64   `json:"itemBias"`
	Popularity  []PopularityEntry   `json:"popularity"`
}

// PopularityEntry is one listing in the global popularity ranking.
type PopularityEntry struct {
	ListingID int64   `json:"listingId"`
	Score     float64 `json:"score"`
}

// Predict estimates a preference score for a user and listing pair. The
// second return value is false when either side is unknown to the model and
// the caller should fall back to content or popularity signals.
func (c *CFSnapshot) Predict(userID, listingID int64) (float64, bool) {
	userVec, okUser := c.UserFactors[userID]
	itemVec, okItem := c.ItemFactors[listingID]

	if !okUser || !okItem {
		return 0, false
	}

	score := c.GlobalMean + c.UserBias[userID] + c.ItemBias[listingID]
	for i := range userVec {
		score += float64(userVec[i]) * float64(itemVec[i])
	}

	return score, true
}

// UserVector returns the learned latent factors for a user.
func (c *CFSnapshot) UserVector(userID int64) ([]float32, bool) {
	vec, ok := c.UserFactors[userID]
	return vec, ok
}

// CFTrainOptions controls matrix-factorization training.
type CFTrainOptions struct {
	Factors        int
	Epochs         int
	LearningRate   float64
	Regularization float64
	Seed           int64
}

// TrainCF fits latent factors to the interaction log with biased SGD matrix
// factorization. Interaction types contribute their implicit weight as the
// target preference. The seed fixes factor initialization so retrains over
// the same log reproduce the same model.
func TrainCF(interactions []*types.UserInteraction, version string, opts CFTrainOptions) *CFSnapshot {
	rng := rand.New(rand.NewSource(opts.Seed))

	type rating struct {
		userID    int64
		listingID int64
		value     float64
	}

	ratings := make([]rating, 0, len(interactions))
	popularity := make(map[int64]float64)

	var sum float64

	for _, interaction := range interactions {
		value := interaction.Type.Weight()
		if interaction.Value > 0 {
			value = interaction.Value
		}

		ratings = append(ratings, rating{
			userID:    interaction.UserID,
			listingID: interaction.ListingID,
			value:     value,
		})
		popularity[interaction.ListingID] += value
		sum += value
	}

	snapshot := &CFSnapshot{
		Version:     version,
		Factors:     opts.Factors,
		UserFactors: make(map[int64][]float32),
		ItemFactors: make(map[int64][]float32),
		UserBias:    make(map[int64]float64),
		ItemBias:    make(map[int64]float64),
	}

	if len(ratings) > 0 {
		snapshot.GlobalMean = sum / float64(len(ratings))
	}

	initVector := func() []float32 {
		vec := make([]float32, opts.Factors)
		for i := range vec {
			vec[i] = float32(rng.NormFloat64() * 0.1)
		}

		return vec
	}

	for _, r := range ratings {
		if _, ok := snapshot.UserFactors[r.userID]; !ok {
			snapshot.UserFactors[r.userID] = initVector()
		}

		if _, ok := snapshot.ItemFactors[r.listingID]; !ok {
			snapshot.ItemFactors[r.listingID] = initVector()
		}
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for _, r := range ratings {
			userVec := snapshot.UserFactors[r.userID]
			itemVec := snapshot.ItemFactors[r.listingID]

			predicted := snapshot.GlobalMean + snapshot.UserBias[r.userID] + snapshot.ItemBias[r.listingID]
			for i := range userVec {
				predicted += float64(userVec[i]) * float64(itemVec[i])
			}

			residual := r.value - predicted

			snapshot.UserBias[r.userID] += opts.LearningRate *
				(residual - opts.Regularization*snapshot.UserBias[r.userID])
			snapshot.ItemBias[r.listingID] += opts.LearningRate *
				(residual - opts.Regularization*snapshot.ItemBias[r.listingID])

			for i := range userVec {
				u := float64(userVec[i])
				v := float64(itemVec[i])
				userVec[i] = float32(u + opts.LearningRate*(residual*v-opts.Regularization*u))
				itemVec[i] = float32(v + opts.LearningRate*(residual*u-opts.Regularization*v))
			}
		}
	}

	snapshot.Popularity = make([]PopularityEntry, 0, len(popularity))
	for listingID, score := range popularity {
		snapshot.Popularity = append(snapshot.Popularity, PopularityEntry{ListingID: listingID, Score: score})
	}

	sort.Slice(snapshot.Popularity, func(a, b int) bool {
		if snapshot.Popularity[a].Score != snapshot.Popularity[b].Score {
			return snapshot.Popularity[a].Score > snapshot.Popularity[b].Score
		}

		return snapshot.Popularity[a].ListingID < snapshot.Popularity[b].ListingID
	})

	return snapshot
}

// Sigmoid squashes a raw score into (0, 1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
