package model_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/database/types/enum"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/setup/config"
	"github.com/unibazzar/ai-service/internal/vector"
	"go.uber.org/zap"
)

func TestEncodeDeterministic(t *testing.T) {
	t.Parallel()

	encoder := model.TrainEncoder([]string{
		"calculus textbook barely used",
		"mountain bike good condition",
		"dorm fridge for sale",
	}, 64, "encoder_v1")

	first, err := encoder.Encode("Calculus Textbook")
	require.NoError(t, err)
	second, err := encoder.Encode("calculus textbook!")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestEncodeSignVariesWithinBucket(t *testing.T) {
	t.Parallel()

	encoder := &model.EncoderSnapshot{Version: "encoder_v1", Dimension: 16, DefaultWeight: 1}

	// Track which signs appear per bucket across many single-token encodings
	signs := make(map[int]map[bool]bool)

	for i := range 512 {
		embedding, err := encoder.Encode(fmt.Sprintf("token%d", i))
		require.NoError(t, err)

		for bucket, v := range embedding {
			if v == 0 {
				continue
			}

			if signs[bucket] == nil {
				signs[bucket] = make(map[bool]bool)
			}

			signs[bucket][v > 0] = true
		}
	}

	// A sign tied to bucket parity would leave every bucket single-signed
	mixed := 0
	for _, seen := range signs {
		if len(seen) == 2 {
			mixed++
		}
	}

	assert.Positive(t, mixed)
}

func TestEncodeEmptyText(t *testing.T) {
	t.Parallel()

	encoder := model.TrainEncoder([]string{"some listing"}, 16, "encoder_v1")

	_, err := encoder.Encode("   ")
	require.ErrorIs(t, err, model.ErrEmptyText)
}

func TestEncodeSimilarity(t *testing.T) {
	t.Parallel()

	encoder := model.TrainEncoder([]string{
		"free textbooks campus pickup",
		"used bicycle great shape",
		"physics textbook second edition",
	}, 128, "encoder_v1")

	query, err := encoder.Encode("textbooks for pickup")
	require.NoError(t, err)
	textbooks, err := encoder.Encode("free textbooks campus pickup")
	require.NoError(t, err)
	bicycle, err := encoder.Encode("used bicycle great shape")
	require.NoError(t, err)

	assert.Greater(t, vector.Cosine(query, textbooks), vector.Cosine(query, bicycle))
}

func TestTrainCFPredicts(t *testing.T) {
	t.Parallel()

	interactions := []*types.UserInteraction{
		{UserID: 1, ListingID: 10, Type: enum.InteractionTypePurchase},
		{UserID: 1, ListingID: 11, Type: enum.InteractionTypeView},
		{UserID: 2, ListingID: 10, Type: enum.InteractionTypeFavorite},
		{UserID: 2, ListingID: 12, Type: enum.InteractionTypeClick},
	}

	snapshot := model.TrainCF(interactions, "cf_v1", model.CFTrainOptions{
		Factors:        4,
		Epochs:         50,
		LearningRate:   0.05,
		Regularization: 0.02,
		Seed:           42,
	})

	// Known pairs predict; unknown users fall back
	purchase, ok := snapshot.Predict(1, 10)
	require.True(t, ok)
	view, ok := snapshot.Predict(1, 11)
	require.True(t, ok)
	assert.Greater(t, purchase, view)

	_, ok = snapshot.Predict(99, 10)
	assert.False(t, ok)

	// Popularity ranks the most interacted listing first
	require.NotEmpty(t, snapshot.Popularity)
	assert.Equal(t, int64(10), snapshot.Popularity[0].ListingID)
}

func TestTrainCFDeterministic(t *testing.T) {
	t.Parallel()

	interactions := []*types.UserInteraction{
		{UserID: 1, ListingID: 10, Type: enum.InteractionTypePurchase},
		{UserID: 2, ListingID: 10, Type: enum.InteractionTypeView},
	}

	opts := model.CFTrainOptions{Factors: 2, Epochs: 10, LearningRate: 0.05, Regularization: 0.02, Seed: 7}

	first := model.TrainCF(interactions, "cf_v1", opts)
	second := model.TrainCF(interactions, "cf_v1", opts)

	a, _ := first.Predict(1, 10)
	b, _ := second.Predict(1, 10)
	assert.Equal(t, a, b)
}

func TestClassifierScoreAll(t *testing.T) {
	t.Parallel()

	snapshot := &model.ClassifierSnapshot{
		Version: "classifier_v1",
		Classifiers: []model.CategoryClassifier{
			{Category: enum.CategorySpam, TermWeights: map[string]float64{"free": 2, "money": 3}, Bias: -2},
			{Category: enum.CategoryHarassment, TermWeights: map[string]float64{"loser": 4}, Bias: -3},
		},
	}

	scores := snapshot.ScoreAll("FREE money, free money!!!")
	require.Len(t, scores, 2)
	assert.Equal(t, enum.CategorySpam, scores[0].Category)
	assert.Greater(t, scores[0].Confidence, 0.9)
	assert.Less(t, scores[1].Confidence, 0.1)

	// Same input always yields the same scores
	again := snapshot.ScoreAll("FREE money, free money!!!")
	assert.Equal(t, scores, again)
}

func TestArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	encoder := model.TrainEncoder([]string{"desk lamp", "futon frame"}, 32, "encoder_v2")
	require.NoError(t, model.SaveArtifact(dir, "encoder.json", encoder))

	loaded, err := model.LoadEncoderArtifact(dir, "encoder.json")
	require.NoError(t, err)
	assert.Equal(t, "encoder_v2", loaded.Version)
	assert.Equal(t, encoder.TermWeights, loaded.TermWeights)
}

func TestLoadMissingArtifact(t *testing.T) {
	t.Parallel()

	_, err := model.LoadEncoderArtifact(t.TempDir(), "missing.json")
	require.ErrorIs(t, err, model.ErrModelLoad)
}

func TestManagerLifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	require.NoError(t, model.SaveArtifact(dir, "encoder.json",
		model.TrainEncoder([]string{"desk lamp"}, 16, "encoder_v1")))
	require.NoError(t, model.SaveArtifact(dir, "collaborative.json",
		model.TrainCF([]*types.UserInteraction{
			{UserID: 1, ListingID: 1, Type: enum.InteractionTypeView},
		}, "cf_v1", model.CFTrainOptions{Factors: 2, Epochs: 1, LearningRate: 0.05, Regularization: 0.02})))
	require.NoError(t, model.SaveArtifact(dir, "classifier.json", &model.ClassifierSnapshot{
		Version: "classifier_v1",
		Classifiers: []model.CategoryClassifier{
			{Category: enum.CategorySpam, TermWeights: map[string]float64{}, Bias: -1},
		},
	}))

	manager := model.NewManager(&config.Models{
		ArtifactDir:           dir,
		EncoderArtifact:       "encoder.json",
		CollaborativeArtifact: "collaborative.json",
		ClassifierArtifact:    "classifier.json",
	}, zap.NewNop())

	assert.False(t, manager.Loaded())

	_, err := manager.Encoder()
	require.ErrorIs(t, err, model.ErrNotReady)

	require.NoError(t, manager.Load())
	assert.True(t, manager.Loaded())

	encoder, err := manager.Encoder()
	require.NoError(t, err)
	assert.Equal(t, "encoder_v1", encoder.Version)

	// Swapping replaces the live snapshot for new readers
	manager.SwapEncoder(model.TrainEncoder([]string{"desk lamp"}, 16, "encoder_v2"))
	swapped, err := manager.Encoder()
	require.NoError(t, err)
	assert.Equal(t, "encoder_v2", swapped.Version)

	// Cleanup is idempotent
	manager.Cleanup()
	manager.Cleanup()
	assert.False(t, manager.Loaded())
}

func TestManagerLoadFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	manager := model.NewManager(&config.Models{
		ArtifactDir:           filepath.Join(t.TempDir(), "nowhere"),
		EncoderArtifact:       "encoder.json",
		CollaborativeArtifact: "collaborative.json",
		ClassifierArtifact:    "classifier.json",
	}, zap.NewNop())

	require.ErrorIs(t, manager.Load(), model.ErrModelLoad)
	assert.False(t, manager.Loaded())
}
