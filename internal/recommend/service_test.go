package recommend_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/database/types/enum"
	"github.com/unibazzar/ai-service/internal/jobs"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/recommend"
	"github.com/unibazzar/ai-service/internal/setup/config"
	"github.com/unibazzar/ai-service/internal/vector"
	"go.uber.org/zap"
)

type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[int64]*types.UserProfile
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{profiles: make(map[int64]*types.UserProfile)}
}

func (m *memoryProfiles) Get(_ context.Context, userID int64) (*types.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[userID]
	if !ok {
		return nil, types.ErrProfileNotFound
	}

	clone := *profile
	clone.TasteVector = append([]float32(nil), profile.TasteVector...)

	return &clone, nil
}

func (m *memoryProfiles) Save(_ context.Context, profile *types.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *profile
	m.profiles[profile.UserID] = &clone

	return nil
}

type memoryInteractions struct {
	mu  sync.Mutex
	log []*types.UserInteraction
}

func (m *memoryInteractions) Append(_ context.Context, interaction *types.UserInteraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log = append(m.log, interaction)

	return nil
}

type fixture struct {
	service      *recommend.Service
	profiles     *memoryProfiles
	interactions *memoryInteractions
	index        *vector.Index
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	manager := model.NewManager(&config.Models{}, zap.NewNop())
	manager.SwapCF(model.TrainCF([]*types.UserInteraction{
		{UserID: 1, ListingID: 10, Type: enum.InteractionTypePurchase},
		{UserID: 1, ListingID: 20, Type: enum.InteractionTypeView},
		{UserID: 2, ListingID: 10, Type: enum.InteractionTypeFavorite},
		{UserID: 2, ListingID: 30, Type: enum.InteractionTypeClick},
	}, "cf_v1", model.CFTrainOptions{
		Factors: 4, Epochs: 40, LearningRate: 0.05, Regularization: 0.02, Seed: 1,
	}))

	index := vector.NewIndex(3)
	entries := []vector.Entry{
		{ListingID: 10, CampusID: 1, OwnerID: 5, Vector: []float32{1, 0, 0},
			Metadata: types.EmbeddingMetadata{Title: "Calculus textbook", CampusID: 1, OwnerID: 5}},
		{ListingID: 20, CampusID: 1, OwnerID: 6, Vector: []float32{0.9, 0.1, 0},
			Metadata: types.EmbeddingMetadata{Title: "Physics textbook", CampusID: 1, OwnerID: 6}},
		{ListingID: 30, CampusID: 2, OwnerID: 7, Vector: []float32{0, 1, 0},
			Metadata: types.EmbeddingMetadata{Title: "Mountain bike", CampusID: 2, OwnerID: 7}},
	}
	for _, entry := range entries {
		require.NoError(t, index.Upsert(entry))
	}

	profiles := newMemoryProfiles()
	interactions := &memoryInteractions{}
	tracker := jobs.NewTracker(client, zap.NewNop())
	runner := jobs.NewRunner(tracker, client, zap.NewNop())
	retrain := func(_ context.Context, _ func(float64, string)) error { return nil }

	service := recommend.NewService(
		manager, profiles, interactions, index, runner, tracker,
		0.6, 0.9, retrain, zap.NewNop())

	return &fixture{service: service, profiles: profiles, interactions: interactions, index: index}
}

func TestGetUserProfileColdStart(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	profile, err := f.service.GetUserProfile(context.Background(), 999)
	require.NoError(t, err)
	assert.Equal(t, int64(999), profile.UserID)
	assert.True(t, profile.ColdStart())
}

func TestGetUserProfileColdStartKnownToModel(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	// User 1 has trained factors but no stored profile row
	profile, err := f.service.GetUserProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, profile.ColdStart())
	assert.Len(t, profile.LatentFactors, 4)
}

func TestHybridRecommendationsKnownUser(t *testing.T) {
	t.Parallel()

	f := setupService(t)
	ctx := context.Background()

	// Give user 1 a profile so content scoring participates
	require.NoError(t, f.profiles.Save(ctx, &types.UserProfile{
		UserID:           1,
		CampusID:         1,
		TasteVector:      []float32{1, 0, 0},
		InteractionCount: 3,
	}))

	results, err := f.service.GetHybridRecommendations(ctx, 1, 10, recommend.Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Known user and listing pairs blend both signals
	assert.Equal(t, recommend.SimilarityHybrid, results[0].SimilarityType)
	assert.NotEmpty(t, results[0].Reason)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestHybridRecommendationsColdStart(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	// A user with no history still gets recommendations
	results, err := f.service.GetHybridRecommendations(
		context.Background(), 999, 10, recommend.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, recommend.SimilarityPopular, results[0].SimilarityType)

	// The most interacted listing leads the popularity ranking
	assert.Equal(t, int64(10), results[0].ListingID)
}

func TestHybridRecommendationsFilters(t *testing.T) {
	t.Parallel()

	f := setupService(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.Save(ctx, &types.UserProfile{
		UserID:           5,
		CampusID:         1,
		TasteVector:      []float32{1, 0, 0},
		InteractionCount: 1,
	}))

	// User 5 owns listing 10; campus 1 excludes listing 30
	results, err := f.service.GetHybridRecommendations(ctx, 5, 10, recommend.Options{
		CampusOnly: true,
		ExcludeOwn: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(20), results[0].ListingID)
}

func TestHybridRecommendationsLimitValidation(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	_, err := f.service.GetHybridRecommendations(context.Background(), 1, 0, recommend.Options{})
	require.ErrorIs(t, err, recommend.ErrInvalidLimit)

	_, err = f.service.GetHybridRecommendations(context.Background(), 1, 51, recommend.Options{})
	require.ErrorIs(t, err, recommend.ErrInvalidLimit)
}

func TestContentSimilarListings(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	results, err := f.service.GetContentSimilarListings(context.Background(), 10, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// The source listing never appears in its own results
	for _, result := range results {
		assert.NotEqual(t, int64(10), result.ListingID)
		assert.Equal(t, recommend.SimilarityContent, result.SimilarityType)
	}

	// The physics textbook is the nearest neighbor of the calculus textbook
	assert.Equal(t, int64(20), results[0].ListingID)
}

func TestContentSimilarListingsUnknownListing(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	_, err := f.service.GetContentSimilarListings(context.Background(), 404, 5)
	require.ErrorIs(t, err, types.ErrEmbeddingNotFound)
}

func TestContentSimilarListingsLimitValidation(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	_, err := f.service.GetContentSimilarListings(context.Background(), 10, 21)
	require.ErrorIs(t, err, recommend.ErrInvalidLimit)
}

func TestLogInteraction(t *testing.T) {
	t.Parallel()

	f := setupService(t)
	ctx := context.Background()

	interaction, err := f.service.LogInteraction(ctx, 42, 10, "purchase", 0, map[string]any{
		"source": "search",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, interaction.ID)
	assert.Equal(t, enum.InteractionTypePurchase, interaction.Type)
	assert.InDelta(t, 5.0, interaction.Value, 1e-9)

	// The interaction landed in the log and nudged the profile
	require.Len(t, f.interactions.log, 1)

	profile, err := f.service.GetUserProfile(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), profile.InteractionCount)
	assert.NotEmpty(t, profile.TasteVector)
}

func TestLogInteractionExplicitValue(t *testing.T) {
	t.Parallel()

	f := setupService(t)
	ctx := context.Background()

	// Both users view listing 10, then listing 30; user 51 reports an
	// explicit value on the second view
	for _, userID := range []int64{50, 51} {
		_, err := f.service.LogInteraction(ctx, userID, 10, "view", 0, nil)
		require.NoError(t, err)
	}

	_, err := f.service.LogInteraction(ctx, 50, 30, "view", 0, nil)
	require.NoError(t, err)

	boosted, err := f.service.LogInteraction(ctx, 51, 30, "view", 5, nil)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, boosted.Value, 1e-9)

	// The explicit value pulls the profile further toward listing 30
	defaultProfile, err := f.service.GetUserProfile(ctx, 50)
	require.NoError(t, err)
	boostedProfile, err := f.service.GetUserProfile(ctx, 51)
	require.NoError(t, err)

	assert.Greater(t, boostedProfile.TasteVector[1], defaultProfile.TasteVector[1])
}

func TestLogInteractionInvalidType(t *testing.T) {
	t.Parallel()

	f := setupService(t)

	_, err := f.service.LogInteraction(context.Background(), 42, 10, "teleport", 0, nil)
	require.ErrorIs(t, err, recommend.ErrInvalidInteractionType)
}

func TestLogInteractionConcurrentSameUser(t *testing.T) {
	t.Parallel()

	f := setupService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.service.LogInteraction(ctx, 77, 10, "view", 0, nil)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	// No updates are lost under concurrency
	profile, err := f.service.GetUserProfile(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, int64(20), profile.InteractionCount)
}

func TestTriggerModelTraining(t *testing.T) {
	t.Parallel()

	f := setupService(t)
	ctx := context.Background()

	job, err := f.service.TriggerModelTraining(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobs.TypeCollaborative, job.Type)

	require.Eventually(t, func() bool {
		status, err := f.service.GetTrainingStatus(ctx, job.ID)
		return err == nil && status.Status == jobs.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}
