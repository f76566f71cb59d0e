package training_test

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
	"github.com/unibazzar/ai-service/internal/setup/config"
	"github.com/unibazzar/ai-service/internal/vector"
	"github.com/unibazzar/ai-service/internal/worker/core"
	"github.com/unibazzar/ai-service/internal/worker/training"
	"go.uber.org/zap"
)

type memoryCorpus struct {
	mu       sync.Mutex
	listings map[int64]*types.ListingEmbedding
}

func (m *memoryCorpus) GetAll(_ context.Context, afterListingID int64, limit int) ([]*types.ListingEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var page []*types.ListingEmbedding

	for id := afterListingID + 1; len(page) < limit && id <= int64(len(m.listings)); id++ {
		if listing, ok := m.listings[id]; ok {
			clone := *listing
			page = append(page, &clone)
		}
	}

	return page, nil
}

func (m *memoryCorpus) Upsert(_ context.Context, embedding *types.ListingEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listings[embedding.ListingID] = embedding

	return nil
}

type memoryLog struct {
	interactions []*types.UserInteraction
}

func (m *memoryLog) GetPage(_ context.Context, afterID string, limit int) ([]*types.UserInteraction, error) {
	var page []*types.UserInteraction

	for _, interaction := range m.interactions {
		if interaction.ID <= afterID || len(page) == limit {
			continue
		}

		page = append(page, interaction)
	}

	return page, nil
}

type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[int64]*types.UserProfile
}

func (m *memoryProfiles) Get(_ context.Context, userID int64) (*types.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[userID]
	if !ok {
		return nil, types.ErrProfileNotFound
	}

	clone := *profile

	return &clone, nil
}

func (m *memoryProfiles) Save(_ context.Context, profile *types.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *profile
	m.profiles[profile.UserID] = &clone

	return nil
}

func artifactsConfig(t *testing.T) *config.Models {
	t.Helper()

	return &config.Models{
		ArtifactDir:           t.TempDir(),
		EncoderArtifact:       "encoder.json",
		CollaborativeArtifact: "collaborative.json",
		ClassifierArtifact:    "classifier.json",
	}
}

func noReport(float64, string) {}

func TestReembedderRebuildsIndex(t *testing.T) {
	t.Parallel()

	corpus := &memoryCorpus{listings: map[int64]*types.ListingEmbedding{
		1: {ListingID: 1, CampusID: 1, OwnerID: 10, Title: "Calculus textbook", Description: "third edition", ModelVersion: "encoder_v0"},
		2: {ListingID: 2, CampusID: 1, OwnerID: 11, Title: "Mountain bike", Description: "rides great", ModelVersion: "encoder_v0"},
		3: {ListingID: 3, CampusID: 2, OwnerID: 12, Title: "Mini fridge", Description: "dorm sized", ModelVersion: "encoder_v0"},
	}}

	manager := model.NewManager(&config.Models{}, zap.NewNop())
	manager.SwapEncoder(model.TrainEncoder([]string{"placeholder"}, 64, "encoder_v0"))

	index := vector.NewIndex(64)
	artifacts := artifactsConfig(t)

	reembedder := training.NewReembedder(corpus, manager, index, artifacts, 2, zap.NewNop())
	require.NoError(t, reembedder.Run(context.Background(), noReport))

	// The index holds every listing, encoded by a new snapshot
	assert.Equal(t, 3, index.Len())

	encoder, err := manager.Encoder()
	require.NoError(t, err)
	assert.NotEqual(t, "encoder_v0", encoder.Version)

	// Stored vectors carry the new version
	stored, err := corpus.GetAll(context.Background(), 0, 10)
	require.NoError(t, err)

	for _, listing := range stored {
		assert.Equal(t, encoder.Version, listing.ModelVersion)
		assert.Len(t, listing.Vector, 64)
	}

	// The artifact was persisted for the next process start
	loaded, err := model.LoadEncoderArtifact(artifacts.ArtifactDir, artifacts.EncoderArtifact)
	require.NoError(t, err)
	assert.Equal(t, encoder.Version, loaded.Version)
}

func TestReembedderEmptyCorpus(t *testing.T) {
	t.Parallel()

	corpus := &memoryCorpus{listings: map[int64]*types.ListingEmbedding{}}
	manager := model.NewManager(&config.Models{}, zap.NewNop())
	manager.SwapEncoder(model.TrainEncoder([]string{"placeholder"}, 64, "encoder_v0"))

	index := vector.NewIndex(64)

	reembedder := training.NewReembedder(corpus, manager, index, artifactsConfig(t), 10, zap.NewNop())
	require.NoError(t, reembedder.Run(context.Background(), noReport))

	// The current encoder stays active
	encoder, err := manager.Encoder()
	require.NoError(t, err)
	assert.Equal(t, "encoder_v0", encoder.Version)
}

func TestRetrainerSwapsModel(t *testing.T) {
	t.Parallel()

	log := &memoryLog{interactions: []*types.UserInteraction{
		{ID: "a1", UserID: 1, ListingID: 10, Type: enum.InteractionTypePurchase, CreatedAt: time.Now()},
		{ID: "a2", UserID: 1, ListingID: 20, Type: enum.InteractionTypeView, CreatedAt: time.Now()},
		{ID: "a3", UserID: 2, ListingID: 10, Type: enum.InteractionTypeFavorite, CreatedAt: time.Now()},
	}}
	profiles := &memoryProfiles{profiles: map[int64]*types.UserProfile{
		1: {UserID: 1, TasteVector: []float32{1, 0}, InteractionCount: 2},
	}}

	manager := model.NewManager(&config.Models{}, zap.NewNop())
	artifacts := artifactsConfig(t)
	policy := &config.Recommendation{
		LatentFactors: 4, TrainingEpochs: 20, LearningRate: 0.05, Regularization: 0.02,
	}

	retrainer := training.NewRetrainer(log, profiles, manager, policy, artifacts, 2, zap.NewNop())
	require.NoError(t, retrainer.Run(context.Background(), noReport))

	cf, err := manager.CF()
	require.NoError(t, err)
	assert.Len(t, cf.UserFactors, 2)
	assert.Len(t, cf.ItemFactors, 2)

	_, ok := cf.Predict(1, 10)
	assert.True(t, ok)

	// Latent factors landed in the profiles without clobbering taste vectors
	profile, err := profiles.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, profile.LatentFactors, 4)
	assert.Equal(t, []float32{1, 0}, profile.TasteVector)

	// User 2 had no profile yet; retraining created one
	created, err := profiles.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, created.LatentFactors, 4)

	// The artifact was persisted
	loaded, err := model.LoadCFArtifact(artifacts.ArtifactDir, artifacts.CollaborativeArtifact)
	require.NoError(t, err)
	assert.Equal(t, cf.Version, loaded.Version)
}

type memoryAuditLog struct {
	mu     sync.Mutex
	cutoff time.Time
}

func (m *memoryAuditLog) PurgeOld(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cutoff = cutoff

	return nil
}

func (m *memoryAuditLog) lastCutoff() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cutoff
}

func TestWorkerPurgesAuditOnStart(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	tracker := jobs.NewTracker(client, zap.NewNop())
	runner := jobs.NewRunner(tracker, client, zap.NewNop())
	reporter := core.NewStatusReporter(client, "training", zap.NewNop())
	monitor := core.NewMonitor(client, zap.NewNop())
	audit := &memoryAuditLog{}

	noTrain := func(context.Context, func(float64, string)) error { return nil }
	worker := training.New(
		runner, reporter, monitor, audit, noTrain, noTrain,
		time.Hour, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	go func() {
		worker.Start(ctx)
		close(done)
	}()

	// The retention pass runs at startup, with a cutoff in the past
	require.Eventually(t, func() bool {
		return !audit.lastCutoff().IsZero()
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, audit.lastCutoff().Before(time.Now()))

	cancel()
	<-done
}

func TestRetrainerEmptyLog(t *testing.T) {
	t.Parallel()

	manager := model.NewManager(&config.Models{}, zap.NewNop())
	retrainer := training.NewRetrainer(
		&memoryLog{}, &memoryProfiles{profiles: map[int64]*types.UserProfile{}},
		manager, &config.Recommendation{LatentFactors: 4, TrainingEpochs: 5, LearningRate: 0.05, Regularization: 0.02},
		artifactsConfig(t), 10, zap.NewNop())

	require.NoError(t, retrainer.Run(context.Background(), noReport))

	// No model was installed from an empty log
	_, err := manager.CF()
	require.ErrorIs(t, err, model.ErrNotReady)
}
