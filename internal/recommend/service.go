// Package recommend blends collaborative-filtering predictions with content
// similarity over the listing index to produce personalized recommendations,
// and maintains the derived user profiles that feed them.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/database/types/enum"
	"github.com/unibazzar/ai-service/internal/jobs"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/vector"
	"go.uber.org/zap"
)

var (
	ErrInvalidInteractionType = errors.New("invalid interaction type")
	ErrInvalidLimit           = errors.New("limit is out of range")
)

// AlgorithmVersion identifies the ranking algorithm in responses so clients
// can attribute result quality to a model generation.
const AlgorithmVersion = "hybrid_v1.0"

const (
	// MaxRecommendations caps one page of hybrid recommendations.
	MaxRecommendations = 50
	// MaxSimilarListings caps one content-similarity lookup.
	MaxSimilarListings = 20
)

// Similarity types reported with each recommendation.
const (
	SimilarityCollaborative = "collaborative"
	SimilarityContent       = "content"
	SimilarityHybrid        = "hybrid"
	SimilarityPopular       = "popular"
)

// InteractionStore is the persistence surface for the interaction log.
type InteractionStore interface {
	Append(ctx context.Context, interaction *types.UserInteraction) error
}

// Recommendation is one ranked listing with its scoring provenance.
type Recommendation struct {
	ListingID      int64                   `json:"listingId"`
	Score          float64                 `json:"score"`
	Reason         string                  `json:"reason"`
	SimilarityType string                  `json:"similarityType"`
	Metadata       types.EmbeddingMetadata `json:"metadata"`
}

// Options adjust candidate filtering for hybrid recommendations.
type Options struct {
	// CampusOnly restricts candidates to the user's campus.
	CampusOnly bool
	// ExcludeOwn drops listings the user owns.
	ExcludeOwn bool
}

// Service implements hybrid recommendations.
type Service struct {
	models       *model.Manager
	profiles     ProfileStore
	interactions InteractionStore
	index        *vector.Index
	runner       *jobs.Runner
	tracker      *jobs.Tracker
	weight       float64
	updater      *profileUpdater
	retrain      jobs.TrainFunc
	logger       *zap.Logger
}

// NewService creates the recommendation service. The collaborative weight
// sets the blend between collaborative and content scores; the retrain
// function rebuilds the collaborative model under the job runner's lock.
func NewService(
	models *model.Manager, profiles ProfileStore, interactions InteractionStore,
	index *vector.Index, runner *jobs.Runner, tracker *jobs.Tracker,
	collaborativeWeight, profileDecay float64, retrain jobs.TrainFunc, logger *zap.Logger,
) *Service {
	return &Service{
		models:       models,
		profiles:     profiles,
		interactions: interactions,
		index:        index,
		runner:       runner,
		tracker:      tracker,
		weight:       collaborativeWeight,
		updater:      &profileUpdater{store: profiles, decay: profileDecay},
		retrain:      retrain,
		logger:       logger.Named("recommend"),
	}
}

// GetUserProfile returns the derived profile for a user. Users without any
// logged interactions get an empty cold-start profile rather than an error.
func (s *Service) GetUserProfile(ctx context.Context, userID int64) (*types.UserProfile, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrProfileNotFound) {
			return s.coldStartProfile(userID), nil
		}

		return nil, err
	}

	return profile, nil
}

// coldStartProfile builds an unpersisted profile for a user without one. The
// collaborative model may still know the user from an earlier training pass,
// in which case their learned latent factors carry over.
func (s *Service) coldStartProfile(userID int64) *types.UserProfile {
	profile := &types.UserProfile{UserID: userID, UpdatedAt: time.Now().UTC()}

	if cf, err := s.models.CF(); err == nil {
		if factors, ok := cf.UserVector(userID); ok {
			profile.LatentFactors = append([]float32(nil), factors...)
		}
	}

	return profile
}

// GetHybridRecommendations ranks candidate listings for a user by blending
// collaborative predictions with taste-vector similarity. Cold-start users
// fall back to the popularity ranking so the result is never empty while
// listings exist. Ordering is deterministic: descending score, then
// ascending listing id.
func (s *Service) GetHybridRecommendations(
	ctx context.Context, userID int64, limit int, opts Options,
) ([]Recommendation, error) {
	if limit <= 0 || limit > MaxRecommendations {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrInvalidLimit, limit, MaxRecommendations)
	}

	profile, err := s.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	cf, err := s.models.CF()
	if err != nil {
		return nil, err
	}

	var campusFilter *int64
	if opts.CampusOnly && profile.CampusID != 0 {
		campusFilter = &profile.CampusID
	}

	candidates := s.index.All(campusFilter)
	popularity := popularityRanks(cf)
	recommendations := make([]Recommendation, 0, len(candidates))

	for _, entry := range candidates {
		if opts.ExcludeOwn && entry.OwnerID == userID {
			continue
		}

		recommendations = append(recommendations, s.score(profile, cf, popularity, entry))
	}

	sort.Slice(recommendations, func(a, b int) bool {
		if recommendations[a].Score != recommendations[b].Score {
			return recommendations[a].Score > recommendations[b].Score
		}

		return recommendations[a].ListingID < recommendations[b].ListingID
	})

	if len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}

	return recommendations, nil
}

// score produces the blended score for one candidate, recording which
// signals contributed.
func (s *Service) score(
	profile *types.UserProfile, cf *model.CFSnapshot,
	popularity map[int64]float64, entry vector.Entry,
) Recommendation {
	recommendation := Recommendation{
		ListingID: entry.ListingID,
		Metadata:  entry.Metadata,
	}

	var contentScore float64

	hasContent := len(profile.TasteVector) == len(entry.Vector) && len(entry.Vector) > 0 && !profile.ColdStart()
	if hasContent {
		// Cosine lands in [-1, 1]; shift into [0, 1] to blend
		contentScore = (vector.Cosine(profile.TasteVector, entry.Vector) + 1) / 2
	}

	collaborativeScore, hasCollaborative := cf.Predict(profile.UserID, entry.ListingID)
	if hasCollaborative {
		collaborativeScore = model.Sigmoid(collaborativeScore)
	}

	switch {
	case hasCollaborative && hasContent:
		recommendation.Score = s.weight*collaborativeScore + (1-s.weight)*contentScore
		recommendation.SimilarityType = SimilarityHybrid
		recommendation.Reason = "Matches your interests and activity from similar students"
	case hasCollaborative:
		recommendation.Score = collaborativeScore
		recommendation.SimilarityType = SimilarityCollaborative
		recommendation.Reason = "Students with similar activity engaged with this"
	case hasContent:
		recommendation.Score = contentScore
		recommendation.SimilarityType = SimilarityContent
		recommendation.Reason = "Similar to listings you have shown interest in"
	default:
		recommendation.Score = popularity[entry.ListingID]
		recommendation.SimilarityType = SimilarityPopular
		recommendation.Reason = "Popular with students right now"
	}

	return recommendation
}

// GetContentSimilarListings returns listings closest to the given listing in
// the vector space. The listing itself is excluded from the results.
func (s *Service) GetContentSimilarListings(
	ctx context.Context, listingID int64, limit int,
) ([]Recommendation, error) {
	if limit <= 0 || limit > MaxSimilarListings {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrInvalidLimit, limit, MaxSimilarListings)
	}

	entry, ok := s.index.Get(listingID)
	if !ok {
		return nil, fmt.Errorf("%w (listingID=%d)", types.ErrEmbeddingNotFound, listingID)
	}

	// One extra result absorbs the listing matching itself
	matches, err := s.index.Search(entry.Vector, nil, limit+1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	recommendations := make([]Recommendation, 0, limit)

	for _, match := range matches {
		if match.Entry.ListingID == listingID {
			continue
		}

		if len(recommendations) == limit {
			break
		}

		recommendations = append(recommendations, Recommendation{
			ListingID:      match.Entry.ListingID,
			Score:          match.Score,
			Reason:         "Similar to the listing you are viewing",
			SimilarityType: SimilarityContent,
			Metadata:       match.Entry.Metadata,
		})
	}

	return recommendations, nil
}

// LogInteraction appends one interaction to the log and folds it into the
// user's profile. The profile update is best effort; the logged interaction
// is the source of truth and batch retraining reconciles any drift.
func (s *Service) LogInteraction(
	ctx context.Context, userID, listingID int64,
	interactionType string, value float64, contextData map[string]any,
) (*types.UserInteraction, error) {
	parsedType, err := enum.InteractionTypeFromString(interactionType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInteractionType, interactionType)
	}

	if value <= 0 {
		value = parsedType.Weight()
	}

	interaction := &types.UserInteraction{
		ID:          uuid.New().String(),
		UserID:      userID,
		ListingID:   listingID,
		Type:        parsedType,
		Value:       value,
		ContextData: contextData,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.interactions.Append(ctx, interaction); err != nil {
		return nil, err
	}

	if entry, ok := s.index.Get(listingID); ok {
		if err := s.updater.apply(ctx, userID, entry, value, s.logger); err != nil {
			s.logger.Warn("Failed to update user profile",
				zap.Int64("userID", userID),
				zap.Int64("listingID", listingID),
				zap.Error(err))
		}
	}

	return interaction, nil
}

// TriggerModelTraining queues an asynchronous collaborative retraining job.
// At most one collaborative job runs at a time.
func (s *Service) TriggerModelTraining(ctx context.Context) (*jobs.Job, error) {
	return s.runner.Run(ctx, jobs.TypeCollaborative, s.retrain)
}

// GetTrainingStatus returns the state of a training job.
func (s *Service) GetTrainingStatus(ctx context.Context, jobID string) (*jobs.Job, error) {
	return s.tracker.Get(ctx, jobID)
}

// popularityRanks normalizes the model's popularity scores into (0, 1] so
// they are comparable with the other signals.
func popularityRanks(cf *model.CFSnapshot) map[int64]float64 {
	ranks := make(map[int64]float64, len(cf.Popularity))
	if len(cf.Popularity) == 0 {
		return ranks
	}

	top := cf.Popularity[0].Score
	if top == 0 {
		return ranks
	}

	for _, entry := range cf.Popularity {
		ranks[entry.ListingID] = entry.Score / top
	}

	return ranks
}
