// Package moderation scores marketplace content against the category
// classifiers and turns the scores into policy verdicts. Every verdict is
// recorded to the audit log asynchronously.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/database/types/enum"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/setup/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrEmptyContent = errors.New("content text must not be empty")

// Request is one piece of content to moderate. Context carries content-type
// specific attributes: listings provide title, category and price; reviews
// provide rating, reviewer_history and listing_id.
type Request struct {
	ContentID   int64
	ContentType enum.ContentType
	Text        string
	Context     map[string]any
}

// Verdict is the moderation outcome for one piece of content.
type Verdict struct {
	ContentID    int64            `json:"contentId"`
	ContentType  enum.ContentType `json:"contentType"`
	IsFlagged    bool             `json:"isFlagged"`
	Confidence   float64          `json:"confidence"`
	Categories   []enum.Category  `json:"categories"`
	Severity     enum.Severity    `json:"severity"`
	Action       enum.Action      `json:"action"`
	Explanation  string           `json:"explanation"`
	ModelVersion string           `json:"modelVersion"`
}

// Service implements content moderation.
type Service struct {
	models *model.Manager
	config *config.Moderation
	stats  *StatsCollector
	audit  *auditWriter
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// NewService creates the moderation service and starts its audit writer.
func NewService(
	models *model.Manager, moderationConfig *config.Moderation,
	store AuditStore, stats *StatsCollector, logger *zap.Logger,
) *Service {
	return &Service{
		models: models,
		config: moderationConfig,
		stats:  stats,
		audit:  newAuditWriter(store, moderationConfig.AuditBufferSize, logger),
		sem:    semaphore.NewWeighted(moderationConfig.MaxConcurrent),
		logger: logger.Named("moderation"),
	}
}

// ModerateContent scores one piece of content and returns the policy verdict.
// The same input always produces the same verdict for a given classifier
// snapshot. The verdict is written to the audit log asynchronously.
func (s *Service) ModerateContent(ctx context.Context, request Request) (*Verdict, error) {
	if strings.TrimSpace(request.Text) == "" {
		return nil, fmt.Errorf("%w (contentID=%d)", ErrEmptyContent, request.ContentID)
	}

	classifier, err := s.models.Classifier()
	if err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire moderation slot: %w", err)
	}
	defer s.sem.Release(1)

	scores := classifier.ScoreAll(request.Text)
	bands := s.bandsFor(request.ContentType)

	var (
		maxConfidence float64
		categories    []enum.Category
	)

	for _, score := range scores {
		if score.Confidence > maxConfidence {
			maxConfidence = score.Confidence
		}

		if score.Confidence >= bands.Flag {
			categories = append(categories, score.Category)
		}
	}

	severity := severityFor(bands, maxConfidence)

	verdict := &Verdict{
		ContentID:    request.ContentID,
		ContentType:  request.ContentType,
		IsFlagged:    severity > enum.SeverityNone,
		Confidence:   maxConfidence,
		Categories:   categories,
		Severity:     severity,
		Action:       actionFor(severity),
		Explanation:  explain(severity, categories),
		ModelVersion: classifier.Version,
	}

	s.LogModerationAction(ctx, verdict)

	return verdict, nil
}

// ModerateBatch moderates multiple pieces of content concurrently, returning
// verdicts in the same order as the requests. An item that cannot be scored
// fails closed: it is flagged at high severity for manual review instead of
// passing unmoderated.
func (s *Service) ModerateBatch(ctx context.Context, requests []Request) []*Verdict {
	verdicts := make([]*Verdict, len(requests))

	p := pool.New().WithContext(ctx)

	for i, request := range requests {
		p.Go(func(ctx context.Context) error {
			verdict, err := s.ModerateContent(ctx, request)
			if err != nil {
				s.logger.Warn("Failing closed on moderation error",
					zap.Int64("contentID", request.ContentID),
					zap.Error(err))

				verdict = s.failClosed(request)
				s.LogModerationAction(ctx, verdict)
			}

			verdicts[i] = verdict

			return nil
		})
	}

	// Workers never return errors; failures became fail-closed verdicts
	_ = p.Wait()

	return verdicts
}

// FlaggedCount returns how many verdicts in a batch were flagged.
func FlaggedCount(verdicts []*Verdict) int {
	count := 0

	for _, verdict := range verdicts {
		if verdict.IsFlagged {
			count++
		}
	}

	return count
}

// LogModerationAction records a verdict to the audit log and trend counters
// without blocking the caller.
func (s *Service) LogModerationAction(ctx context.Context, verdict *Verdict) {
	s.audit.enqueue(&types.ModerationRecord{
		ID:           uuid.New().String(),
		ContentID:    verdict.ContentID,
		ContentType:  verdict.ContentType,
		IsFlagged:    verdict.IsFlagged,
		Confidence:   verdict.Confidence,
		Categories:   verdict.Categories,
		Severity:     verdict.Severity,
		Action:       verdict.Action,
		Explanation:  verdict.Explanation,
		ModelVersion: verdict.ModelVersion,
		CreatedAt:    time.Now().UTC(),
	})

	if s.stats != nil {
		s.stats.recordTrend(ctx, verdict.IsFlagged)
	}
}

// GetModerationStats returns the aggregate view over the audit log and the
// hourly trend counters.
func (s *Service) GetModerationStats(ctx context.Context) (*types.ModerationStats, error) {
	return s.stats.Stats(ctx)
}

// DroppedAuditRecords reports how many audit writes were shed under load.
func (s *Service) DroppedAuditRecords() int64 {
	return s.audit.Dropped()
}

// Close flushes the audit queue.
func (s *Service) Close() {
	s.audit.Close()
}

func (s *Service) bandsFor(contentType enum.ContentType) config.PolicyBands {
	if contentType == enum.ContentTypeReview {
		return s.config.Review
	}

	return s.config.Listing
}

// failClosed builds the conservative verdict used when content cannot be
// scored.
func (s *Service) failClosed(request Request) *Verdict {
	return &Verdict{
		ContentID:   request.ContentID,
		ContentType: request.ContentType,
		IsFlagged:   true,
		Confidence:  1,
		Severity:    enum.SeverityHigh,
		Action:      actionFor(enum.SeverityHigh),
		Explanation: "Content could not be scored and requires manual review",
	}
}

func explain(severity enum.Severity, categories []enum.Category) string {
	if severity == enum.SeverityNone {
		return "No policy concerns detected"
	}

	names := make([]string, len(categories))
	for i, category := range categories {
		names[i] = category.String()
	}

	return fmt.Sprintf("Flagged at %s severity for: %s", severity, strings.Join(names, ", "))
}
