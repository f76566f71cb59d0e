package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/unibazzar/ai-service/internal/database/models"
	"github.com/unibazzar/ai-service/internal/database/types"
	"go.uber.org/zap"
)

const (
	// Trend counters cover a rolling day; keys expire shortly after so the
	// window cleans itself up.
	trendWindowHours = 24
	trendKeyTTL      = 25 * time.Hour

	// How far back and how many records feed the category breakdown.
	breakdownWindow = 7 * 24 * time.Hour
	breakdownLimit  = 1000
)

// StatsStore is the aggregate query surface over the audit log.
type StatsStore interface {
	GetCounts(ctx context.Context) (*models.AuditCounts, error)
	GetModelPerformance(ctx context.Context) ([]models.VersionPerformance, error)
	GetRecent(ctx context.Context, cutoff time.Time, limit int) ([]*types.ModerationRecord, error)
}

// StatsCollector maintains hourly moderation counters in Redis and assembles
// the aggregate stats view from them plus the audit log.
type StatsCollector struct {
	store  StatsStore
	client rueidis.Client
	logger *zap.Logger
}

// NewStatsCollector creates the stats collector on the given Redis client.
func NewStatsCollector(store StatsStore, client rueidis.Client, logger *zap.Logger) *StatsCollector {
	return &StatsCollector{
		store:  store,
		client: client,
		logger: logger.Named("moderation_stats"),
	}
}

// recordTrend bumps the counters for the current hour. Counter failures are
// logged and ignored; trends are advisory.
func (c *StatsCollector) recordTrend(ctx context.Context, flagged bool) {
	key := trendKey(time.Now().UTC())

	commands := make(rueidis.Commands, 0, 3)
	commands = append(commands, c.client.B().Hincrby().Key(key).Field("moderated").Increment(1).Build())

	if flagged {
		commands = append(commands, c.client.B().Hincrby().Key(key).Field("flagged").Increment(1).Build())
	}

	commands = append(commands, c.client.B().Expire().Key(key).Seconds(int64(trendKeyTTL.Seconds())).Build())

	for _, resp := range c.client.DoMulti(ctx, commands...) {
		if err := resp.Error(); err != nil {
			c.logger.Warn("Failed to record moderation trend", zap.Error(err))
			return
		}
	}
}

// Stats assembles the aggregate moderation view. An empty audit log yields
// zero counts and a zero flagged percentage.
func (c *StatsCollector) Stats(ctx context.Context) (*types.ModerationStats, error) {
	counts, err := c.store.GetCounts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &types.ModerationStats{
		TotalModerated:      counts.Total,
		CategoriesBreakdown: make(map[string]int64),
		ModelPerformance:    make(map[string]float64),
		LastUpdated:         time.Now().UTC(),
	}

	if counts.Total > 0 {
		stats.FlaggedPercentage = float64(counts.Flagged) / float64(counts.Total) * 100
	}

	performance, err := c.store.GetModelPerformance(ctx)
	if err != nil {
		return nil, err
	}

	for _, row := range performance {
		stats.ModelPerformance[row.ModelVersion] = row.AvgConfidence
	}

	recent, err := c.store.GetRecent(ctx, time.Now().UTC().Add(-breakdownWindow), breakdownLimit)
	if err != nil {
		return nil, err
	}

	for _, record := range recent {
		for _, category := range record.Categories {
			stats.CategoriesBreakdown[category.String()]++
		}
	}

	trends, err := c.trends(ctx)
	if err != nil {
		return nil, err
	}

	stats.RecentTrends = trends

	return stats, nil
}

// trends reads the hourly counters for the rolling window, oldest hour first.
// Hours with no activity are omitted.
func (c *StatsCollector) trends(ctx context.Context) ([]types.HourlyTrend, error) {
	now := time.Now().UTC().Truncate(time.Hour)
	trends := make([]types.HourlyTrend, 0, trendWindowHours)

	for i := trendWindowHours - 1; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)

		values, err := c.client.Do(ctx, c.client.B().
			Hmget().Key(trendKey(hour)).Field("moderated", "flagged").Build()).ToArray()
		if err != nil {
			return nil, fmt.Errorf("failed to read trend counters: %w", err)
		}

		moderated := counterValue(values[0])
		flagged := counterValue(values[1])

		if moderated == 0 && flagged == 0 {
			continue
		}

		trends = append(trends, types.HourlyTrend{
			Hour:      hour,
			Moderated: moderated,
			Flagged:   flagged,
		})
	}

	return trends, nil
}

func counterValue(message rueidis.RedisMessage) int64 {
	value, err := message.AsInt64()
	if err != nil {
		return 0
	}

	return value
}

func trendKey(hour time.Time) string {
	return "moderation_trend:" + hour.Truncate(time.Hour).Format("2006010215")
}
