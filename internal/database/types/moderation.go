package types

import (
	"time"

	"github.com/unibazzar/ai-service/internal/database/types/enum"
)

// ModerationRecord is the audit row persisted for every moderation verdict.
// Records are append-only and keyed by content id plus verdict time.
type ModerationRecord struct {
	ID           string           `bun:",pk,notnull"       json:"id"`
	ContentID    int64            `bun:",notnull"          json:"contentId"`
	ContentType  enum.ContentType `bun:",notnull"          json:"contentType"`
	IsFlagged    bool             `bun:",notnull"          json:"isFlagged"`
	Confidence   float64          `bun:",notnull"          json:"confidence"`
	Categories   []enum.Category  `bun:"type:jsonb"        json:"categories"`
	Severity     enum.Severity    `bun:",notnull"          json:"severity"`
	Action       enum.Action      `bun:",notnull"          json:"action"`
	Explanation  string           `bun:",notnull"          json:"explanation"`
	ModelVersion string           `bun:",notnull"          json:"modelVersion"`
	CreatedAt    time.Time        `bun:",notnull"          json:"createdAt"`
}

// ModerationStats is the aggregate view over the audit log.
type ModerationStats struct {
	TotalModerated      int64              `json:"totalModerated"`
	FlaggedPercentage   float64            `json:"flaggedPercentage"`
	CategoriesBreakdown map[string]int64   `json:"categoriesBreakdown"`
	ModelPerformance    map[string]float64 `json:"modelPerformance"`
	RecentTrends        []HourlyTrend      `json:"recentTrends"`
	LastUpdated         time.Time          `json:"lastUpdated"`
}

// HourlyTrend is one hour of moderation volume from the trend counters.
type HourlyTrend struct {
	Hour      time.Time `json:"hour"`
	Moderated int64     `json:"moderated"`
	Flagged   int64     `json:"flagged"`
}
