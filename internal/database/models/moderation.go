package models

import (
	"context"
	"fmt"
	"time"

	"github.com/unibazzar/ai-service/internal/database/dbretry"
	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ModerationModel handles database operations for the moderation audit log.
type ModerationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewModeration creates a new ModerationModel.
func NewModeration(db *bun.DB, logger *zap.Logger) *ModerationModel {
	return &ModerationModel{
		db:     db,
		logger: logger.Named("db_moderation"),
	}
}

// Append inserts one audit record.
func (r *ModerationModel) Append(ctx context.Context, record *types.ModerationRecord) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(record).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to append moderation record: %w (contentID=%d)", err, record.ContentID)
		}

		return nil
	})
}

// AuditCounts holds the aggregate counters from the audit log.
type AuditCounts struct {
	Total   int64 `bun:"total"`
	Flagged int64 `bun:"flagged"`
}

// GetCounts returns the total and flagged record counts.
func (r *ModerationModel) GetCounts(ctx context.Context) (*AuditCounts, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*AuditCounts, error) {
		var counts AuditCounts

		err := r.db.NewSelect().
			Model((*types.ModerationRecord)(nil)).
			ColumnExpr("count(*) AS total").
			ColumnExpr("count(*) FILTER (WHERE is_flagged) AS flagged").
			Scan(ctx, &counts)
		if err != nil {
			return nil, fmt.Errorf("failed to get audit counts: %w", err)
		}

		return &counts, nil
	})
}

// VersionPerformance holds the average confidence per model version.
type VersionPerformance struct {
	ModelVersion  string  `bun:"model_version"`
	AvgConfidence float64 `bun:"avg_confidence"`
}

// GetModelPerformance returns the average confidence grouped by model version.
func (r *ModerationModel) GetModelPerformance(ctx context.Context) ([]VersionPerformance, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]VersionPerformance, error) {
		var rows []VersionPerformance

		err := r.db.NewSelect().
			Model((*types.ModerationRecord)(nil)).
			ColumnExpr("model_version").
			ColumnExpr("avg(confidence) AS avg_confidence").
			GroupExpr("model_version").
			Scan(ctx, &rows)
		if err != nil {
			return nil, fmt.Errorf("failed to get model performance: %w", err)
		}

		return rows, nil
	})
}

// GetRecent retrieves audit records written after the cutoff, most recent
// first, for the category breakdown.
func (r *ModerationModel) GetRecent(ctx context.Context, cutoff time.Time, limit int) ([]*types.ModerationRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ModerationRecord, error) {
		var records []*types.ModerationRecord

		err := r.db.NewSelect().
			Model(&records).
			Where("created_at >= ?", cutoff).
			Order("created_at DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent moderation records: %w", err)
		}

		return records, nil
	})
}

// PurgeOld removes audit records older than the cutoff date.
func (r *ModerationModel) PurgeOld(ctx context.Context, cutoffDate time.Time) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		result, err := r.db.NewDelete().
			Model((*types.ModerationRecord)(nil)).
			Where("created_at < ?", cutoffDate).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge old moderation records: %w (cutoffDate=%s)",
				err, cutoffDate.Format(time.RFC3339))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		r.logger.Debug("Purged old moderation records",
			zap.Int64("rowsAffected", rowsAffected),
			zap.Time("cutoffDate", cutoffDate))

		return nil
	})
}
