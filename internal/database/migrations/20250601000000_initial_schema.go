package migrations

import (
	"context"
	"fmt"

	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.ListingEmbedding)(nil),
			(*types.UserInteraction)(nil),
			(*types.ModerationRecord)(nil),
			(*types.UserProfile)(nil),
		}

		for _, model := range models {
			if _, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}

		// Indexes for the hot query paths
		indexes := []struct {
			name  string
			table string
			expr  string
		}{
			{"idx_listing_embeddings_campus", "listing_embeddings", "(campus_id, listing_id)"},
			{"idx_user_interactions_user", "user_interactions", "(user_id, created_at DESC)"},
			{"idx_moderation_records_created", "moderation_records", "(created_at DESC)"},
			{"idx_moderation_records_content", "moderation_records", "(content_id, content_type)"},
		}

		for _, idx := range indexes {
			query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s %s", idx.name, idx.table, idx.expr)
			if _, err := db.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{
			"listing_embeddings",
			"user_interactions",
			"moderation_records",
			"user_profiles",
		}

		for _, table := range tables {
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}
