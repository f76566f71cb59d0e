package types

import (
	"time"

	"github.com/unibazzar/ai-service/internal/database/types/enum"
)

// UserInteraction is one append-only record of a user acting on a listing.
// Interactions are never updated or deleted; they drive both batch
// retraining and incremental profile updates.
type UserInteraction struct {
	ID          string               `bun:",pk,notnull"        json:"id"`
	UserID      int64                `bun:",notnull"           json:"userId"`
	ListingID   int64                `bun:",notnull"           json:"listingId"`
	Type        enum.InteractionType `bun:",notnull"           json:"type"`
	Value       float64              `bun:",notnull"           json:"value"`
	ContextData map[string]any       `bun:"type:jsonb"         json:"contextData"`
	CreatedAt   time.Time            `bun:",notnull"           json:"createdAt"`
}
