package types

import (
	"errors"
	"time"
)

var ErrProfileNotFound = errors.New("user profile not found")

// UserProfile is the derived preference state for one user. It is rebuilt
// wholesale by batch training and nudged incrementally per interaction, so
// it is eventually consistent with the interaction log.
type UserProfile struct {
	UserID           int64     `bun:",pk,notnull"        json:"userId"`
	CampusID         int64     `bun:",notnull"           json:"campusId"`
	TasteVector      []float32 `bun:"type:jsonb"         json:"tasteVector"`
	LatentFactors    []float32 `bun:"type:jsonb"         json:"latentFactors"`
	InteractionCount int64     `bun:",notnull"           json:"interactionCount"`
	UpdatedAt        time.Time `bun:",notnull"           json:"updatedAt"`
}

// ColdStart reports whether the profile has no interaction history yet.
func (p *UserProfile) ColdStart() bool {
	return p.InteractionCount == 0
}
