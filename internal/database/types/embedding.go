package types

import (
	"errors"
	"time"
)

var ErrEmbeddingNotFound = errors.New("embedding not found")

// ListingEmbedding stores the vector representation of a listing together
// with the metadata surfaced in search and recommendation results.
// The vector dimension is fixed by the encoder snapshot that produced it.
type ListingEmbedding struct {
	ListingID    int64     `bun:",pk,notnull"         json:"listingId"`
	CampusID     int64     `bun:",notnull"            json:"campusId"`
	OwnerID      int64     `bun:",notnull"            json:"ownerId"`
	Vector       []float32 `bun:"type:jsonb,notnull"  json:"vector"`
	Title        string    `bun:",notnull"            json:"title"`
	Description  string    `bun:",notnull"            json:"description"`
	Price        float64   `bun:",notnull"            json:"price"`
	ModelVersion string    `bun:",notnull"            json:"modelVersion"`
	CreatedAt    time.Time `bun:",notnull"            json:"createdAt"`
	UpdatedAt    time.Time `bun:",notnull"            json:"updatedAt"`
}

// EmbeddingMetadata carries the listing attributes stored alongside a vector.
type EmbeddingMetadata struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CampusID    int64     `json:"campusId"`
	OwnerID     int64     `json:"ownerId"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
}
