// Package training implements the two batch training pipelines: re-embedding
// the listing corpus with a freshly fitted encoder, and retraining the
// collaborative-filtering model from the interaction log. Both run as
// asynchronous jobs and swap new model snapshots in atomically.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/unibazzar/ai-service/internal/database/types"
	"github.com/unibazzar/ai-service/internal/model"
	"github.com/unibazzar/ai-service/internal/setup/config"
	"github.com/unibazzar/ai-service/internal/vector"
	"go.uber.org/zap"
)

// EmbeddingCorpus is the persistence surface the re-embedder needs.
type EmbeddingCorpus interface {
	GetAll(ctx context.Context, afterListingID int64, limit int) ([]*types.ListingEmbedding, error)
	Upsert(ctx context.Context, embedding *types.ListingEmbedding) error
}

// Reembedder fits a new encoder over the stored listing corpus, re-encodes
// every listing, and swaps the encoder and index together so search never
// mixes vectors from two encoder generations.
type Reembedder struct {
	corpus    EmbeddingCorpus
	models    *model.Manager
	index     *vector.Index
	artifacts *config.Models
	batchSize int
	logger    *zap.Logger
}

// NewReembedder creates the re-embedding trainer.
func NewReembedder(
	corpus EmbeddingCorpus, models *model.Manager, index *vector.Index,
	artifacts *config.Models, batchSize int, logger *zap.Logger,
) *Reembedder {
	return &Reembedder{
		corpus:    corpus,
		models:    models,
		index:     index,
		artifacts: artifacts,
		batchSize: batchSize,
		logger:    logger.Named("reembed"),
	}
}

// Run executes one full re-embedding pass. It satisfies jobs.TrainFunc.
func (r *Reembedder) Run(ctx context.Context, report func(progress float64, message string)) error {
	report(5, "loading listing corpus")

	listings, err := r.loadCorpus(ctx)
	if err != nil {
		return err
	}

	if len(listings) == 0 {
		r.logger.Info("No listings to re-embed")
		report(100, "no listings to re-embed")

		return nil
	}

	report(20, fmt.Sprintf("fitting encoder over %d listings", len(listings)))

	corpus := make([]string, len(listings))
	for i, listing := range listings {
		corpus[i] = listing.Title + " " + listing.Description
	}

	version := "encoder_v" + time.Now().UTC().Format("20060102150405")
	encoder := model.TrainEncoder(corpus, r.index.Dimension(), version)

	report(40, "re-encoding listings")

	entries := make([]vector.Entry, 0, len(listings))
	now := time.Now().UTC()

	for i, listing := range listings {
		embedding, err := encoder.Encode(corpus[i])
		if err != nil {
			r.logger.Warn("Skipping listing with unencodable text",
				zap.Int64("listingID", listing.ListingID),
				zap.Error(err))

			continue
		}

		listing.Vector = embedding
		listing.ModelVersion = version
		listing.UpdatedAt = now

		entries = append(entries, vector.Entry{
			ListingID: listing.ListingID,
			CampusID:  listing.CampusID,
			OwnerID:   listing.OwnerID,
			Vector:    embedding,
			Metadata: types.EmbeddingMetadata{
				Title:       listing.Title,
				Description: listing.Description,
				CampusID:    listing.CampusID,
				OwnerID:     listing.OwnerID,
				Price:       listing.Price,
				CreatedAt:   listing.CreatedAt,
			},
		})
	}

	report(70, "persisting embeddings")

	if err := model.SaveArtifact(r.artifacts.ArtifactDir, r.artifacts.EncoderArtifact, encoder); err != nil {
		return err
	}

	for _, listing := range listings {
		if listing.ModelVersion != version {
			continue
		}

		if err := r.corpus.Upsert(ctx, listing); err != nil {
			return err
		}
	}

	report(90, "activating encoder")

	// The swap pair keeps query vectors and index vectors from the same
	// encoder generation.
	r.models.SwapEncoder(encoder)

	if err := r.index.ReplaceAll(r.index.Dimension(), entries); err != nil {
		return err
	}

	r.logger.Info("Re-embedding completed",
		zap.String("version", version),
		zap.Int("listings", len(entries)))

	return nil
}

func (r *Reembedder) loadCorpus(ctx context.Context) ([]*types.ListingEmbedding, error) {
	var (
		all   []*types.ListingEmbedding
		after int64
	)

	for {
		page, err := r.corpus.GetAll(ctx, after, r.batchSize)
		if err != nil {
			return nil, err
		}

		if len(page) == 0 {
			return all, nil
		}

		all = append(all, page...)
		after = page[len(page)-1].ListingID
	}
}
