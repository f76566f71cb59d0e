// Package vector provides the in-memory similarity index used for semantic
// listing search. The index is read-mostly: inference requests query it
// concurrently while upserts from listing updates and re-embedding jobs
// mutate it under a write lock.
package vector

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/unibazzar/ai-service/internal/database/types"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension does not match index dimension")
	ErrEmptyVector       = errors.New("vector must not be empty")
)

// Entry is one indexed listing vector with its result metadata.
type Entry struct {
	ListingID int64
	CampusID  int64
	OwnerID   int64
	Vector    []float32
	Metadata  types.EmbeddingMetadata
}

// Result pairs an entry with its similarity score for one query.
type Result struct {
	Entry Entry
	Score float64
}

// Index is a flat cosine-similarity index over listing vectors.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[int64]Entry
}

// NewIndex creates an empty index with a fixed vector dimension.
func NewIndex(dimension int) *Index {
	return &Index{
		dimension: dimension,
		entries:   make(map[int64]Entry),
	}
}

// Dimension returns the fixed vector dimension of the index.
func (i *Index) Dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.dimension
}

// Len returns the number of indexed listings.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.entries)
}

// Upsert inserts or replaces the entry for a listing id.
func (i *Index) Upsert(entry Entry) error {
	if len(entry.Vector) == 0 {
		return ErrEmptyVector
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if len(entry.Vector) != i.dimension {
		return ErrDimensionMismatch
	}

	i.entries[entry.ListingID] = entry

	return nil
}

// Remove deletes a listing from the index. Removing an absent listing is a no-op.
func (i *Index) Remove(listingID int64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.entries, listingID)
}

// Get returns the indexed entry for a listing id.
func (i *Index) Get(listingID int64) (Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entry, ok := i.entries[listingID]

	return entry, ok
}

// ReplaceAll atomically swaps the index contents and dimension. Used by
// re-embedding jobs so readers never observe a half-rebuilt index.
func (i *Index) ReplaceAll(dimension int, entries []Entry) error {
	replacement := make(map[int64]Entry, len(entries))

	for _, entry := range entries {
		if len(entry.Vector) != dimension {
			return ErrDimensionMismatch
		}

		replacement[entry.ListingID] = entry
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.dimension = dimension
	i.entries = replacement

	return nil
}

// Search ranks all indexed listings against the query vector by cosine
// similarity. An optional campus filter is applied before ranking. Results
// are ordered by descending score with ties broken by ascending listing id,
// which keeps pagination deterministic; pages past the end are empty, not
// an error.
func (i *Index) Search(query []float32, campusID *int64, limit, offset int) ([]Result, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}

	i.mu.RLock()

	if len(query) != i.dimension {
		i.mu.RUnlock()
		return nil, ErrDimensionMismatch
	}

	results := make([]Result, 0, len(i.entries))

	for _, entry := range i.entries {
		if campusID != nil && entry.CampusID != *campusID {
			continue
		}

		results = append(results, Result{
			Entry: entry,
			Score: Cosine(query, entry.Vector),
		})
	}

	i.mu.RUnlock()

	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}

		return results[a].Entry.ListingID < results[b].Entry.ListingID
	})

	return paginate(results, limit, offset), nil
}

// All returns a snapshot of every indexed entry, optionally filtered by campus.
func (i *Index) All(campusID *int64) []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entries := make([]Entry, 0, len(i.entries))

	for _, entry := range i.entries {
		if campusID != nil && entry.CampusID != *campusID {
			continue
		}

		entries = append(entries, entry)
	}

	return entries
}

// Cosine computes the cosine similarity between two equal-length vectors.
// Zero vectors score zero rather than dividing by zero.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64

	for idx := range a {
		dot += float64(a[idx]) * float64(b[idx])
		normA += float64(a[idx]) * float64(a[idx])
		normB += float64(b[idx]) * float64(b[idx])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func paginate(results []Result, limit, offset int) []Result {
	if offset >= len(results) {
		return []Result{}
	}

	end := offset + limit
	if end > len(results) {
		end = len(results)
	}

	return results[offset:end]
}
