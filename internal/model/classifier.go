package model

import (
	"sort"

	"github.com/unibazzar/ai-service/internal/database/types/enum"
)

// CategoryClassifier scores one moderation category with a linear bag-of-words
// model. Scoring is deterministic for a given snapshot and input.
type CategoryClassifier struct {
	Category    enum.Category      `json:"category"`
	TermWeights map[string]float64 `json:"termWeights"`
	Bias        float64            `json:"bias"`
}

// Score returns the category confidence in (0, 1) for pre-tokenized text.
func (c *CategoryClassifier) Score(tokens []string) float64 {
	raw := c.Bias
	for _, token := range tokens {
		raw += c.TermWeights[token]
	}

	return Sigmoid(raw)
}

// ClassifierSnapshot is an immutable set of per-category classifiers.
type ClassifierSnapshot struct {
	Version     string               `json:"version"`
	Classifiers []CategoryClassifier `json:"classifiers"`
}

// CategoryScore is one category's confidence for a piece of content.
type CategoryScore struct {
	Category   enum.Category
	Confidence float64
}

// ScoreAll runs every category classifier over the text and returns the
// scores ordered by descending confidence with ties broken by category value,
// so the strongest signal is always first and the ordering is stable.
func (s *ClassifierSnapshot) ScoreAll(text string) []CategoryScore {
	tokens := tokenize(text)

	scores := make([]CategoryScore, 0, len(s.Classifiers))
	for i := range s.Classifiers {
		scores = append(scores, CategoryScore{
			Category:   s.Classifiers[i].Category,
			Confidence: s.Classifiers[i].Score(tokens),
		})
	}

	sort.Slice(scores, func(a, b int) bool {
		if scores[a].Confidence != scores[b].Confidence {
			return scores[a].Confidence > scores[b].Confidence
		}

		return scores[a].Category < scores[b].Category
	})

	return scores
}
