package model

import "math"

// TrainEncoder fits IDF term weights over a listing text corpus. Rare terms
// receive high weights so distinctive words dominate the hashed vectors;
// terms never seen during training fall back to the default weight, which is
// the weight of a term appearing in a single document.
func TrainEncoder(corpus []string, dimension int, version string) *EncoderSnapshot {
	docFrequency := make(map[string]int)

	for _, doc := range corpus {
		seen := make(map[string]struct{})
		for _, token := range tokenize(doc) {
			seen[token] = struct{}{}
		}

		for token := range seen {
			docFrequency[token]++
		}
	}

	total := float64(len(corpus))
	weights := make(map[string]float64, len(docFrequency))

	for token, freq := range docFrequency {
		weights[token] = math.Log((total+1)/(float64(freq)+1)) + 1
	}

	return &EncoderSnapshot{
		Version:       version,
		Dimension:     dimension,
		TermWeights:   weights,
		DefaultWeight: math.Log(total+1) + 1,
	}
}
