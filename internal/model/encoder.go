package model

import (
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

var ErrEmptyText = errors.New("cannot encode empty text")

// signSalt extends the token hash so the sign bit is not a function of the
// bucket when the dimension is even.
var signSalt = []byte{0x2a}

// EncoderSnapshot is an immutable text encoder. It produces fixed-dimension
// feature-hashed vectors weighted by learned term weights, so encoding is
// deterministic for a given snapshot and input.
type EncoderSnapshot struct {
	Version       string             `json:"version"`
	Dimension     int                `json:"dimension"`
	TermWeights   map[string]float64 `json:"termWeights"`
	DefaultWeight float64            `json:"defaultWeight"`
}

// Encode converts text into an L2-normalized vector of the snapshot's
// dimension. Empty or whitespace-only text cannot be encoded.
func (e *EncoderSnapshot) Encode(text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	accum := make([]float64, e.Dimension)

	for _, token := range tokens {
		weight, ok := e.TermWeights[token]
		if !ok {
			weight = e.DefaultWeight
		}

		hasher := fnv.New32a()
		hasher.Write([]byte(token))
		bucket := int(hasher.Sum32()) % e.Dimension

		if bucket < 0 {
			bucket += e.Dimension
		}

		// The sign comes from a second hash so tokens sharing a bucket do
		// not automatically share a sign
		hasher.Write(signSalt)

		sign := 1.0
		if hasher.Sum32()&1 == 1 {
			sign = -1.0
		}

		accum[bucket] += sign * weight
	}

	var norm float64
	for _, v := range accum {
		norm += v * v
	}

	vector := make([]float32, e.Dimension)

	if norm == 0 {
		return vector, nil
	}

	norm = math.Sqrt(norm)
	for i, v := range accum {
		vector[i] = float32(v / norm)
	}

	return vector, nil
}
