// Package embed turns text into dense vectors.
//
// A Provider talks to one embedding backend. The Generator in front of it
// never returns an error: any failure becomes a nil vector, which callers
// treat as "no semantic signal" and degrade to lexical-only behaviour.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultMaxInputChars bounds the text sent to a provider, in runes.
	DefaultMaxInputChars = 8000

	// DefaultDimensions is the vector size of the default model (bge-m3).
	DefaultDimensions = 1024

	// DefaultTimeout bounds one provider request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	// ProbeText is embedded by IsAvailable.
	ProbeText = "test"
)

// Provider generates one embedding per request.
type Provider interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName identifies the model, used in cache keys and logs.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector returns v scaled to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
