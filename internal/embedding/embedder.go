// Package embedding produces dense text vectors for the nearest-neighbor
// suggestion backend: an ONNX transformer when built with CGO, plus a
// deterministic mock for tests.
package embedding

import "context"

// Embedder maps text to fixed-dimension unit vectors.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds each text in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding width.
	Dimensions() int
	// Close releases model resources.
	Close() error
}
