// Package embedding turns question text into normalized fixed-dimension
// vectors, via ONNX when available and a deterministic mock otherwise.
package embedding

import "context"

// Embedder produces L2-normalized vector embeddings for text. All vectors
// from one embedder share the same dimension, and identical input always
// yields an identical vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
