// Package embeddings
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding indicates a failure to produce a vector for a text.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
