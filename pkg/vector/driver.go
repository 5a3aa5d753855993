// Package vector provides interfaces and implementations for similarity and
// hybrid search over memory collections.
package vector

import "context"

// Document represents an indexed memory text with its embedding.
type Document struct {
	// ID is the store object id this document corresponds to.
	ID string

	// Collection is the memory collection the document belongs to.
	Collection string

	// Owner is the user id the memory is scoped to.
	Owner string

	// Text is the memory text body.
	Text string

	// Embedding is the vector representation of Text. Drivers whose backend
	// vectorizes server-side may ignore it.
	Embedding []float32
}

// Hit represents a search result with similarity score.
type Hit struct {
	// ID is the store object id of the matched document.
	ID string

	// Owner is the user id the memory is scoped to.
	Owner string

	// Text is the matched memory text.
	Text string

	// Score represents the relevance score (higher = more relevant).
	Score float32
}

// SearchQuery describes one search against a memory collection.
type SearchQuery struct {
	// Collection is the memory collection to search.
	Collection string

	// Owner scopes results to one user id when set.
	Owner string

	// Text is the keyword side of a hybrid search.
	Text string

	// Embedding is the vector side of the search.
	Embedding []float32

	// Alpha blends keyword and vector relevance: 0 is keyword-only,
	// 1 is vector-only.
	Alpha float32

	// Limit bounds the number of hits returned.
	Limit int
}

// Driver handles indexing and retrieval of memory documents.
type Driver interface {
	// Index stores a document for later retrieval. Indexing a document with
	// an existing ID replaces it.
	Index(ctx context.Context, doc Document) error

	// Search returns the most relevant documents for the query.
	Search(ctx context.Context, q SearchQuery) ([]Hit, error)

	// Close releases any resources held by the driver.
	Close() error
}
