package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/embeddings"
)

const (
	// DefaultAlpha is the hybrid blend used for memory recall. Weighted
	// toward vector relevance while still rewarding keyword overlap.
	DefaultAlpha = 0.7

	// DefaultLimit bounds related-memory results when no limit is configured.
	DefaultLimit = 5
)

// Adapter wraps a Driver and an Embedder into the recall surface the rest of
// the engine uses. Search failures degrade to empty results: related memories
// are enrichment, never a reason to fail a request.
type Adapter struct {
	driver   Driver
	embedder embeddings.Embedder
	logger   *zap.Logger
	alpha    float32
	limit    int
}

// AdapterConfig holds configuration for the Adapter.
type AdapterConfig struct {
	// Alpha is the hybrid blend. Defaults to DefaultAlpha if zero.
	Alpha float32

	// Limit bounds related-memory results. Defaults to DefaultLimit if zero.
	Limit int
}

// NewAdapter creates an Adapter over the given driver and embedder.
func NewAdapter(driver Driver, embedder embeddings.Embedder, c AdapterConfig, logger *zap.Logger) *Adapter {
	alpha := c.Alpha
	if alpha == 0 {
		alpha = DefaultAlpha
	}

	limit := c.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	return &Adapter{
		driver:   driver,
		embedder: embedder,
		logger:   logger,
		alpha:    alpha,
		limit:    limit,
	}
}

// Related returns memories from the collection relevant to the user's
// message. The query is seeded with the owner id so results skew toward that
// user's context even when the message itself is generic. Never returns an
// error: any failure is logged and yields an empty slice.
func (a *Adapter) Related(ctx context.Context, collection, owner, message string) []Hit {
	query := seedQuery(owner, message)

	embedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		// Keyword-only search still beats no search.
		a.logger.Warn("embedding recall query failed, falling back to keyword search",
			zap.String("collection", collection),
			zap.Error(err))
		embedding = nil
	}

	hits, err := a.driver.Search(ctx, SearchQuery{
		Collection: collection,
		Owner:      owner,
		Text:       query,
		Embedding:  embedding,
		Alpha:      a.alpha,
		Limit:      a.limit,
	})
	if err != nil {
		a.logger.Warn("related memory search failed",
			zap.String("collection", collection),
			zap.String("owner", owner),
			zap.Error(err))
		return nil
	}

	return hits
}

// Similar returns memories thematically close to the message across all
// users. Pure vector relevance: paraphrased recollections should surface even
// with zero keyword overlap. Never returns an error.
func (a *Adapter) Similar(ctx context.Context, collection, message string) []Hit {
	embedding, err := a.embedder.Embed(ctx, message)
	if err != nil {
		a.logger.Warn("embedding similarity query failed",
			zap.String("collection", collection),
			zap.Error(err))
		return nil
	}

	hits, err := a.driver.Search(ctx, SearchQuery{
		Collection: collection,
		Text:       message,
		Embedding:  embedding,
		Alpha:      1,
		Limit:      a.limit,
	})
	if err != nil {
		a.logger.Warn("similarity search failed",
			zap.String("collection", collection),
			zap.Error(err))
		return nil
	}

	return hits
}

// Embed produces an embedding for text via the adapter's embedder.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.embedder.Embed(ctx, text)
}

// Index makes a stored memory searchable. Best effort: failures are logged,
// not returned, since the memory itself is already persisted.
func (a *Adapter) Index(ctx context.Context, collection, id, owner, text string) {
	embedding, err := a.embedder.Embed(ctx, text)
	if err != nil {
		a.logger.Warn("embedding memory for index failed",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.Error(err))
		return
	}

	err = a.driver.Index(ctx, Document{
		ID:         id,
		Collection: collection,
		Owner:      owner,
		Text:       text,
		Embedding:  embedding,
	})
	if err != nil {
		a.logger.Warn("indexing memory failed",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.Error(err))
	}
}

// Close releases the underlying driver and embedder.
func (a *Adapter) Close() error {
	derr := a.driver.Close()
	eerr := a.embedder.Close()
	if derr != nil {
		return derr
	}
	return eerr
}

func seedQuery(owner, message string) string {
	if message == "" {
		return fmt.Sprintf("user %s", owner)
	}
	return fmt.Sprintf("user %s %s", owner, message)
}
