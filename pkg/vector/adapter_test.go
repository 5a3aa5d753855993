package vector_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/vector"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Close() error { return nil }

type fakeDriver struct {
	hits    []vector.Hit
	err     error
	lastQ   vector.SearchQuery
	indexed []vector.Document
}

func (f *fakeDriver) Index(ctx context.Context, doc vector.Document) error {
	f.indexed = append(f.indexed, doc)
	return f.err
}

func (f *fakeDriver) Search(ctx context.Context, q vector.SearchQuery) ([]vector.Hit, error) {
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeDriver) Close() error { return nil }

func TestRelatedSeedsQueryWithOwner(t *testing.T) {
	driver := &fakeDriver{hits: []vector.Hit{{Text: "likes tacos", Score: 0.9}}}
	adapter := vector.NewAdapter(driver, &fakeEmbedder{}, vector.AdapterConfig{}, zap.NewNop())

	hits := adapter.Related(context.Background(), memstore.CollectionLongTermMemory, "u1", "what do I eat")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}

	if !strings.HasPrefix(driver.lastQ.Text, "user u1") {
		t.Fatalf("query not seeded with owner: %q", driver.lastQ.Text)
	}
	if driver.lastQ.Owner != "u1" {
		t.Fatalf("owner filter not set: %q", driver.lastQ.Owner)
	}
	if driver.lastQ.Alpha != vector.DefaultAlpha {
		t.Fatalf("expected default alpha, got %v", driver.lastQ.Alpha)
	}
}

func TestRelatedDegradesToEmptyOnSearchFailure(t *testing.T) {
	driver := &fakeDriver{err: errors.New("store down")}
	adapter := vector.NewAdapter(driver, &fakeEmbedder{}, vector.AdapterConfig{}, zap.NewNop())

	hits := adapter.Related(context.Background(), memstore.CollectionLongTermMemory, "u1", "hello")
	if len(hits) != 0 {
		t.Fatalf("expected no hits on failure, got %d", len(hits))
	}
}

func TestRelatedFallsBackToKeywordOnEmbedFailure(t *testing.T) {
	driver := &fakeDriver{hits: []vector.Hit{{Text: "likes tacos"}}}
	embedder := &fakeEmbedder{err: errors.New("embedder down")}
	adapter := vector.NewAdapter(driver, embedder, vector.AdapterConfig{}, zap.NewNop())

	hits := adapter.Related(context.Background(), memstore.CollectionLongTermMemory, "u1", "hello")
	if len(hits) != 1 {
		t.Fatalf("expected keyword hits despite embed failure, got %d", len(hits))
	}
	if len(driver.lastQ.Embedding) != 0 {
		t.Fatalf("expected empty embedding on embed failure")
	}
}

func TestIndexSwallowsFailures(t *testing.T) {
	driver := &fakeDriver{err: errors.New("store down")}
	adapter := vector.NewAdapter(driver, &fakeEmbedder{}, vector.AdapterConfig{}, zap.NewNop())

	// Must not panic or surface the error; the memory is already persisted.
	adapter.Index(context.Background(), memstore.CollectionLongTermMemory, "id1", "u1", "likes tacos")

	if len(driver.indexed) != 1 {
		t.Fatalf("expected index attempt, got %d", len(driver.indexed))
	}
}
