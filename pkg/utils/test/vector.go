package testutils

import (
	"context"
	"fmt"

	"github.com/ashenvale/recall/pkg/vector"
)

// MockVectorDriver is a test vector driver
type MockVectorDriver struct {
	Documents []vector.Document
	Hits      []vector.Hit
	Queries   []vector.SearchQuery

	// FailSearch causes Search to return an error
	FailSearch bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{}
}

func (m *MockVectorDriver) Index(_ context.Context, doc vector.Document) error {
	m.Documents = append(m.Documents, doc)
	return nil
}

func (m *MockVectorDriver) Search(_ context.Context, q vector.SearchQuery) ([]vector.Hit, error) {
	m.Queries = append(m.Queries, q)
	if m.FailSearch {
		return nil, fmt.Errorf("mock search failure")
	}
	if q.Limit > 0 && len(m.Hits) > q.Limit {
		return m.Hits[:q.Limit], nil
	}
	return m.Hits, nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
