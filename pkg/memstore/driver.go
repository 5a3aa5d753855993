// Package memstore provides the typed client and driver interfaces for the
// external document/vector memory store.
//
// The store is addressed by a small fixed set of named collections. Drivers
// expose only the query shapes the engine needs: equality-filtered fetch,
// insert, and upsert. Anything richer (similarity and hybrid search) lives in
// pkg/vector.
package memstore

import (
	"context"
	"time"
)

// Collection names understood by the engine.
const (
	CollectionUserProfile        = "UserProfile"
	CollectionLongTermMemory     = "LongTermMemory"
	CollectionRecentConversation = "RecentConversation"
	CollectionAgentSelfMemory    = "AgentSelfMemory"
	CollectionCandidateFact      = "CandidateFact"
)

// SelfUserID is the sentinel owner id for the agent's own memories.
const SelfUserID = "_ash"

// Object is a single stored record. Properties hold JSON-compatible values
// (string, float64, int, bool).
type Object struct {
	ID         string
	Properties map[string]any
	CreatedAt  time.Time
}

// String returns the named property as a string, or "" if absent.
func (o *Object) String(name string) string {
	if o == nil || o.Properties == nil {
		return ""
	}
	s, _ := o.Properties[name].(string)
	return s
}

// Int returns the named property as an int, or 0 if absent.
// JSON decoding yields float64 for numbers, so both are accepted.
func (o *Object) Int(name string) int {
	if o == nil || o.Properties == nil {
		return 0
	}
	switch v := o.Properties[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Driver defines the interface for persisting and retrieving objects in the
// memory store backend. Filter predicates are limited to equality on one
// field, which is the only query shape the rest of the engine requires.
//
// Every operation acquires a scoped connection (or a slot from a bounded
// pool) and releases it on every exit path. Implementations must not cache
// connections across calls on behalf of the caller.
type Driver interface {
	// FetchOne returns the first object in the collection whose field equals
	// value. Returns ErrNotFound if no object matches.
	FetchOne(ctx context.Context, collection, field, value string) (*Object, error)

	// FetchMany returns up to limit objects whose field equals value.
	// When newestFirst is set, results are ordered by creation time
	// descending. The returned slice is finite and not restartable.
	FetchMany(ctx context.Context, collection, field, value string, limit int, newestFirst bool) ([]Object, error)

	// Insert stores a new object and returns its id.
	Insert(ctx context.Context, collection string, props map[string]any) (string, error)

	// Upsert stores props under the object whose keyField equals keyValue,
	// creating it if absent. Returns the object id. Last writer wins.
	Upsert(ctx context.Context, collection, keyField, keyValue string, props map[string]any) (string, error)

	// Delete removes the object with the given id. Deleting an absent
	// object is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Close releases any resources held by the driver.
	Close() error
}
