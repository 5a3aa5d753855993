// Package inmemory provides an in-process memory store driver. It backs local
// development and tests; nothing persists across restarts.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashenvale/recall/pkg/memstore"
)

type record struct {
	id        string
	props     map[string]any
	createdAt time.Time
	seq       int64
}

// Driver implements memstore.Driver with plain maps behind a mutex.
type Driver struct {
	mu          sync.RWMutex
	collections map[string][]*record
	seq         int64

	// now is swappable in tests.
	now func() time.Time
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		collections: make(map[string][]*record),
		now:         time.Now,
	}
}

// SetClock replaces the driver's clock. Test hook.
func (d *Driver) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// FetchOne returns the first object in the collection whose field equals
// value. Returns memstore.ErrNotFound if no object matches.
func (d *Driver) FetchOne(ctx context.Context, collection, field, value string) (*memstore.Object, error) {
	objs, err := d.FetchMany(ctx, collection, field, value, 1, false)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, memstore.ErrNotFound{Collection: collection, Field: field, Value: value}
	}

	return &objs[0], nil
}

// FetchMany returns up to limit objects whose field equals value.
func (d *Driver) FetchMany(ctx context.Context, collection, field, value string, limit int, newestFirst bool) ([]memstore.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []*record
	for _, rec := range d.collections[collection] {
		if s, ok := rec.props[field].(string); ok && s == value {
			matched = append(matched, rec)
		}
	}

	if newestFirst {
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].createdAt.Equal(matched[j].createdAt) {
				return matched[i].seq > matched[j].seq
			}
			return matched[i].createdAt.After(matched[j].createdAt)
		})
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	objs := make([]memstore.Object, 0, len(matched))
	for _, rec := range matched {
		objs = append(objs, rec.object())
	}

	return objs, nil
}

// Insert stores a new object and returns its id.
func (d *Driver) Insert(ctx context.Context, collection string, props map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.insertLocked(collection, props), nil
}

// Upsert stores props under the object whose keyField equals keyValue,
// creating it if absent.
func (d *Driver) Upsert(ctx context.Context, collection, keyField, keyValue string, props map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rec := range d.collections[collection] {
		if s, ok := rec.props[keyField].(string); ok && s == keyValue {
			rec.props = cloneProps(props)
			return rec.id, nil
		}
	}

	return d.insertLocked(collection, props), nil
}

// Delete removes the object with the given id. Deleting an absent object is
// not an error.
func (d *Driver) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	recs := d.collections[collection]
	for i, rec := range recs {
		if rec.id == id {
			d.collections[collection] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}

	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) insertLocked(collection string, props map[string]any) string {
	d.seq++
	rec := &record{
		id:        uuid.NewString(),
		props:     cloneProps(props),
		createdAt: d.now().UTC(),
		seq:       d.seq,
	}
	d.collections[collection] = append(d.collections[collection], rec)

	return rec.id
}

func (r *record) object() memstore.Object {
	return memstore.Object{
		ID:         r.id,
		Properties: cloneProps(r.props),
		CreatedAt:  r.createdAt,
	}
}

func cloneProps(props map[string]any) map[string]any {
	clone := make(map[string]any, len(props))
	for k, v := range props {
		clone[k] = v
	}
	return clone
}
