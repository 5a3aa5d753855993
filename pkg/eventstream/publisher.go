package eventstream

import "context"

// Publisher publishes memory events to an event stream backend. Publishing is
// best effort; callers log and continue on error.
type Publisher interface {
	Publish(ctx context.Context, event *MemoryEvent) error
	Close() error
}
