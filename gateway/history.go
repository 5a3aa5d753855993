package gateway

import (
	"context"
	"sync"

	"github.com/ashenvale/recall/pkg/bundle"
)

// DefaultHistoryDepth bounds the per-channel message log.
const DefaultHistoryDepth = 50

// ChannelLog is a bounded in-memory transcript per channel. It backs both the
// assembler's channel history fetch and the transcript endpoint, so the
// agent's own replies show up in the history it reads next turn.
type ChannelLog struct {
	mu       sync.RWMutex
	depth    int
	channels map[string][]bundle.ChannelMessage
}

// NewChannelLog creates a ChannelLog keeping up to depth messages per channel.
func NewChannelLog(depth int) *ChannelLog {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}

	return &ChannelLog{
		depth:    depth,
		channels: make(map[string][]bundle.ChannelMessage),
	}
}

// Record appends a message to the channel's transcript, evicting the oldest
// entry once the channel is at depth.
func (l *ChannelLog) Record(channelID string, msg bundle.ChannelMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := append(l.channels[channelID], msg)
	if len(log) > l.depth {
		log = log[len(log)-l.depth:]
	}
	l.channels[channelID] = log
}

// Recent returns up to limit messages for the channel, newest first.
func (l *ChannelLog) Recent(_ context.Context, channelID string, limit int) ([]bundle.ChannelMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	log := l.channels[channelID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}

	recent := make([]bundle.ChannelMessage, 0, limit)
	for i := len(log) - 1; i >= len(log)-limit; i-- {
		recent = append(recent, log[i])
	}

	return recent, nil
}

// LastFrom returns the newest message authored by authorID in the channel,
// or false when there is none.
func (l *ChannelLog) LastFrom(channelID, authorID string) (bundle.ChannelMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	log := l.channels[channelID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].AuthorID == authorID {
			return log[i], true
		}
	}

	return bundle.ChannelMessage{}, false
}

var _ bundle.HistoryAccessor = (*ChannelLog)(nil)
