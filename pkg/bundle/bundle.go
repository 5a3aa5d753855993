// Package bundle assembles the context bundle handed to response generation:
// everything the engine knows about a user, gathered concurrently and
// degrading gracefully when any source is slow or down.
package bundle

import (
	"context"
	"time"

	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/vector"
)

// ChannelMessage is one message in a channel's rolling history.
type ChannelMessage struct {
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// HistoryAccessor provides recent channel messages, newest first.
type HistoryAccessor interface {
	Recent(ctx context.Context, channelID string, limit int) ([]ChannelMessage, error)
}

// Request identifies the incoming message a bundle is assembled for.
type Request struct {
	UserID      string
	DisplayName string
	ChannelID   string
	Message     string
}

// Bundle is the assembled context for one generation request. Any field may
// be empty when its source degraded; Degraded names the sources that did.
//
// Memories holds the user's own long-term memories recalled by hybrid search.
// Related holds cross-user memories surfaced by pure vector similarity to the
// message, for thematic recall beyond the single user.
type Bundle struct {
	Profile       *memstore.UserProfile
	Memories      []vector.Hit
	SelfMemories  []memstore.LongTermMemory
	Conversations []memstore.RecentConversation
	History       []ChannelMessage
	Related       []vector.Hit

	Degraded []string
}

// IsDegraded reports whether any context source failed to contribute.
func (b *Bundle) IsDegraded() bool {
	return len(b.Degraded) > 0
}
