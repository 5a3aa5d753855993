package bundle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/vector"
)

// Defaults applied when Config fields are zero.
const (
	DefaultFetchTimeout      = 4 * time.Second
	DefaultMemoryLimit       = 3
	DefaultConversationLimit = 3
	DefaultHistoryLimit      = 5
	DefaultRelatedLimit      = 5
)

// Context source names reported in Bundle.Degraded. Search-backed sources
// (memories, related) degrade to empty inside the vector adapter and are not
// tracked here.
const (
	SourceProfile       = "profile"
	SourceConversations = "conversations"
	SourceHistory       = "history"
)

// Config holds tuning for the assembler's fan-out.
type Config struct {
	// FetchTimeout bounds each individual context fetch.
	FetchTimeout time.Duration

	// MemoryLimit bounds long-term memories fetched per owner.
	MemoryLimit int

	// ConversationLimit bounds recent conversation summaries.
	ConversationLimit int

	// HistoryLimit bounds channel history messages.
	HistoryLimit int

	// RelatedLimit bounds related-memory search hits.
	RelatedLimit int
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MemoryLimit == 0 {
		c.MemoryLimit = DefaultMemoryLimit
	}
	if c.ConversationLimit == 0 {
		c.ConversationLimit = DefaultConversationLimit
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.RelatedLimit == 0 {
		c.RelatedLimit = DefaultRelatedLimit
	}
	return c
}

// Assembler gathers the context bundle for a request. Every source is fetched
// concurrently under its own timeout; a slow or failing source contributes
// nothing rather than failing the request.
type Assembler struct {
	store       *memstore.Client
	search      *vector.Adapter
	history     HistoryAccessor
	agentUserID string
	cfg         Config
	logger      *zap.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(store *memstore.Client, search *vector.Adapter, history HistoryAccessor, agentUserID string, cfg Config, logger *zap.Logger) *Assembler {
	return &Assembler{
		store:       store,
		search:      search,
		history:     history,
		agentUserID: agentUserID,
		cfg:         cfg.withDefaults(),
		logger:      logger,
	}
}

// Assemble gathers everything known about the requesting user. It never
// returns an error: a bundle is always produced, with Degraded naming any
// sources that failed or timed out.
func (a *Assembler) Assemble(ctx context.Context, req Request) *Bundle {
	b := &Bundle{}

	var mu sync.Mutex
	degrade := func(source string, err error) {
		mu.Lock()
		b.Degraded = append(b.Degraded, source)
		mu.Unlock()
		a.logger.Warn("context source degraded",
			zap.String("source", source),
			zap.String("user_id", req.UserID),
			zap.Error(err))
	}

	var g errgroup.Group

	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()

		profile, err := a.store.EnsureProfile(fetchCtx, req.UserID, req.DisplayName)
		if err != nil {
			degrade(SourceProfile, err)
			return nil
		}
		b.Profile = profile
		return nil
	})

	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()

		// Hybrid recall scoped to the user, seeded with their identity.
		// Search failures already degrade to empty inside the adapter; an
		// empty result is indistinguishable from a user with no memories,
		// which is the intended behavior.
		b.Memories = a.search.Related(fetchCtx, memstore.CollectionLongTermMemory, req.UserID, req.Message)

		// The agent's own memories ride along; losing them alone is not
		// worth a degradation note.
		selfMemories, err := a.store.LongTermMemories(fetchCtx, memstore.SelfUserID, a.cfg.MemoryLimit)
		if err != nil {
			a.logger.Warn("self memories unavailable", zap.Error(err))
			return nil
		}
		b.SelfMemories = selfMemories
		return nil
	})

	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()

		conversations, err := a.store.RecentConversations(fetchCtx, req.UserID, a.cfg.ConversationLimit)
		if err != nil {
			degrade(SourceConversations, err)
			return nil
		}
		b.Conversations = conversations
		return nil
	})

	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()

		messages, err := a.history.Recent(fetchCtx, req.ChannelID, a.cfg.HistoryLimit)
		if err != nil {
			degrade(SourceHistory, err)
			return nil
		}
		b.History = trimAtAgentTurn(messages, a.agentUserID)
		return nil
	})

	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()

		// Cross-user thematic recall on the message itself.
		b.Related = a.search.Similar(fetchCtx, memstore.CollectionLongTermMemory, req.Message)
		return nil
	})

	// Goroutines only ever return nil; Wait is just the join point.
	_ = g.Wait()

	return b
}

// trimAtAgentTurn cuts the history at the agent's most recent reply, keeping
// only what came after it. The agent's last turn and everything before it was
// already seen and responded to. Input is newest first; output is
// chronological.
func trimAtAgentTurn(messages []ChannelMessage, agentUserID string) []ChannelMessage {
	kept := make([]ChannelMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.AuthorID == agentUserID {
			break
		}
		kept = append(kept, msg)
	}

	// Reverse to chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	return kept
}
