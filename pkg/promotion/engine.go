// Package promotion turns repeated candidate facts into long-term memories.
//
// Every request may emit candidate facts about the user. The engine buffers
// each sighting, and once a fact repeats often enough inside the rolling
// window it is either promoted into long-term memory or, when a near-duplicate
// already exists, reinforces the stored memory instead of creating another.
package promotion

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/eventstream"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/vector"
)

const (
	// DefaultWindow is the rolling window a fact must repeat within.
	DefaultWindow = 10 * 24 * time.Hour

	// DefaultRepeatThreshold is how many sightings a fact needs before it
	// is considered stable enough to promote.
	DefaultRepeatThreshold = 3

	// DefaultSimilarityCutoff is the cosine similarity above which a
	// candidate is treated as a restatement of an existing memory.
	DefaultSimilarityCutoff = 0.9
)

// Config holds configuration for the promotion engine.
type Config struct {
	// Window is the rolling observation window. Defaults to DefaultWindow
	// if zero.
	Window time.Duration

	// RepeatThreshold is the sighting count required for promotion.
	// Defaults to DefaultRepeatThreshold if zero.
	RepeatThreshold int

	// SimilarityCutoff is the dedup cutoff. Defaults to
	// DefaultSimilarityCutoff if zero.
	SimilarityCutoff float64
}

func (c Config) withDefaults() Config {
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.RepeatThreshold == 0 {
		c.RepeatThreshold = DefaultRepeatThreshold
	}
	if c.SimilarityCutoff == 0 {
		c.SimilarityCutoff = DefaultSimilarityCutoff
	}
	return c
}

// Engine buffers candidate-fact sightings and promotes the ones that repeat.
type Engine struct {
	store  *memstore.Client
	search *vector.Adapter
	events eventstream.Publisher
	logger *zap.Logger
	cfg    Config

	now func() time.Time
}

// NewEngine creates a promotion engine over the given store and search
// adapter.
func NewEngine(store *memstore.Client, search *vector.Adapter, events eventstream.Publisher, c Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		search: search,
		events: events,
		logger: logger,
		cfg:    c.withDefaults(),
		now:    time.Now,
	}
}

// Run records the candidate facts as fresh sightings for owner, then sweeps
// the owner's observation window: facts sighted at least RepeatThreshold times
// are promoted into long-term memory, unless a stored memory is already close
// enough, in which case that memory is reinforced instead. Either way the
// fact's sightings are consumed, so a sweep over unchanged state changes
// nothing. Sightings older than the window are pruned afterwards.
//
// A failure on one candidate never blocks the rest; only store failures that
// sink the whole sweep are returned.
func (e *Engine) Run(ctx context.Context, owner string, candidates []string) error {
	now := e.now().UTC()

	for _, fact := range candidates {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		if err := e.store.RecordObservation(ctx, owner, fact, now); err != nil {
			e.logger.Warn("recording observation failed",
				zap.String("owner", owner),
				zap.Error(err))
		}
	}

	observations, err := e.store.Observations(ctx, owner, 0)
	if err != nil {
		return err
	}

	cutoff := now.Add(-e.cfg.Window)

	counts := make(map[string]int)
	for _, obs := range observations {
		if obs.ObservedAt.Before(cutoff) {
			continue
		}
		counts[obs.FactText]++
	}

	ripe := make([]string, 0, len(counts))
	for fact, n := range counts {
		if n >= e.cfg.RepeatThreshold {
			ripe = append(ripe, fact)
		}
	}
	sort.Strings(ripe)

	if len(ripe) > 0 {
		if err := e.promote(ctx, owner, ripe); err != nil {
			return err
		}
	}

	pruned, err := e.store.PruneObservations(ctx, owner, cutoff)
	if err != nil {
		e.logger.Warn("pruning observations failed",
			zap.String("owner", owner),
			zap.Error(err))
	} else if pruned > 0 {
		e.logger.Debug("pruned aged observations",
			zap.String("owner", owner),
			zap.Int("pruned", pruned))
	}

	return nil
}

func (e *Engine) promote(ctx context.Context, owner string, facts []string) error {
	known := make(map[string]bool)
	if owner != memstore.SelfUserID {
		profile, err := e.store.Profile(ctx, owner)
		if err != nil && !memstore.IsNotFound(err) {
			return err
		}
		if profile != nil {
			for _, m := range profile.Memory {
				known[m] = true
			}
		}
	}

	memories, err := e.store.LongTermMemories(ctx, owner, 0)
	if err != nil {
		return err
	}

	embeddings := make(map[string][]float32)

	for _, fact := range facts {
		if known[fact] {
			// Already promoted on an earlier sweep.
			continue
		}

		factEmbedding, err := e.search.Embed(ctx, fact)
		if err != nil {
			e.logger.Warn("embedding candidate failed, skipping",
				zap.String("owner", owner),
				zap.Error(err))
			continue
		}

		best := -1.0
		bestText := ""
		for i := range memories {
			text := memories[i].MemoryText
			memEmbedding, ok := embeddings[text]
			if !ok {
				memEmbedding, err = e.search.Embed(ctx, text)
				if err != nil {
					e.logger.Warn("embedding stored memory failed",
						zap.String("owner", owner),
						zap.Error(err))
					continue
				}
				embeddings[text] = memEmbedding
			}

			sim, err := CosineSimilarity(factEmbedding, memEmbedding)
			if err != nil {
				e.logger.Debug("comparing embeddings failed",
					zap.String("owner", owner),
					zap.Error(err))
				continue
			}
			if sim > best {
				best = sim
				bestText = text
			}
		}

		if bestText != "" && best > e.cfg.SimilarityCutoff {
			count, err := e.store.Reinforce(ctx, owner, bestText)
			if err != nil {
				e.logger.Warn("reinforcing memory failed",
					zap.String("owner", owner),
					zap.Error(err))
				continue
			}
			e.consume(ctx, owner, fact)
			e.logger.Info("reinforced existing memory",
				zap.String("owner", owner),
				zap.Float64("similarity", best),
				zap.Int("reinforced_count", count))
			continue
		}

		id, err := e.store.InsertLongTermMemory(ctx, owner, fact)
		if err != nil {
			e.logger.Warn("storing promoted memory failed",
				zap.String("owner", owner),
				zap.Error(err))
			continue
		}

		e.consume(ctx, owner, fact)

		e.search.Index(ctx, memstore.CollectionForOwner(owner), id, owner, fact)

		if owner != memstore.SelfUserID {
			if err := e.store.AppendProfileMemory(ctx, owner, []string{fact}); err != nil {
				e.logger.Warn("appending promoted memory to profile failed",
					zap.String("owner", owner),
					zap.Error(err))
			}
		}

		if err := e.events.Publish(ctx, eventstream.NewMemoryPromoted(owner, fact)); err != nil {
			e.logger.Warn("publishing promotion event failed",
				zap.String("owner", owner),
				zap.Error(err))
		}

		e.logger.Info("promoted candidate to long-term memory",
			zap.String("owner", owner),
			zap.String("id", id))

		memories = append(memories, memstore.LongTermMemory{
			UserID:     owner,
			MemoryText: fact,
		})
		embeddings[fact] = factEmbedding
	}

	return nil
}

// consume clears the fact's buffered sightings once they have been spent on a
// promotion or a reinforcement, so a sweep over unchanged state is a no-op.
func (e *Engine) consume(ctx context.Context, owner, fact string) {
	if _, err := e.store.ConsumeObservations(ctx, owner, fact); err != nil {
		e.logger.Warn("consuming observations failed",
			zap.String("owner", owner),
			zap.Error(err))
	}
}
