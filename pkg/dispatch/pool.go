package dispatch

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/generation"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/promotion"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one detached memory write-back unit: everything a generation result
// asked to persist for a user.
type Job struct {
	UserID string
	Result *generation.Result
}

// PoolConfig is the configuration options for the write-back pool.
type PoolConfig struct {
	// Store is the memory store client used for profile and conversation
	// writes.
	Store *memstore.Client

	// Promoter handles long-term memory candidates.
	Promoter *promotion.Engine

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes memory write-back jobs asynchronously via a worker pool.
type Pool struct {
	config *PoolConfig
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *PoolConfig) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("write-back queued",
			zap.String("user_id", job.UserID),
		)
		return true
	default:
		p.logger.Error("write-back not queued, queue full, job dropped",
			zap.String("user_id", job.UserID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the reply path has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("write-back worker stopped", zap.Uint("worker_id", id))
}

// processJob persists everything the job's result carries. Runs on a fresh
// context: the inbound request may already be cancelled by the time the
// worker gets here, and these writes must finish anyway. Failures are logged
// and swallowed, never surfaced to the user.
func (p *Pool) processJob(job Job) {
	if job.Result == nil {
		return
	}

	ctx := context.Background()
	result := job.Result

	if err := p.config.Store.BumpInteractions(ctx, job.UserID); err != nil {
		p.logger.Warn("bumping interaction count failed",
			zap.String("user_id", job.UserID),
			zap.Error(err),
		)
	}

	if result.ConversationSummary != "" {
		if err := p.config.Store.AppendConversation(ctx, job.UserID, result.ConversationSummary); err != nil {
			p.logger.Warn("storing conversation summary failed",
				zap.String("user_id", job.UserID),
				zap.Error(err),
			)
		}
	}

	if len(result.UserFieldUpdates) > 0 {
		if err := p.config.Store.ApplyProfileUpdates(ctx, job.UserID, result.UserFieldUpdates); err != nil {
			p.logger.Warn("applying profile updates failed",
				zap.String("user_id", job.UserID),
				zap.Error(err),
			)
		}
	}

	if len(result.LongTermMemoryCandidates) > 0 {
		if err := p.config.Promoter.Run(ctx, job.UserID, result.LongTermMemoryCandidates); err != nil {
			p.logger.Warn("promotion sweep failed",
				zap.String("user_id", job.UserID),
				zap.Error(err),
			)
		}
	}

	if len(result.SelfMemoryCandidates) > 0 {
		if err := p.config.Promoter.Run(ctx, memstore.SelfUserID, result.SelfMemoryCandidates); err != nil {
			p.logger.Warn("self promotion sweep failed",
				zap.Error(err),
			)
		}
	}

	p.logger.Info("write-back complete",
		zap.String("user_id", job.UserID),
	)
}
