package agent

import (
	"context"
	"sync"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/promotion"
)

// DefaultSweepSchedule is the cron expression for the periodic promotion
// sweep.
const DefaultSweepSchedule = "@hourly"

// Consolidator periodically re-runs the promotion sweep for every user seen
// since startup. Candidates buffered across requests can cross the repeat
// threshold between messages; the sweep promotes them without waiting for the
// user's next message, and prunes observations that aged out of the window.
type Consolidator struct {
	promoter *promotion.Engine
	schedule string
	logger   *zap.Logger

	cron *rcron.Cron

	mu     sync.Mutex
	owners map[string]bool
}

// NewConsolidator creates a Consolidator. An empty schedule defaults to
// DefaultSweepSchedule.
func NewConsolidator(promoter *promotion.Engine, schedule string, logger *zap.Logger) *Consolidator {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Consolidator{
		promoter: promoter,
		schedule: schedule,
		logger:   logger,
		owners:   map[string]bool{memstore.SelfUserID: true},
	}
}

// Track registers an owner for the periodic sweep.
func (c *Consolidator) Track(owner string) {
	c.mu.Lock()
	c.owners[owner] = true
	c.mu.Unlock()
}

// Start schedules the sweep and begins running it.
func (c *Consolidator) Start() error {
	c.cron = rcron.New()

	if _, err := c.cron.AddFunc(c.schedule, c.Sweep); err != nil {
		return err
	}

	c.cron.Start()
	c.logger.Info("consolidation sweep scheduled", zap.String("schedule", c.schedule))

	return nil
}

// Sweep runs one promotion pass for every tracked owner. Runs detached from
// any request; per-owner failures are logged and do not block the rest.
func (c *Consolidator) Sweep() {
	c.mu.Lock()
	owners := make([]string, 0, len(c.owners))
	for owner := range c.owners {
		owners = append(owners, owner)
	}
	c.mu.Unlock()

	ctx := context.Background()
	for _, owner := range owners {
		if err := c.promoter.Run(ctx, owner, nil); err != nil {
			c.logger.Warn("consolidation sweep failed for owner",
				zap.String("owner", owner),
				zap.Error(err))
		}
	}

	c.logger.Debug("consolidation sweep complete", zap.Int("owners", len(owners)))
}

// Stop halts the schedule and waits for a running sweep to finish.
func (c *Consolidator) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.logger.Info("consolidation sweep stopped")
}
