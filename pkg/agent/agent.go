// Package agent ties the engine together: one inbound message becomes one
// assembled context bundle, one generation call, and one dispatched reply.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/dispatch"
	"github.com/ashenvale/recall/pkg/generation"
)

// Agent handles inbound messages end to end.
type Agent struct {
	assembler    *bundle.Assembler
	orchestrator *generation.Orchestrator
	dispatcher   *dispatch.Dispatcher
	consolidator *Consolidator
	logger       *zap.Logger
}

// NewAgent creates an Agent. The consolidator is optional; when set, every
// handled user is registered for the periodic promotion sweep.
func NewAgent(assembler *bundle.Assembler, orchestrator *generation.Orchestrator, dispatcher *dispatch.Dispatcher, consolidator *Consolidator, logger *zap.Logger) *Agent {
	return &Agent{
		assembler:    assembler,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		consolidator: consolidator,
		logger:       logger,
	}
}

// HandleMessage runs the full pipeline for one inbound message. The only
// error it can return is a failed reply send; everything upstream degrades to
// defaults or the fixed fallback instead of failing.
func (a *Agent) HandleMessage(ctx context.Context, req bundle.Request) error {
	start := time.Now()

	b := a.assembler.Assemble(ctx, req)
	result := a.orchestrator.Generate(ctx, req, b)

	if err := a.dispatcher.Dispatch(ctx, req, b.Degraded, result); err != nil {
		a.logger.Error("dispatch failed",
			zap.String("user_id", req.UserID),
			zap.String("channel_id", req.ChannelID),
			zap.Error(err))
		return err
	}

	if a.consolidator != nil {
		a.consolidator.Track(req.UserID)
	}

	a.logger.Info("message handled",
		zap.String("user_id", req.UserID),
		zap.Bool("fallback", result.IsFallback()),
		zap.Strings("degraded", b.Degraded),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}
