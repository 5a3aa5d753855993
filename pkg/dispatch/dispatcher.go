// Package dispatch delivers generated replies to the chat platform and hands
// the resulting memory work to a detached worker pool.
//
// The reply always goes out first. Memory writes run on background workers
// with their own context, so a cancelled or timed-out inbound request never
// aborts them and the user never waits on them.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/eventstream"
	"github.com/ashenvale/recall/pkg/generation"
	"github.com/ashenvale/recall/pkg/utils"
)

// quoteMaxLen caps how much of the original message is echoed in the quote
// line.
const quoteMaxLen = 180

// Outbound sends a reply text to a channel on the chat platform.
type Outbound interface {
	Send(ctx context.Context, channelID, text string) error
}

// Dispatcher sends replies and enqueues the write-back work they carry.
type Dispatcher struct {
	outbound Outbound
	pool     *Pool
	events   eventstream.Publisher
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher over the given outbound channel and
// write-back pool.
func NewDispatcher(outbound Outbound, pool *Pool, events eventstream.Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		outbound: outbound,
		pool:     pool,
		events:   events,
		logger:   logger,
	}
}

// Dispatch sends the reply exactly once, wrapping it in quote framing when the
// generated text does not already cite the original message. After a
// successful send the result's memory work is enqueued for detached
// write-back; a send failure is returned and produces no write-back.
func (d *Dispatcher) Dispatch(ctx context.Context, req bundle.Request, degraded []string, result *generation.Result) error {
	text := FrameReply(result.Reply, req.DisplayName, req.Message)

	if err := d.outbound.Send(ctx, req.ChannelID, text); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}

	if err := d.events.Publish(ctx, eventstream.NewReplyDispatched(req.UserID, degraded, result.IsFallback())); err != nil {
		d.logger.Warn("publishing dispatch event failed",
			zap.String("user_id", req.UserID),
			zap.Error(err))
	}

	if result.IsFallback() {
		// A fallback reply leaves no trace: no counter bump, no memory work.
		return nil
	}

	if !d.pool.Enqueue(Job{UserID: req.UserID, Result: result}) {
		d.logger.Warn("write-back dropped, queue full",
			zap.String("user_id", req.UserID))
	}

	return nil
}

// FrameReply wraps reply in "quote original, then reply" framing unless the
// reply already quotes the original message with attribution.
func FrameReply(reply, authorName, original string) string {
	original = strings.TrimSpace(original)
	if original == "" {
		return reply
	}

	quoted := utils.Truncate(original, quoteMaxLen)
	if alreadyFramed(reply, authorName, quoted) {
		return reply
	}

	return fmt.Sprintf("> %s: %s\n%s", authorName, quoted, reply)
}

// alreadyFramed reports whether any quote line in reply cites the original
// message with attribution.
func alreadyFramed(reply, authorName, quoted string) bool {
	for _, line := range strings.Split(reply, "\n") {
		if !strings.HasPrefix(line, ">") {
			continue
		}
		if strings.Contains(line, authorName) && strings.Contains(line, quoted) {
			return true
		}
	}
	return false
}
