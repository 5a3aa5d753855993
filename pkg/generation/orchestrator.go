package generation

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
)

const (
	// DefaultMaxRetries bounds generation attempts when rate limited.
	DefaultMaxRetries = 5

	// DefaultBaseWait is the backoff base: wait = base * 2^attempt + jitter.
	DefaultBaseWait = time.Second

	// maxJitter bounds the random component added to each backoff wait.
	maxJitter = 500 * time.Millisecond
)

// Config holds tuning for the Orchestrator's retry policy.
type Config struct {
	// MaxRetries bounds total attempts. Defaults to DefaultMaxRetries.
	MaxRetries int

	// BaseWait is the exponential backoff base. Defaults to DefaultBaseWait.
	BaseWait time.Duration
}

// Orchestrator performs exactly one logical generation per inbound message.
// Rate limiting is the only error worth retrying; everything else, including
// unparsable output, becomes the fixed fallback.
type Orchestrator struct {
	service    Service
	logger     *zap.Logger
	maxRetries int
	baseWait   time.Duration

	// jitter is swappable in tests.
	jitter func() time.Duration
}

// NewOrchestrator creates an Orchestrator over the given service.
func NewOrchestrator(service Service, c Config, logger *zap.Logger) *Orchestrator {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	baseWait := c.BaseWait
	if baseWait <= 0 {
		baseWait = DefaultBaseWait
	}

	return &Orchestrator{
		service:    service,
		logger:     logger,
		maxRetries: maxRetries,
		baseWait:   baseWait,
		jitter: func() time.Duration {
			return rand.N(maxJitter)
		},
	}
}

// Generate calls the generation service with the bundle's projection and
// returns its parsed result. Never returns an error: rate limiting retries up
// to MaxRetries attempts with exponential backoff, and every other failure
// path yields the fixed fallback.
func (o *Orchestrator) Generate(ctx context.Context, req bundle.Request, b *bundle.Bundle) *Result {
	data, err := encodePayload(req, b)
	if err != nil {
		o.logger.Error("encoding generation payload failed", zap.Error(err))
		return Fallback()
	}

	for attempt := 0; attempt < o.maxRetries; attempt++ {
		raw, err := o.service.Generate(ctx, data)
		if err == nil {
			result, perr := ParseResult(raw)
			if perr != nil {
				o.logger.Warn("malformed generation output, substituting fallback",
					zap.String("user_id", req.UserID),
					zap.Error(perr))
				return Fallback()
			}
			return result
		}

		if !errors.Is(err, ErrRateLimited) {
			o.logger.Warn("generation failed, substituting fallback",
				zap.String("user_id", req.UserID),
				zap.Error(err))
			return Fallback()
		}

		if attempt == o.maxRetries-1 {
			break
		}

		wait := o.backoff(attempt)
		o.logger.Info("generation rate limited, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			o.logger.Warn("generation cancelled during backoff", zap.Error(ctx.Err()))
			return Fallback()
		case <-time.After(wait):
		}
	}

	o.logger.Warn("generation retries exhausted, substituting fallback",
		zap.String("user_id", req.UserID),
		zap.Int("attempts", o.maxRetries))

	return Fallback()
}

// backoff computes base * 2^attempt plus bounded random jitter.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	return o.baseWait*(1<<attempt) + o.jitter()
}
