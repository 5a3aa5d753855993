package generation

import (
	"context"
	"errors"
)

// ErrRateLimited indicates the generation service refused the call due to
// rate limiting. The only error the orchestrator retries on.
var ErrRateLimited = errors.New("generation service rate limited")

// Service is a client for the external generation endpoint. Generate takes
// the serialized context payload and returns the service's raw text output.
type Service interface {
	Generate(ctx context.Context, payload []byte) ([]byte, error)

	// Close releases any resources held by the service client.
	Close() error
}
