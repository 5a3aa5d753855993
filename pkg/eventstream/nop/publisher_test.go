package nop_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ashenvale/recall/pkg/eventstream"
	"github.com/ashenvale/recall/pkg/eventstream/nop"
)

func TestPublishNilEvent(t *testing.T) {
	p := nop.NewPublisher()
	if err := p.Publish(context.Background(), nil); !errors.Is(err, eventstream.ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestPublishAndClose(t *testing.T) {
	p := nop.NewPublisher()
	event := eventstream.NewReplyDispatched("u1", nil, false)
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
