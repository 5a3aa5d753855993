package testutils

import (
	"context"
	"fmt"

	"github.com/ashenvale/recall/pkg/bundle"
)

// MockHistory is a scripted channel history, newest first.
type MockHistory struct {
	Messages map[string][]bundle.ChannelMessage

	// FailAll causes Recent to return an error
	FailAll bool

	// Block causes Recent to wait for ctx cancellation before returning
	Block bool
}

func NewMockHistory() *MockHistory {
	return &MockHistory{
		Messages: make(map[string][]bundle.ChannelMessage),
	}
}

func (m *MockHistory) Recent(ctx context.Context, channelID string, limit int) ([]bundle.ChannelMessage, error) {
	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.FailAll {
		return nil, fmt.Errorf("mock history failure")
	}

	messages := m.Messages[channelID]
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}
