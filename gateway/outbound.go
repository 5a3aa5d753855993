package gateway

import (
	"context"
	"time"

	"github.com/ashenvale/recall/pkg/bundle"
)

// Outbound delivers dispatched replies into the channel transcript. It is the
// gateway's half of the dispatcher's outbound channel, split from the Server
// so the dispatcher can be wired before the HTTP surface exists.
type Outbound struct {
	log       *ChannelLog
	agentID   string
	agentName string
}

// NewOutbound creates an Outbound writing to the given channel log.
func NewOutbound(log *ChannelLog, agentID, agentName string) *Outbound {
	return &Outbound{
		log:       log,
		agentID:   agentID,
		agentName: agentName,
	}
}

// Send records the reply in the channel transcript.
func (o *Outbound) Send(_ context.Context, channelID, text string) error {
	o.log.Record(channelID, bundle.ChannelMessage{
		AuthorID:   o.agentID,
		AuthorName: o.agentName,
		Content:    text,
		Timestamp:  time.Now().UTC(),
	})
	return nil
}
