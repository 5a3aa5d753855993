package generation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashenvale/recall/pkg/bundle"
)

// payload is the projection of a context bundle sent to the generation
// service.
type payload struct {
	Message       string         `json:"message"`
	User          userContext    `json:"user"`
	Memories      []string       `json:"memories,omitempty"`
	SelfMemories  []string       `json:"self_memories,omitempty"`
	Conversations []string       `json:"recent_conversations,omitempty"`
	History       []historyLine  `json:"channel_history,omitempty"`
	Related       []string       `json:"related_memories,omitempty"`
	Degraded      []string       `json:"degraded_sources,omitempty"`
}

type userContext struct {
	UserID            string   `json:"user_id"`
	DisplayName       string   `json:"display_name,omitempty"`
	Pronouns          string   `json:"pronouns,omitempty"`
	Role              string   `json:"role,omitempty"`
	RelationshipNotes string   `json:"relationship_notes,omitempty"`
	InteractionCount  int      `json:"interaction_count,omitempty"`
	Memory            []string `json:"memory,omitempty"`
}

type historyLine struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

func encodePayload(req bundle.Request, b *bundle.Bundle) ([]byte, error) {
	p := payload{
		Message:  req.Message,
		Degraded: b.Degraded,
		User:     userContext{UserID: req.UserID, DisplayName: req.DisplayName},
	}

	if b.Profile != nil {
		p.User = userContext{
			UserID:            b.Profile.UserID,
			DisplayName:       b.Profile.DisplayName,
			Pronouns:          b.Profile.Pronouns,
			Role:              b.Profile.Role,
			RelationshipNotes: b.Profile.RelationshipNotes,
			InteractionCount:  b.Profile.InteractionCount,
			Memory:            b.Profile.Memory,
		}
	}

	for _, hit := range b.Memories {
		p.Memories = append(p.Memories, hit.Text)
	}
	for _, mem := range b.SelfMemories {
		p.SelfMemories = append(p.SelfMemories, mem.MemoryText)
	}
	for _, convo := range b.Conversations {
		p.Conversations = append(p.Conversations, convo.Summary)
	}
	for _, msg := range b.History {
		p.History = append(p.History, historyLine{
			Author:    msg.AuthorName,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	for _, hit := range b.Related {
		p.Related = append(p.Related, hit.Text)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding generation payload: %w", err)
	}

	return data, nil
}
