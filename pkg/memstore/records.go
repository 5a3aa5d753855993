package memstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Property names shared by the typed records below.
const (
	propUserID            = "user_id"
	propDisplayName       = "display_name"
	propPronouns          = "pronouns"
	propRole              = "role"
	propRelationshipNotes = "relationship_notes"
	propInteractionCount  = "interaction_count"
	propMemory            = "memory"
	propMemoryText        = "memory_text"
	propReinforcedCount   = "reinforced_count"
	propCreatedAt         = "created_at"
	propSummary           = "summary"
	propFactText          = "fact_text"
	propObservedAt        = "observed_at"
	propDedupKey          = "dedup_key"
)

// UserProfile is the one-per-user profile record. The Memory list is
// persisted as a JSON-encoded ordered list of strings in a single text
// property; EncodeMemoryList/DecodeMemoryList keep that symmetric.
type UserProfile struct {
	UserID            string   `json:"user_id"`
	DisplayName       string   `json:"display_name"`
	Pronouns          string   `json:"pronouns,omitempty"`
	Role              string   `json:"role,omitempty"`
	RelationshipNotes string   `json:"relationship_notes,omitempty"`
	InteractionCount  int      `json:"interaction_count"`
	Memory            []string `json:"memory"`
}

// LongTermMemory is a promoted fact. MemoryText is immutable once created;
// only ReinforcedCount mutates.
type LongTermMemory struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	MemoryText      string    `json:"memory_text"`
	ReinforcedCount int       `json:"reinforced_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// RecentConversation is one summarized exchange in the append-only rolling log.
type RecentConversation struct {
	UserID    string
	Summary   string
	CreatedAt time.Time
}

// CandidateObservation is a buffered candidate-fact sighting. Observations
// accumulate across requests so the repetition threshold is meaningful, and
// are pruned once they age out of the promotion window.
type CandidateObservation struct {
	ID         string
	UserID     string
	FactText   string
	ObservedAt time.Time
}

// EncodeMemoryList encodes an ordered list of promoted fact strings into the
// single-text-property layout used by the store. A nil list encodes as the
// empty list.
func EncodeMemoryList(memory []string) (string, error) {
	if memory == nil {
		memory = []string{}
	}
	data, err := json.Marshal(memory)
	if err != nil {
		return "", fmt.Errorf("encoding memory list: %w", err)
	}
	return string(data), nil
}

// DecodeMemoryList decodes the stored memory-list text. Empty input decodes
// to an empty list.
func DecodeMemoryList(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var memory []string
	if err := json.Unmarshal([]byte(raw), &memory); err != nil {
		return nil, fmt.Errorf("decoding memory list: %w", err)
	}
	if memory == nil {
		memory = []string{}
	}
	return memory, nil
}

func profileFromObject(o *Object) (*UserProfile, error) {
	memory, err := DecodeMemoryList(o.String(propMemory))
	if err != nil {
		return nil, err
	}

	return &UserProfile{
		UserID:            o.String(propUserID),
		DisplayName:       o.String(propDisplayName),
		Pronouns:          o.String(propPronouns),
		Role:              o.String(propRole),
		RelationshipNotes: o.String(propRelationshipNotes),
		InteractionCount:  o.Int(propInteractionCount),
		Memory:            memory,
	}, nil
}

func (p *UserProfile) props() (map[string]any, error) {
	encoded, err := EncodeMemoryList(p.Memory)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		propUserID:            p.UserID,
		propDisplayName:       p.DisplayName,
		propPronouns:          p.Pronouns,
		propRole:              p.Role,
		propRelationshipNotes: p.RelationshipNotes,
		propInteractionCount:  p.InteractionCount,
		propMemory:            encoded,
	}, nil
}

func longTermFromObject(o *Object) LongTermMemory {
	created := o.CreatedAt
	if raw := o.String(propCreatedAt); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			created = t
		}
	}

	return LongTermMemory{
		ID:              o.ID,
		UserID:          o.String(propUserID),
		MemoryText:      o.String(propMemoryText),
		ReinforcedCount: o.Int(propReinforcedCount),
		CreatedAt:       created,
	}
}

func conversationFromObject(o *Object) RecentConversation {
	created := o.CreatedAt
	if raw := o.String(propCreatedAt); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			created = t
		}
	}

	return RecentConversation{
		UserID:    o.String(propUserID),
		Summary:   o.String(propSummary),
		CreatedAt: created,
	}
}

func observationFromObject(o *Object) (CandidateObservation, error) {
	obs := CandidateObservation{
		ID:       o.ID,
		UserID:   o.String(propUserID),
		FactText: o.String(propFactText),
	}

	raw := o.String(propObservedAt)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return obs, fmt.Errorf("candidate %q: unparsable observed_at %q: %w", obs.FactText, raw, err)
	}
	obs.ObservedAt = t

	return obs, nil
}
