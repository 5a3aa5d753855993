// Package generation orchestrates calls to the external response generation
// service: one logical generation per inbound message, bounded retry on rate
// limiting, and a fixed fallback so callers never see a raw service error.
package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FallbackReply is the fixed user-visible reply substituted whenever the
// generation service fails or returns something unusable.
const FallbackReply = "My thoughts are tangled at the moment. Give me a little while and ask me again."

// Result is the structured output of one generation call. Reply is required;
// everything else is optional memory work for the write-back path.
type Result struct {
	Reply                    string            `json:"reply"`
	ConversationSummary      string            `json:"conversation_summary,omitempty"`
	UserFieldUpdates         map[string]string `json:"user_field_updates,omitempty"`
	LongTermMemoryCandidates []string          `json:"long_term_memory_candidates,omitempty"`
	SelfMemoryCandidates     []string          `json:"self_memory_candidates,omitempty"`
}

// Fallback returns the fixed fallback result: the apology reply and no memory
// work.
func Fallback() *Result {
	return &Result{Reply: FallbackReply}
}

// IsFallback reports whether the result is the fixed fallback.
func (r *Result) IsFallback() bool {
	return r.Reply == FallbackReply
}

// HasMemoryWork reports whether the result carries anything for the memory
// write-back path.
func (r *Result) HasMemoryWork() bool {
	return r.ConversationSummary != "" ||
		len(r.UserFieldUpdates) > 0 ||
		len(r.LongTermMemoryCandidates) > 0 ||
		len(r.SelfMemoryCandidates) > 0
}

// ParseResult decodes the service's raw output strictly against the Result
// contract. Unknown fields, trailing content, and a missing reply are all
// rejected; a malformed payload must never travel downstream.
func ParseResult(raw []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var result Result
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding generation output: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing content after generation output")
	}
	if strings.TrimSpace(result.Reply) == "" {
		return nil, fmt.Errorf("generation output missing required reply")
	}

	return &result, nil
}
