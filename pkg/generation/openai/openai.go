// Package openai implements pkg/generation's Service against an
// OpenAI-compatible chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashenvale/recall/pkg/generation"
)

const (
	// DefaultBaseURL is the default API URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultMaxTokens bounds the generated completion length.
	DefaultMaxTokens = 1024
)

// systemPrompt pins the persona and the output contract. The service must
// answer with a single JSON object; anything else is rejected upstream.
const systemPrompt = `You are %s, a warm, present conversational companion with a long memory.
Use the provided context (profile, memories, recent conversations, channel history) to answer in character.
Respond with a single JSON object and nothing else, using exactly these fields:
  "reply" (required): your in-character answer to the user's message.
  "conversation_summary" (optional): one sentence summarizing this exchange.
  "user_field_updates" (optional): object of profile fields you learned (display_name, pronouns, role, relationship_notes).
  "long_term_memory_candidates" (optional): array of short durable facts about the user worth remembering.
  "self_memory_candidates" (optional): array of short durable facts about yourself worth remembering.
Omit optional fields you have nothing for.`

// Service wraps an OpenAI-compatible chat-completions API.
type Service struct {
	baseURL    string
	model      string
	apiKey     string
	agentName  string
	maxTokens  int
	httpClient *http.Client
}

// Config holds configuration for the chat-completions client.
type Config struct {
	// BaseURL is the API URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// AgentName is the persona name baked into the system prompt.
	AgentName string

	// MaxTokens bounds the completion. Defaults to DefaultMaxTokens if zero.
	MaxTokens int
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float32       `json:"temperature"`
	ResponseFormat responseFmt   `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewService creates a generation service client.
func NewService(c Config) (*Service, error) {
	if c.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	maxTokens := c.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	agentName := c.AgentName
	if agentName == "" {
		agentName = "Ash"
	}

	return &Service{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     c.Model,
		apiKey:    c.APIKey,
		agentName: agentName,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Generate sends the context payload and returns the model's raw output.
// A 429 from the service surfaces as generation.ErrRateLimited.
func (s *Service) Generate(ctx context.Context, payload []byte) ([]byte, error) {
	reqBody := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, s.agentName)},
			{Role: "user", Content: string(payload)},
		},
		MaxTokens:      s.maxTokens,
		Temperature:    0.7,
		ResponseFormat: responseFmt{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status 429", generation.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat completion failed: status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in chat response")
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("empty content in chat response")
	}

	return []byte(content), nil
}

// Close releases resources held by the service client.
func (s *Service) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

var _ generation.Service = (*Service)(nil)
