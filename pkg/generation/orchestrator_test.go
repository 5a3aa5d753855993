package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
)

type scriptedService struct {
	outputs []scriptedCall
	calls   int
}

type scriptedCall struct {
	raw []byte
	err error
}

func (s *scriptedService) Generate(ctx context.Context, payload []byte) ([]byte, error) {
	call := s.outputs[len(s.outputs)-1]
	if s.calls < len(s.outputs) {
		call = s.outputs[s.calls]
	}
	s.calls++
	return call.raw, call.err
}

func (s *scriptedService) Close() error { return nil }

func newTestOrchestrator(service Service, maxRetries int) *Orchestrator {
	o := NewOrchestrator(service, Config{MaxRetries: maxRetries, BaseWait: time.Millisecond}, zap.NewNop())
	o.jitter = func() time.Duration { return 0 }
	return o
}

func testRequest() (bundle.Request, *bundle.Bundle) {
	return bundle.Request{UserID: "u1", DisplayName: "Riley", Message: "hello"}, &bundle.Bundle{}
}

func TestGenerateReturnsParsedResult(t *testing.T) {
	service := &scriptedService{outputs: []scriptedCall{
		{raw: []byte(`{"reply": "hey there", "conversation_summary": "greeted each other"}`)},
	}}
	o := newTestOrchestrator(service, 5)

	req, b := testRequest()
	result := o.Generate(context.Background(), req, b)

	if result.Reply != "hey there" {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if result.ConversationSummary != "greeted each other" {
		t.Fatalf("unexpected summary: %q", result.ConversationSummary)
	}
	if service.calls != 1 {
		t.Fatalf("expected 1 call, got %d", service.calls)
	}
}

func TestGenerateRetriesExactlyMaxTimesWhenRateLimited(t *testing.T) {
	service := &scriptedService{outputs: []scriptedCall{
		{err: fmt.Errorf("%w: status 429", ErrRateLimited)},
	}}
	o := newTestOrchestrator(service, 5)

	req, b := testRequest()
	result := o.Generate(context.Background(), req, b)

	if service.calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", service.calls)
	}
	if !result.IsFallback() {
		t.Fatalf("expected fallback, got %q", result.Reply)
	}
}

func TestGenerateDoesNotRetryOtherErrors(t *testing.T) {
	service := &scriptedService{outputs: []scriptedCall{
		{err: errors.New("boom")},
	}}
	o := newTestOrchestrator(service, 5)

	req, b := testRequest()
	result := o.Generate(context.Background(), req, b)

	if service.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", service.calls)
	}
	if !result.IsFallback() {
		t.Fatalf("expected fallback, got %q", result.Reply)
	}
}

func TestGenerateRecoversAfterRateLimit(t *testing.T) {
	service := &scriptedService{outputs: []scriptedCall{
		{err: ErrRateLimited},
		{err: ErrRateLimited},
		{raw: []byte(`{"reply": "finally"}`)},
	}}
	o := newTestOrchestrator(service, 5)

	req, b := testRequest()
	result := o.Generate(context.Background(), req, b)

	if result.Reply != "finally" {
		t.Fatalf("expected recovery, got %q", result.Reply)
	}
	if service.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", service.calls)
	}
}

func TestGenerateSubstitutesFallbackForMalformedOutput(t *testing.T) {
	cases := [][]byte{
		[]byte("not json at all"),
		[]byte(`{"reply": ""}`),
		[]byte(`{"no_reply_field": true}`),
		[]byte(`{"reply": "ok", "surprise": 1}`),
		[]byte(`{"reply": "ok"} trailing`),
	}

	for _, raw := range cases {
		service := &scriptedService{outputs: []scriptedCall{{raw: raw}}}
		o := newTestOrchestrator(service, 5)

		req, b := testRequest()
		result := o.Generate(context.Background(), req, b)

		if !result.IsFallback() {
			t.Fatalf("expected fallback for %q, got %q", raw, result.Reply)
		}
		if result.HasMemoryWork() {
			t.Fatalf("fallback must carry no memory work for %q", raw)
		}
		if service.calls != 1 {
			t.Fatalf("malformed output must not retry, got %d calls", service.calls)
		}
	}
}

func TestBackoffDoubles(t *testing.T) {
	o := newTestOrchestrator(&scriptedService{outputs: []scriptedCall{{}}}, 5)
	o.baseWait = 100 * time.Millisecond

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := o.backoff(attempt); got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestParseResultRoundsTrip(t *testing.T) {
	raw := []byte(`{
		"reply": "sure thing",
		"user_field_updates": {"pronouns": "they/them"},
		"long_term_memory_candidates": ["likes tacos"],
		"self_memory_candidates": ["keeps answers short"]
	}`)

	result, err := ParseResult(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !result.HasMemoryWork() {
		t.Fatal("expected memory work")
	}
	if result.UserFieldUpdates["pronouns"] != "they/them" {
		t.Fatalf("unexpected updates: %+v", result.UserFieldUpdates)
	}
}
