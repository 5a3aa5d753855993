package dispatch_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/dispatch"
	"github.com/ashenvale/recall/pkg/eventstream"
	"github.com/ashenvale/recall/pkg/eventstream/nop"
	"github.com/ashenvale/recall/pkg/generation"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/memstore/inmemory"
	"github.com/ashenvale/recall/pkg/promotion"
	testutils "github.com/ashenvale/recall/pkg/utils/test"
	"github.com/ashenvale/recall/pkg/vector"
)

// mockOutbound records sends and optionally fails them.
type mockOutbound struct {
	sent     []string
	channels []string
	fail     bool
}

func (m *mockOutbound) Send(_ context.Context, channelID, text string) error {
	if m.fail {
		return fmt.Errorf("mock send failure")
	}
	m.channels = append(m.channels, channelID)
	m.sent = append(m.sent, text)
	return nil
}

// capturePublisher records published events.
type capturePublisher struct {
	events []*eventstream.MemoryEvent
}

func (c *capturePublisher) Publish(_ context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

var _ = Describe("Dispatcher", func() {
	var (
		store    *memstore.Client
		outbound *mockOutbound
		events   *capturePublisher
		pool     *dispatch.Pool
		d        *dispatch.Dispatcher
		logger   *zap.Logger
		ctx      context.Context
		req      bundle.Request
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		store = memstore.NewClient(inmemory.NewDriver(), logger)
		outbound = &mockOutbound{}
		events = &capturePublisher{}
		ctx = context.Background()

		adapter := vector.NewAdapter(testutils.NewMockVectorDriver(), testutils.NewMockEmbedder(), vector.AdapterConfig{}, logger)
		promoter := promotion.NewEngine(store, adapter, nop.NewPublisher(), promotion.Config{RepeatThreshold: 1}, logger)

		var err error
		pool, err = dispatch.NewPool(&dispatch.PoolConfig{
			Store:    store,
			Promoter: promoter,
			Logger:   logger,
		})
		Expect(err).NotTo(HaveOccurred())

		d = dispatch.NewDispatcher(outbound, pool, events, logger)

		req = bundle.Request{
			UserID:      "u1",
			DisplayName: "Riley",
			ChannelID:   "c1",
			Message:     "what should I cook",
		}

		_, err = store.EnsureProfile(ctx, "u1", "Riley")
		Expect(err).NotTo(HaveOccurred())
	})

	It("wraps the reply in quote framing when the citation is missing", func() {
		result := &generation.Result{Reply: "Tacos, obviously."}

		Expect(d.Dispatch(ctx, req, nil, result)).To(Succeed())
		pool.Close()

		Expect(outbound.sent).To(HaveLen(1))
		Expect(outbound.channels).To(Equal([]string{"c1"}))
		Expect(outbound.sent[0]).To(Equal("> Riley: what should I cook\nTacos, obviously."))
	})

	It("sends an already-framed reply verbatim", func() {
		framed := "> Riley: what should I cook\nTacos, obviously."
		result := &generation.Result{Reply: framed}

		Expect(d.Dispatch(ctx, req, nil, result)).To(Succeed())
		pool.Close()

		Expect(outbound.sent).To(Equal([]string{framed}))
	})

	It("enqueues write-back work after the reply is sent", func() {
		result := &generation.Result{
			Reply:                    "Tacos.",
			ConversationSummary:      "meal planning",
			UserFieldUpdates:         map[string]string{"pronouns": "they/them"},
			LongTermMemoryCandidates: []string{"likes cooking"},
		}

		Expect(d.Dispatch(ctx, req, nil, result)).To(Succeed())
		pool.Close()

		convos, err := store.RecentConversations(ctx, "u1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(convos).To(HaveLen(1))
		Expect(convos[0].Summary).To(Equal("meal planning"))

		profile, err := store.Profile(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.Pronouns).To(Equal("they/them"))
		Expect(profile.InteractionCount).To(Equal(1))
		Expect(profile.Memory).To(ContainElement("likes cooking"))
	})

	It("routes self memory candidates to the agent's own collection", func() {
		result := &generation.Result{
			Reply:                "Noted.",
			SelfMemoryCandidates: []string{"should ask more questions"},
		}

		Expect(d.Dispatch(ctx, req, nil, result)).To(Succeed())
		pool.Close()

		memories, err := store.LongTermMemories(ctx, memstore.SelfUserID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(memories).To(HaveLen(1))
		Expect(memories[0].MemoryText).To(Equal("should ask more questions"))
	})

	It("bumps the interaction counter even when the result carries no memory work", func() {
		result := &generation.Result{Reply: "Hello again."}

		Expect(d.Dispatch(ctx, req, nil, result)).To(Succeed())
		pool.Close()

		profile, err := store.Profile(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.InteractionCount).To(Equal(1))

		convos, err := store.RecentConversations(ctx, "u1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(convos).To(BeEmpty())
	})

	It("writes nothing back for a fallback reply", func() {
		result := generation.Fallback()

		Expect(d.Dispatch(ctx, req, nil, result)).To(Succeed())
		pool.Close()

		Expect(outbound.sent).To(HaveLen(1))

		profile, err := store.Profile(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.InteractionCount).To(BeZero())
	})

	It("returns the send error and skips write-back", func() {
		outbound.fail = true
		result := &generation.Result{
			Reply:               "Tacos.",
			ConversationSummary: "meal planning",
		}

		Expect(d.Dispatch(ctx, req, nil, result)).NotTo(Succeed())
		pool.Close()

		convos, err := store.RecentConversations(ctx, "u1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(convos).To(BeEmpty())
		Expect(events.events).To(BeEmpty())
	})

	It("publishes a dispatch event carrying degradation and fallback state", func() {
		result := generation.Fallback()

		Expect(d.Dispatch(ctx, req, []string{"history"}, result)).To(Succeed())
		pool.Close()

		Expect(events.events).To(HaveLen(1))
		Expect(events.events[0].EventType).To(Equal(eventstream.EventTypeReplyDispatched))
		Expect(events.events[0].UserID).To(Equal("u1"))
		Expect(events.events[0].Degraded).To(ConsistOf("history"))
		Expect(events.events[0].Fallback).To(BeTrue())
	})
})

var _ = Describe("FrameReply", func() {
	It("leaves the reply alone when there is nothing to quote", func() {
		Expect(dispatch.FrameReply("hi", "Riley", "")).To(Equal("hi"))
	})

	It("truncates long originals in the quote line", func() {
		long := ""
		for range 40 {
			long += "tacos "
		}

		framed := dispatch.FrameReply("ok", "Riley", long)
		lines := len(framed)
		Expect(lines).To(BeNumerically("<", len(long)+10))
		Expect(framed).To(HavePrefix("> Riley: "))
		Expect(framed).To(HaveSuffix("\nok"))
	})
})
