package agent_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/agent"
	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/dispatch"
	"github.com/ashenvale/recall/pkg/eventstream/nop"
	"github.com/ashenvale/recall/pkg/generation"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/memstore/inmemory"
	"github.com/ashenvale/recall/pkg/promotion"
	testutils "github.com/ashenvale/recall/pkg/utils/test"
	"github.com/ashenvale/recall/pkg/vector"
)

func TestAgent(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Agent Suite")
}

// fixedService returns a canned generation output or a fixed error.
type fixedService struct {
	output string
	err    error
	calls  int
}

func (f *fixedService) Generate(_ context.Context, _ []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.output), nil
}

func (f *fixedService) Close() error { return nil }

// fixedOutbound records sends.
type fixedOutbound struct {
	sent []string
	fail bool
}

func (f *fixedOutbound) Send(_ context.Context, _, text string) error {
	if f.fail {
		return fmt.Errorf("send failure")
	}
	f.sent = append(f.sent, text)
	return nil
}

var _ = Describe("Agent", func() {
	var (
		store    *memstore.Client
		service  *fixedService
		outbound *fixedOutbound
		pool     *dispatch.Pool
		a        *agent.Agent
		logger   *zap.Logger
		ctx      context.Context
		req      bundle.Request
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		store = memstore.NewClient(inmemory.NewDriver(), logger)
		service = &fixedService{}
		outbound = &fixedOutbound{}
		ctx = context.Background()

		adapter := vector.NewAdapter(testutils.NewMockVectorDriver(), testutils.NewMockEmbedder(), vector.AdapterConfig{}, logger)
		assembler := bundle.NewAssembler(store, adapter, testutils.NewMockHistory(), memstore.SelfUserID, bundle.Config{}, logger)
		orchestrator := generation.NewOrchestrator(service, generation.Config{BaseWait: time.Millisecond}, logger)
		promoter := promotion.NewEngine(store, adapter, nop.NewPublisher(), promotion.Config{RepeatThreshold: 1}, logger)

		var err error
		pool, err = dispatch.NewPool(&dispatch.PoolConfig{
			Store:    store,
			Promoter: promoter,
			Logger:   logger,
		})
		Expect(err).NotTo(HaveOccurred())

		dispatcher := dispatch.NewDispatcher(outbound, pool, nop.NewPublisher(), logger)
		a = agent.NewAgent(assembler, orchestrator, dispatcher, nil, logger)

		req = bundle.Request{
			UserID:      "u1",
			DisplayName: "Riley",
			ChannelID:   "c1",
			Message:     "hello there",
		}
	})

	It("handles a message end to end", func() {
		service.output = `{"reply":"Hello, Riley.","conversation_summary":"greeting"}`

		Expect(a.HandleMessage(ctx, req)).To(Succeed())
		pool.Close()

		Expect(service.calls).To(Equal(1))
		Expect(outbound.sent).To(HaveLen(1))
		Expect(outbound.sent[0]).To(Equal("> Riley: hello there\nHello, Riley."))

		profile, err := store.Profile(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.DisplayName).To(Equal("Riley"))
		Expect(profile.InteractionCount).To(Equal(1))

		convos, err := store.RecentConversations(ctx, "u1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(convos).To(HaveLen(1))
	})

	It("delivers the fallback when the generation service fails", func() {
		service.err = fmt.Errorf("upstream exploded")

		Expect(a.HandleMessage(ctx, req)).To(Succeed())
		pool.Close()

		Expect(outbound.sent).To(HaveLen(1))
		Expect(outbound.sent[0]).To(ContainSubstring(generation.FallbackReply))

		// Fallback replies leave no trace beyond the profile created during
		// assembly.
		profile, err := store.Profile(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.InteractionCount).To(BeZero())
	})

	It("returns the error when the reply cannot be sent", func() {
		service.output = `{"reply":"Hello."}`
		outbound.fail = true

		Expect(a.HandleMessage(ctx, req)).NotTo(Succeed())
		pool.Close()
	})
})

var _ = Describe("Consolidator", func() {
	It("promotes buffered candidates for tracked owners", func() {
		logger := zap.NewNop()
		store := memstore.NewClient(inmemory.NewDriver(), logger)
		adapter := vector.NewAdapter(testutils.NewMockVectorDriver(), testutils.NewMockEmbedder(), vector.AdapterConfig{}, logger)
		promoter := promotion.NewEngine(store, adapter, nop.NewPublisher(), promotion.Config{RepeatThreshold: 2}, logger)
		ctx := context.Background()

		_, err := store.EnsureProfile(ctx, "u1", "Riley")
		Expect(err).NotTo(HaveOccurred())
		for range 2 {
			Expect(store.RecordObservation(ctx, "u1", "likes tacos", time.Now().UTC())).To(Succeed())
		}

		c := agent.NewConsolidator(promoter, "", logger)
		c.Track("u1")
		c.Sweep()

		memories, err := store.LongTermMemories(ctx, "u1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(memories).To(HaveLen(1))
		Expect(memories[0].MemoryText).To(Equal("likes tacos"))
	})

	It("prunes aged observations during the sweep", func() {
		logger := zap.NewNop()
		store := memstore.NewClient(inmemory.NewDriver(), logger)
		adapter := vector.NewAdapter(testutils.NewMockVectorDriver(), testutils.NewMockEmbedder(), vector.AdapterConfig{}, logger)
		promoter := promotion.NewEngine(store, adapter, nop.NewPublisher(), promotion.Config{}, logger)
		ctx := context.Background()

		old := time.Now().UTC().Add(-11 * 24 * time.Hour)
		Expect(store.RecordObservation(ctx, "u1", "stale fact", old)).To(Succeed())

		c := agent.NewConsolidator(promoter, "", logger)
		c.Track("u1")
		c.Sweep()

		remaining, err := store.Observations(ctx, "u1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(remaining).To(BeEmpty())
	})
})
