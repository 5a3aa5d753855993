package bundle_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/memstore/inmemory"
	testutils "github.com/ashenvale/recall/pkg/utils/test"
	"github.com/ashenvale/recall/pkg/vector"
)

func TestBundle(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bundle Suite")
}

const agentID = "_ash"

// failingDriver wraps a driver and fails reads on the named collections.
type failingDriver struct {
	memstore.Driver
	failOn map[string]bool
}

func (f *failingDriver) FetchOne(ctx context.Context, collection, field, value string) (*memstore.Object, error) {
	if f.failOn[collection] {
		return nil, fmt.Errorf("%w: injected", memstore.ErrUnavailable)
	}
	return f.Driver.FetchOne(ctx, collection, field, value)
}

func (f *failingDriver) FetchMany(ctx context.Context, collection, field, value string, limit int, newestFirst bool) ([]memstore.Object, error) {
	if f.failOn[collection] {
		return nil, fmt.Errorf("%w: injected", memstore.ErrUnavailable)
	}
	return f.Driver.FetchMany(ctx, collection, field, value, limit, newestFirst)
}

var _ = Describe("Assembler", func() {
	var (
		driver       *inmemory.Driver
		store        *memstore.Client
		vectorDriver *testutils.MockVectorDriver
		embedder     *testutils.MockEmbedder
		history      *testutils.MockHistory
		logger       *zap.Logger
		ctx          context.Context
	)

	newAssembler := func(s *memstore.Client, cfg bundle.Config) *bundle.Assembler {
		adapter := vector.NewAdapter(vectorDriver, embedder, vector.AdapterConfig{}, logger)
		return bundle.NewAssembler(s, adapter, history, agentID, cfg, logger)
	}

	BeforeEach(func() {
		logger = zap.NewNop()
		driver = inmemory.NewDriver()
		store = memstore.NewClient(driver, logger)
		vectorDriver = testutils.NewMockVectorDriver()
		embedder = testutils.NewMockEmbedder()
		history = testutils.NewMockHistory()
		ctx = context.Background()
	})

	It("assembles a full bundle when every source answers", func() {
		profile, err := store.EnsureProfile(ctx, "u1", "Riley")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile).NotTo(BeNil())

		_, err = store.InsertLongTermMemory(ctx, "u1", "likes tacos")
		Expect(err).NotTo(HaveOccurred())
		_, err = store.InsertLongTermMemory(ctx, agentID, "prefers short answers")
		Expect(err).NotTo(HaveOccurred())
		Expect(store.AppendConversation(ctx, "u1", "talked about dinner plans")).To(Succeed())

		history.Messages["c1"] = []bundle.ChannelMessage{
			{AuthorID: "u1", AuthorName: "Riley", Content: "what should I cook"},
		}
		vectorDriver.Hits = []vector.Hit{{Text: "likes tacos", Score: 0.92}}

		asm := newAssembler(store, bundle.Config{})
		b := asm.Assemble(ctx, bundle.Request{
			UserID:      "u1",
			DisplayName: "Riley",
			ChannelID:   "c1",
			Message:     "what should I cook",
		})

		Expect(b.IsDegraded()).To(BeFalse())
		Expect(b.Profile).NotTo(BeNil())
		Expect(b.Profile.DisplayName).To(Equal("Riley"))
		Expect(b.Memories).To(HaveLen(1))
		Expect(b.SelfMemories).To(HaveLen(1))
		Expect(b.Conversations).To(HaveLen(1))
		Expect(b.History).To(HaveLen(1))
		Expect(b.Related).To(HaveLen(1))
	})

	It("creates a profile on first contact", func() {
		asm := newAssembler(store, bundle.Config{})
		b := asm.Assemble(ctx, bundle.Request{UserID: "newcomer", DisplayName: "Sam", ChannelID: "c1"})

		Expect(b.Profile).NotTo(BeNil())
		Expect(b.Profile.DisplayName).To(Equal("Sam"))

		saved, err := store.Profile(ctx, "newcomer")
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.DisplayName).To(Equal("Sam"))
	})

	It("degrades instead of failing when a source errors", func() {
		flaky := &failingDriver{
			Driver: driver,
			failOn: map[string]bool{memstore.CollectionRecentConversation: true},
		}
		flakyStore := memstore.NewClient(flaky, logger)

		_, err := flakyStore.EnsureProfile(ctx, "u1", "Riley")
		Expect(err).NotTo(HaveOccurred())

		asm := newAssembler(flakyStore, bundle.Config{})
		b := asm.Assemble(ctx, bundle.Request{UserID: "u1", DisplayName: "Riley", ChannelID: "c1"})

		Expect(b.Degraded).To(ConsistOf(bundle.SourceConversations))
		Expect(b.Profile).NotTo(BeNil())
		Expect(b.Conversations).To(BeEmpty())
	})

	It("degrades the history source on timeout without stalling the rest", func() {
		history.Block = true

		asm := newAssembler(store, bundle.Config{FetchTimeout: 50 * time.Millisecond})

		start := time.Now()
		b := asm.Assemble(ctx, bundle.Request{UserID: "u1", DisplayName: "Riley", ChannelID: "c1"})
		elapsed := time.Since(start)

		Expect(b.Degraded).To(ContainElement(bundle.SourceHistory))
		Expect(b.History).To(BeEmpty())
		Expect(elapsed).To(BeNumerically("<", time.Second))
	})

	It("produces a bundle even when every source is down", func() {
		flaky := &failingDriver{
			Driver: driver,
			failOn: map[string]bool{
				memstore.CollectionUserProfile:        true,
				memstore.CollectionLongTermMemory:     true,
				memstore.CollectionRecentConversation: true,
			},
		}
		flakyStore := memstore.NewClient(flaky, logger)
		history.FailAll = true
		vectorDriver.FailSearch = true

		asm := newAssembler(flakyStore, bundle.Config{})
		b := asm.Assemble(ctx, bundle.Request{UserID: "u1", DisplayName: "Riley", ChannelID: "c1"})

		Expect(b).NotTo(BeNil())
		Expect(b.Degraded).To(ContainElements(
			bundle.SourceProfile,
			bundle.SourceConversations,
			bundle.SourceHistory,
		))
		Expect(b.Memories).To(BeEmpty())
		Expect(b.Related).To(BeEmpty())
	})

	Describe("history trimming", func() {
		It("excludes the agent's last reply and everything before it", func() {
			history.Messages["c1"] = []bundle.ChannelMessage{
				{AuthorID: "u1", Content: "newest"},
				{AuthorID: agentID, Content: "my last reply"},
				{AuthorID: "u1", Content: "older, already handled"},
				{AuthorID: "u2", Content: "oldest"},
			}

			asm := newAssembler(store, bundle.Config{})
			b := asm.Assemble(ctx, bundle.Request{UserID: "u1", DisplayName: "Riley", ChannelID: "c1"})

			Expect(b.History).To(HaveLen(1))
			Expect(b.History[0].Content).To(Equal("newest"))
		})

		It("drops everything when the agent spoke last", func() {
			history.Messages["c1"] = []bundle.ChannelMessage{
				{AuthorID: agentID, Content: "my last reply"},
				{AuthorID: "u1", Content: "older, already handled"},
			}

			asm := newAssembler(store, bundle.Config{})
			b := asm.Assemble(ctx, bundle.Request{UserID: "u1", DisplayName: "Riley", ChannelID: "c1"})

			Expect(b.History).To(BeEmpty())
		})

		It("keeps the full window when the agent has not spoken", func() {
			history.Messages["c1"] = []bundle.ChannelMessage{
				{AuthorID: "u1", Content: "newest"},
				{AuthorID: "u2", Content: "middle"},
				{AuthorID: "u1", Content: "oldest"},
			}

			asm := newAssembler(store, bundle.Config{})
			b := asm.Assemble(ctx, bundle.Request{UserID: "u1", DisplayName: "Riley", ChannelID: "c1"})

			Expect(b.History).To(HaveLen(3))
			Expect(b.History[0].Content).To(Equal("oldest"))
			Expect(b.History[2].Content).To(Equal("newest"))
		})
	})
})
