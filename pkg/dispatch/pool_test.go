package dispatch_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/dispatch"
	"github.com/ashenvale/recall/pkg/eventstream/nop"
	"github.com/ashenvale/recall/pkg/generation"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/memstore/inmemory"
	"github.com/ashenvale/recall/pkg/promotion"
	testutils "github.com/ashenvale/recall/pkg/utils/test"
	"github.com/ashenvale/recall/pkg/vector"
)

var _ = Describe("Pool", func() {
	var (
		store  *memstore.Client
		pool   *dispatch.Pool
		logger *zap.Logger
		ctx    context.Context
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		store = memstore.NewClient(inmemory.NewDriver(), logger)
		ctx = context.Background()

		adapter := vector.NewAdapter(testutils.NewMockVectorDriver(), testutils.NewMockEmbedder(), vector.AdapterConfig{}, logger)
		promoter := promotion.NewEngine(store, adapter, nop.NewPublisher(), promotion.Config{}, logger)

		var err error
		pool, err = dispatch.NewPool(&dispatch.PoolConfig{
			Store:    store,
			Promoter: promoter,
			Logger:   logger,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = store.EnsureProfile(ctx, "u1", "Riley")
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns true when the queue has capacity", func() {
		ok := pool.Enqueue(dispatch.Job{
			UserID: "u1",
			Result: &generation.Result{Reply: "hi"},
		})
		Expect(ok).To(BeTrue())
		pool.Close()
	})

	It("drains in-flight jobs on Close", func() {
		for range 5 {
			ok := pool.Enqueue(dispatch.Job{
				UserID: "u1",
				Result: &generation.Result{Reply: "hi"},
			})
			Expect(ok).To(BeTrue())
		}
		pool.Close()

		profile, err := store.Profile(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.InteractionCount).To(Equal(5))
	})

	It("ignores jobs without a result", func() {
		Expect(pool.Enqueue(dispatch.Job{UserID: "u1"})).To(BeTrue())
		pool.Close()

		profile, err := store.Profile(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.InteractionCount).To(BeZero())
	})
})
