package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/memstore/inmemory"
)

const testAgentID = "_ash"

// stubHandler emulates the pipeline: it replies through the gateway outbound
// the same way the dispatcher would.
type stubHandler struct {
	outbound *Outbound
	reply    string
	fail     bool
	calls    []bundle.Request
}

func (h *stubHandler) HandleMessage(ctx context.Context, req bundle.Request) error {
	h.calls = append(h.calls, req)
	if h.fail {
		return fmt.Errorf("stub handler failure")
	}
	return h.outbound.Send(ctx, req.ChannelID, h.reply)
}

func postMessage(server *Server, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return server.app.Test(req)
}

func decodeBody(resp *http.Response, out any) {
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(data, out)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		server  *Server
		handler *stubHandler
		store   *memstore.Client
		log     *ChannelLog
		ctx     context.Context
	)

	BeforeEach(func() {
		logger := zap.NewNop()
		store = memstore.NewClient(inmemory.NewDriver(), logger)
		log = NewChannelLog(0)
		handler = &stubHandler{
			reply:    "Hello, Riley.",
			outbound: NewOutbound(log, testAgentID, "Ash"),
		}
		server = NewServer(Config{ListenAddr: ":0"}, handler, store, log, testAgentID, logger)
		ctx = context.Background()
	})

	Describe("GET /ping", func() {
		It("responds with pong", func() {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body string
			decodeBody(resp, &body)
			Expect(body).To(Equal("pong"))
		})
	})

	Describe("POST /v1/messages", func() {
		It("returns the dispatched reply", func() {
			resp, err := postMessage(server, MessageRequest{
				UserID:      "u1",
				DisplayName: "Riley",
				ChannelID:   "c1",
				Message:     "hello",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body MessageResponse
			decodeBody(resp, &body)
			Expect(body.Reply).To(Equal("Hello, Riley."))

			Expect(handler.calls).To(HaveLen(1))
			Expect(handler.calls[0].UserID).To(Equal("u1"))
		})

		It("records both sides of the exchange in the transcript", func() {
			_, err := postMessage(server, MessageRequest{
				UserID:      "u1",
				DisplayName: "Riley",
				ChannelID:   "c1",
				Message:     "hello",
			})
			Expect(err).NotTo(HaveOccurred())

			messages, err := log.Recent(ctx, "c1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].AuthorID).To(Equal(testAgentID))
			Expect(messages[0].Content).To(Equal("Hello, Riley."))
			Expect(messages[1].AuthorID).To(Equal("u1"))
			Expect(messages[1].Content).To(Equal("hello"))
		})

		It("defaults the display name to the user id", func() {
			_, err := postMessage(server, MessageRequest{
				UserID:    "u1",
				ChannelID: "c1",
				Message:   "hello",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(handler.calls[0].DisplayName).To(Equal("u1"))
		})

		It("rejects a message missing required fields", func() {
			resp, err := postMessage(server, MessageRequest{UserID: "u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unparsable body", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader([]byte("not json")))
			req.Header.Set("Content-Type", "application/json")
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns bad gateway when the reply cannot be delivered", func() {
			handler.fail = true

			resp, err := postMessage(server, MessageRequest{
				UserID:    "u1",
				ChannelID: "c1",
				Message:   "hello",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("GET /v1/channels/:id/messages", func() {
		BeforeEach(func() {
			for i := range 4 {
				log.Record("c1", bundle.ChannelMessage{
					AuthorID: "u1",
					Content:  fmt.Sprintf("message %d", i),
				})
			}
		})

		It("returns the transcript newest first", func() {
			req := httptest.NewRequest(http.MethodGet, "/v1/channels/c1/messages", nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body TranscriptResponse
			decodeBody(resp, &body)
			Expect(body.Count).To(Equal(4))
			Expect(body.Messages[0].Content).To(Equal("message 3"))
			Expect(body.Messages[3].Content).To(Equal("message 0"))
		})

		It("honors the limit query parameter", func() {
			req := httptest.NewRequest(http.MethodGet, "/v1/channels/c1/messages?limit=2", nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())

			var body TranscriptResponse
			decodeBody(resp, &body)
			Expect(body.Count).To(Equal(2))
			Expect(body.Messages[0].Content).To(Equal("message 3"))
		})
	})

	Describe("GET /v1/users/:id/profile", func() {
		It("returns 404 for an unknown user", func() {
			req := httptest.NewRequest(http.MethodGet, "/v1/users/nobody/profile", nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns the stored profile", func() {
			_, err := store.EnsureProfile(ctx, "u1", "Riley")
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/profile", nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var profile memstore.UserProfile
			decodeBody(resp, &profile)
			Expect(profile.UserID).To(Equal("u1"))
			Expect(profile.DisplayName).To(Equal("Riley"))
		})
	})

	Describe("GET /v1/users/:id/memories", func() {
		It("returns promoted memories", func() {
			_, err := store.InsertLongTermMemory(ctx, "u1", "likes tacos")
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/memories", nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Count    int                       `json:"count"`
				Memories []memstore.LongTermMemory `json:"memories"`
			}
			decodeBody(resp, &body)
			Expect(body.Count).To(Equal(1))
			Expect(body.Memories[0].MemoryText).To(Equal("likes tacos"))
		})
	})
})

var _ = Describe("ChannelLog", func() {
	It("evicts the oldest messages at depth", func() {
		log := NewChannelLog(3)
		for i := range 5 {
			log.Record("c1", bundle.ChannelMessage{Content: fmt.Sprintf("m%d", i), Timestamp: time.Now()})
		}

		messages, err := log.Recent(context.Background(), "c1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(3))
		Expect(messages[0].Content).To(Equal("m4"))
		Expect(messages[2].Content).To(Equal("m2"))
	})

	It("finds the newest message from a given author", func() {
		log := NewChannelLog(0)
		log.Record("c1", bundle.ChannelMessage{AuthorID: "a", Content: "first"})
		log.Record("c1", bundle.ChannelMessage{AuthorID: "b", Content: "other"})
		log.Record("c1", bundle.ChannelMessage{AuthorID: "a", Content: "second"})

		msg, ok := log.LastFrom("c1", "a")
		Expect(ok).To(BeTrue())
		Expect(msg.Content).To(Equal("second"))

		_, ok = log.LastFrom("c1", "missing")
		Expect(ok).To(BeFalse())
	})
})
