package gateway

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/memstore"
)

// MessageHandler handles one inbound message end to end.
type MessageHandler interface {
	HandleMessage(ctx context.Context, req bundle.Request) error
}

// Server is the HTTP gateway. Replies the dispatcher sends land in the
// channel transcript via Outbound, where both the HTTP client and the next
// turn's history fetch find them.
type Server struct {
	config  Config
	handler MessageHandler
	store   *memstore.Client
	log     *ChannelLog
	agentID string
	logger  *zap.Logger
	app     *fiber.App

	mu           sync.Mutex
	channelLocks map[string]*sync.Mutex
}

// NewServer creates a new gateway server. The channel log is injected so it
// can be shared with the context assembler as its history accessor and with
// the dispatcher's Outbound.
func NewServer(config Config, handler MessageHandler, store *memstore.Client, log *ChannelLog, agentID string, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:       config,
		handler:      handler,
		store:        store,
		log:          log,
		agentID:      agentID,
		logger:       logger,
		app:          app,
		channelLocks: make(map[string]*sync.Mutex),
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/messages", s.handleMessage)
	app.Get("/v1/channels/:id/messages", s.handleChannelMessages)
	app.Get("/v1/users/:id/profile", s.handleProfile)
	app.Get("/v1/users/:id/memories", s.handleMemories)

	return s
}

// Run starts the gateway server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting gateway server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the gateway server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// lockChannel serializes message handling per channel so replies land in
// transcript order.
func (s *Server) lockChannel(channelID string) func() {
	s.mu.Lock()
	m, ok := s.channelLocks[channelID]
	if !ok {
		m = &sync.Mutex{}
		s.channelLocks[channelID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
