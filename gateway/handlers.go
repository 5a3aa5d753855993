package gateway

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/memstore"
)

// ErrorResponse is the JSON body returned on handler failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageRequest is one inbound user message.
type MessageRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	ChannelID   string `json:"channel_id"`
	Message     string `json:"message"`
}

// MessageResponse carries the agent's reply back to the HTTP caller.
type MessageResponse struct {
	Reply string `json:"reply"`
}

// TranscriptResponse is a channel transcript, newest first.
type TranscriptResponse struct {
	Count    int                     `json:"count"`
	Messages []bundle.ChannelMessage `json:"messages"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleMessage runs the full pipeline for one inbound message and returns
// the reply that was dispatched to the channel.
func (s *Server) handleMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.UserID == "" || req.ChannelID == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user_id, channel_id and message are required"})
	}

	if req.DisplayName == "" {
		req.DisplayName = req.UserID
	}

	unlock := s.lockChannel(req.ChannelID)
	defer unlock()

	s.log.Record(req.ChannelID, bundle.ChannelMessage{
		AuthorID:   req.UserID,
		AuthorName: req.DisplayName,
		Content:    req.Message,
		Timestamp:  time.Now().UTC(),
	})

	err := s.handler.HandleMessage(c.Context(), bundle.Request{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		ChannelID:   req.ChannelID,
		Message:     req.Message,
	})
	if err != nil {
		s.logger.Error("message handling failed",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "reply could not be delivered"})
	}

	reply, ok := s.log.LastFrom(req.ChannelID, s.agentID)
	if !ok {
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "no reply produced"})
	}

	return c.JSON(MessageResponse{Reply: reply.Content})
}

// handleChannelMessages returns the channel transcript, newest first.
func (s *Server) handleChannelMessages(c *fiber.Ctx) error {
	channelID := c.Params("id")
	limit := c.QueryInt("limit")

	messages, err := s.log.Recent(c.Context(), channelID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read transcript"})
	}

	return c.JSON(TranscriptResponse{
		Count:    len(messages),
		Messages: messages,
	})
}

// handleProfile returns the stored profile for a user.
func (s *Server) handleProfile(c *fiber.Ctx) error {
	userID := c.Params("id")

	profile, err := s.store.Profile(c.Context(), userID)
	if err != nil {
		if memstore.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to fetch profile"})
	}

	return c.JSON(profile)
}

// handleMemories returns a user's promoted long-term memories, newest first.
func (s *Server) handleMemories(c *fiber.Ctx) error {
	userID := c.Params("id")
	limit := c.QueryInt("limit")

	memories, err := s.store.LongTermMemories(c.Context(), userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to fetch memories"})
	}

	return c.JSON(map[string]any{
		"count":    len(memories),
		"memories": memories,
	})
}
