package api

import (
	"avachat/app/service/turn"
	"bufio"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req turn.Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.ConversationID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "conversation_id is required")
	}

	result := s.turnSvc.ProcessTurn(c.UserContext(), req)

	return c.JSON(result)
}

// handleChatStream emits the turn as newline-delimited JSON fragments:
// metadata, one fragment per completed sentence, then the final fragment.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req turn.Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.ConversationID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "conversation_id is required")
	}

	c.Set(fiber.HeaderContentType, "application/x-ndjson")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		encoder := json.NewEncoder(w)

		err := s.turnSvc.StreamTurn(context.Background(), req, func(fragment turn.Fragment) error {
			if err := encoder.Encode(fragment); err != nil {
				return err
			}

			return w.Flush()
		})
		if err != nil {
			slog.Warn("Chat stream aborted",
				"conversation_id", req.ConversationID,
				"error", err)
		}
	}))

	return nil
}
