package api

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/service"
)

type chatRequest struct {
	Message     string                    `json:"message"`
	Model       string                    `json:"model"`
	Attachments []conversation.Attachment `json:"attachments"`
}

// handleChat streams a chat turn as server-sent events. Each service chunk
// becomes one "data:" frame; an error chunk becomes an "event: error" frame
// before the stream closes.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing message"})
	}

	chunks, err := s.svc.Chat(c.Context(), c.Params("id"), req.Message, req.Model, req.Attachments...)
	if err != nil {
		return s.fail(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// An io.Pipe gives true per-chunk delivery with backpressure; fiber's
	// stream writer buffers until the handler returns.
	pr, pw := io.Pipe()
	c.Context().Response.SetBodyStream(pr, -1)

	go func() {
		defer pw.Close()
		for chunk := range chunks {
			if chunk.Err != nil {
				s.logger.Warn("chat stream failed",
					zap.String("conversation_id", c.Params("id")),
					zap.Error(chunk.Err))
				writeSSEError(pw, chunk.Err)
				return
			}
			if err := writeSSEChunk(pw, chunk); err != nil {
				return
			}
		}
	}()

	return nil
}

func writeSSEChunk(w io.Writer, chunk service.ChatChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func writeSSEError(w io.Writer, cause error) {
	payload, err := json.Marshal(ErrorResponse{Error: cause.Error()})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
}
