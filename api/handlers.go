package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/llm"
	"github.com/forkyhq/forky/pkg/merge"
	"github.com/forkyhq/forky/pkg/service"
	"github.com/forkyhq/forky/pkg/storage"
)

// ErrorResponse is the JSON error body for all non-2xx responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// fail maps domain errors onto HTTP statuses and writes the error body.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	reason := ""

	var notFound storage.NotFoundError
	var unknownNode conversation.UnknownNodeError
	var unknownIdent conversation.UnknownIdentifierError
	var invalidParent conversation.InvalidParentError
	var ineligible merge.IneligibleError
	var busy service.BusyError
	var modelErr llm.ModelError
	var modelTimeout llm.ModelTimeoutError
	var modelDown llm.ModelUnavailableError
	var corrupt storage.CorruptStoreError

	switch {
	case errors.As(err, &notFound),
		errors.As(err, &unknownNode),
		errors.As(err, &unknownIdent),
		errors.As(err, &invalidParent):
		status = fiber.StatusNotFound
	case errors.Is(err, conversation.ErrCannotDeleteRoot),
		errors.Is(err, conversation.ErrCannotDeleteCurrent):
		status = fiber.StatusConflict
	case errors.As(err, &ineligible):
		status = fiber.StatusConflict
		reason = ineligible.Reason
	case errors.As(err, &busy):
		status = fiber.StatusServiceUnavailable
	case errors.As(err, &modelErr),
		errors.As(err, &modelTimeout),
		errors.As(err, &modelDown):
		status = fiber.StatusBadGateway
	case errors.As(err, &corrupt):
		status = fiber.StatusInternalServerError
	}

	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Reason: reason})
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleModels(c *fiber.Ctx) error {
	models, err := s.svc.AvailableModels(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"models": models})
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing query parameter 'q'"})
	}

	hits, err := s.svc.Search(c.Context(), query, c.QueryInt("limit"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"hits": hits})
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	summaries, err := s.svc.ListConversations(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"conversations": summaries})
}

type createConversationRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	id, err := s.svc.CreateConversation(c.Context(), req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation_id": id})
}

func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	if err := s.svc.DeleteConversation(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type renameConversationRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameConversation(c *fiber.Ctx) error {
	var req renameConversationRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing name"})
	}

	if err := s.svc.RenameConversation(c.Context(), c.Params("id"), req.Name); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleLoadConversation(c *fiber.Ctx) error {
	g, err := s.svc.LoadConversation(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"conversation_id": g.ID,
		"name":            g.Name,
		"current_node_id": g.CurrentID,
	})
}

func (s *Server) handleGetGraph(c *fiber.Ctx) error {
	view, err := s.svc.GetGraph(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(view)
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	history, err := s.svc.GetHistory(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"history": history})
}

type checkoutRequest struct {
	Identifier string `json:"identifier"`
}

func (s *Server) handleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil || req.Identifier == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing identifier"})
	}

	current, err := s.svc.Checkout(c.Context(), c.Params("id"), req.Identifier)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"current_node_id": current})
}

type forkRequest struct {
	BranchName string `json:"branch_name"`
}

func (s *Server) handleFork(c *fiber.Ctx) error {
	var req forkRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	markerID, err := s.svc.Fork(c.Context(), c.Params("id"), req.BranchName)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"node_id": markerID})
}

func (s *Server) handleDeleteNode(c *fiber.Ctx) error {
	if err := s.svc.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeID")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMergeEligibility(c *fiber.Ctx) error {
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing query parameters 'a' and 'b'"})
	}

	eligibility, err := s.svc.CheckMergeEligibility(c.Context(), c.Params("id"), a, b)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(eligibility)
}

type mergeRequest struct {
	BaseID      string `json:"base_id"`
	IncomingID  string `json:"incoming_id"`
	MergePrompt string `json:"merge_prompt"`
}

func (s *Server) handleMerge(c *fiber.Ctx) error {
	var req mergeRequest
	if err := c.BodyParser(&req); err != nil || req.IncomingID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing incoming_id"})
	}

	result, err := s.svc.Merge(c.Context(), c.Params("id"), req.BaseID, req.IncomingID, req.MergePrompt)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}
