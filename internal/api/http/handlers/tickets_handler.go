package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/api/dto"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/auth"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/service"
	apperrors "github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

// TicketsHandler serves ticket endpoints for every role; the service decides
// what each actor may do.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		IssueType:    req.IssueType,
		CustomerID:   req.CustomerID,
		AssignedToID: req.AssignedToID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	changes := req.Changes()
	if changes.Empty() {
		return apperrors.NewValidationError("no changes requested", nil)
	}

	result, err := h.service.UpdateTicket(c.UserContext(), c.Params("id"), changes, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UpdateTicketResponse{
		Ticket:  dto.NewTicketResponse(result.Ticket),
		History: dto.NewHistoryResponse(result.History),
	}})
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.service.PostMessage(c.UserContext(), c.Params("id"), actor, req.Body, req.Internal)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": msg})
}

// ListMessages GET /tickets/:id/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	msgs, err := h.service.ListMessages(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []domain.TicketMessage{}
	}
	return c.JSON(fiber.Map{"data": msgs})
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}
