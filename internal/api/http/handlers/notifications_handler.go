package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/api/dto"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/service"
)

// NotificationsHandler serves the caller's own notification feed.
type NotificationsHandler struct {
	service *service.NotificationService
}

func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications?unread=true&limit=20&offset=0.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter := repository.NotificationFilter{
		UnreadOnly: c.QueryBool("unread", false),
		Limit:      c.QueryInt("limit", 20),
		Offset:     c.QueryInt("offset", 0),
	}
	items, err := h.service.List(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	unread, err := h.service.UnreadCount(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NotificationListResponse{Items: items, Unread: unread}})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkRead(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	n, err := h.service.MarkAllRead(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkAllReadResponse{Updated: n}})
}
