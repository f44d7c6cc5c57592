package service

import (
	"context"
	"errors"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
	"github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

// NotificationService serves a recipient's notification feed.
type NotificationService struct {
	notifications repository.NotificationRepository
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

func (n *NotificationService) List(ctx context.Context, actor domain.Actor, filter repository.NotificationFilter) ([]domain.Notification, error) {
	if actor.IsSystem() {
		return nil, errorutil.NewForbidden("unknown actor")
	}
	list, err := n.notifications.ListByUser(ctx, actor.ID, filter)
	if err != nil {
		return nil, errorutil.NewTransient(err)
	}
	if list == nil {
		list = []domain.Notification{}
	}
	return list, nil
}

func (n *NotificationService) UnreadCount(ctx context.Context, actor domain.Actor) (int, error) {
	if actor.IsSystem() {
		return 0, errorutil.NewForbidden("unknown actor")
	}
	count, err := n.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, errorutil.NewTransient(err)
	}
	return count, nil
}

// MarkRead flips one notification owned by actor. Another user's notification
// reads as not found.
func (n *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	if actor.IsSystem() {
		return errorutil.NewForbidden("unknown actor")
	}
	if err := n.notifications.MarkRead(ctx, actor.ID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorutil.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return errorutil.NewTransient(err)
	}
	return nil
}

func (n *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) (int, error) {
	if actor.IsSystem() {
		return 0, errorutil.NewForbidden("unknown actor")
	}
	count, err := n.notifications.MarkAllRead(ctx, actor.ID)
	if err != nil {
		return 0, errorutil.NewTransient(err)
	}
	return count, nil
}
