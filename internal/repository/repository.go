package repository

import (
	"context"
	"errors"
	"time"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict is returned when an optimistic update lost against a concurrent writer.
	ErrVersionConflict = errors.New("repository: version conflict")
)

// TicketRepository is the ticket side of the persistence collaborator. Every
// mutating method is transactional and keyed by ticket id.
type TicketRepository interface {
	// Create inserts the ticket and its CREATED history entry atomically, filling
	// ID, Number, Version and timestamps.
	Create(ctx context.Context, ticket *domain.Ticket, created *domain.TicketHistoryEntry) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// ApplyUpdate persists ticket only if the stored version still equals expectedVersion,
	// appending history in the same transaction. Returns ErrVersionConflict otherwise.
	ApplyUpdate(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, history []*domain.TicketHistoryEntry) error
	// ListOpenWithDeadlineBefore returns non-terminal, not-yet-breached tickets whose
	// deadline is strictly before ts, earliest deadline first.
	ListOpenWithDeadlineBefore(ctx context.Context, ts time.Time) ([]domain.Ticket, error)
	// MarkBreached flips sla_breached false->true for an open ticket whose deadline is
	// before asOf, appending entry in the same transaction. Exactly one concurrent
	// caller observes flipped == true.
	MarkBreached(ctx context.Context, id string, asOf time.Time, entry *domain.TicketHistoryEntry) (ticket *domain.Ticket, flipped bool, err error)
}

// TicketHistoryRepository stores audit entries. There is no update or delete.
type TicketHistoryRepository interface {
	Append(ctx context.Context, entry *domain.TicketHistoryEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistoryEntry, error)
}

// NotificationFilter narrows a recipient's feed.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository persists notification records.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID string, filter NotificationFilter) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead flips is_read for a notification owned by userID.
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// SLAConfigRepository reads configured SLA policy rows.
type SLAConfigRepository interface {
	// Get returns the row matching priority and issueType exactly; a nil issueType
	// matches the priority-wide row. Returns ErrNotFound when absent.
	Get(ctx context.Context, priority domain.TicketPriority, issueType *domain.IssueType) (*domain.SLAConfig, error)
	List(ctx context.Context) ([]domain.SLAConfig, error)
	Upsert(ctx context.Context, cfg *domain.SLAConfig) error
}

// TicketMessageRepository stores a ticket's conversation, oldest first.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error)
}

// UserRepository resolves accounts and notification audiences.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListIDsByRoles(ctx context.Context, roles ...domain.Role) ([]string, error)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 200 {
		return 200
	}
	return limit
}
