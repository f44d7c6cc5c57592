package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/events"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/lifecycle"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
	"github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

// Notifier delivers notification intents. Implemented by notify.Dispatcher.
type Notifier interface {
	DispatchAll(ctx context.Context, intents []domain.NotificationIntent) ([]domain.Notification, error)
}

// TicketService is the mutation entry point for tickets and their conversation.
type TicketService struct {
	tickets   repository.TicketRepository
	history   repository.TicketHistoryRepository
	messages  repository.TicketMessageRepository
	users     repository.UserRepository
	machine   *lifecycle.StateMachine
	deadlines lifecycle.DeadlineCalculator
	notifier  Notifier
	publisher events.Publisher
	clock     clock.Clock
	logger    *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	HistoryRepo  repository.TicketHistoryRepository
	MessageRepo  repository.TicketMessageRepository
	UserRepo     repository.UserRepository
	StateMachine *lifecycle.StateMachine
	Deadlines    lifecycle.DeadlineCalculator
	Notifier     Notifier
	Publisher    events.Publisher
	Clock        clock.Clock
	Logger       *zap.Logger
}

// TicketCreateInput describes a new ticket. CustomerID is required when staff
// files the ticket on behalf of a customer and must be empty or the actor's
// own id otherwise.
type TicketCreateInput struct {
	Title        string
	Description  string
	Priority     domain.TicketPriority
	IssueType    domain.IssueType
	CustomerID   string
	AssignedToID *string
}

// UpdateResult is what an accepted mutation returns.
type UpdateResult struct {
	Ticket  *domain.Ticket
	History []domain.TicketHistoryEntry
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	c := deps.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:   deps.TicketRepo,
		history:   deps.HistoryRepo,
		messages:  deps.MessageRepo,
		users:     deps.UserRepo,
		machine:   deps.StateMachine,
		deadlines: deps.Deadlines,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		clock:     c,
		logger:    logger,
	}
}

// CreateTicket files a new OPEN ticket with its resolution deadline.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if actor.IsSystem() || !actor.Role.Valid() {
		return nil, errorutil.NewForbidden("unknown actor")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errorutil.NewValidationError("title is required", map[string]any{"field": domain.FieldTitle})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, errorutil.NewValidationError("invalid priority", map[string]any{"priority": string(priority)})
	}
	issueType := input.IssueType
	if issueType == "" {
		issueType = domain.IssueTypeGeneral
	}
	if !issueType.Valid() {
		return nil, errorutil.NewValidationError("invalid issue type", map[string]any{"issueType": string(issueType)})
	}

	customerID := input.CustomerID
	if actor.Role == domain.RoleCustomer {
		if customerID != "" && customerID != actor.ID {
			return nil, errorutil.NewForbidden("customers can only file tickets for themselves")
		}
		if input.AssignedToID != nil {
			return nil, errorutil.NewForbidden("customers cannot assign tickets")
		}
		customerID = actor.ID
	} else {
		if customerID == "" {
			return nil, errorutil.NewValidationError("customerId is required", map[string]any{"field": "customerId"})
		}
		if err := s.requireRole(ctx, customerID, "customerId", func(r domain.Role) bool { return r == domain.RoleCustomer }); err != nil {
			return nil, err
		}
	}
	if input.AssignedToID != nil {
		if err := s.requireRole(ctx, *input.AssignedToID, domain.FieldAssignedTo, domain.Role.IsStaff); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	deadline, err := s.deadlines.Deadline(ctx, now, priority, issueType)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusOpen,
		Priority:     priority,
		IssueType:    issueType,
		CustomerID:   customerID,
		AssignedToID: input.AssignedToID,
		SLADeadline:  &deadline,
		CreatedAt:    now,
	}
	actorID := actor.ID
	created := &domain.TicketHistoryEntry{
		ActorID: &actorID,
		Action:  domain.HistoryActionCreated,
		Metadata: map[string]any{
			"priority":    string(priority),
			"issueType":   string(issueType),
			"slaDeadline": deadline.UTC().Format(time.RFC3339),
		},
	}
	if err := s.tickets.Create(ctx, ticket, created); err != nil {
		return nil, errorutil.NewTransient(err)
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("number", ticket.DisplayNumber()),
		zap.String("priority", string(priority)),
		zap.Time("sla_deadline", deadline))

	if assignee := ticket.AssignedToID; assignee != nil && *assignee != actor.ID {
		target := *assignee
		s.notify(ctx, []domain.NotificationIntent{{
			Recipient: target,
			Type:      domain.NotificationTicketUpdate,
			Ticket:    ticket,
			ActorID:   &actorID,
			Change:    &domain.FieldChange{Field: domain.FieldAssignedTo, NewValue: &target},
		}})
	}
	return ticket, nil
}

// UpdateTicket applies changes requested by actor. The write is optimistic on
// the version that was read; a concurrent writer surfaces as a stale update.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketID string, changes lifecycle.Changes, actor domain.Actor) (*UpdateResult, error) {
	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	out, err := s.machine.Apply(ctx, current, changes, actor)
	if err != nil {
		return nil, err
	}
	if !out.Changed() {
		return &UpdateResult{Ticket: current}, nil
	}

	next := out.Ticket
	if next.AssignedToID != nil && !current.IsAssignedTo(*next.AssignedToID) {
		if err := s.requireRole(ctx, *next.AssignedToID, domain.FieldAssignedTo, domain.Role.IsStaff); err != nil {
			return nil, err
		}
	}
	entries := out.History()
	if err := s.tickets.ApplyUpdate(ctx, next, current.Version, entries); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, errorutil.NewStaleUpdate(ticketID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, errorutil.NewTransient(err)
	}

	s.notify(ctx, out.Notifications())
	history := make([]domain.TicketHistoryEntry, 0, len(entries))
	for _, entry := range entries {
		history = append(history, *entry)
		if entry.Field != nil {
			s.publish(events.Event{
				Name:  events.EventTicketUpdated,
				Scope: events.TicketScope(next.ID),
				Data:  events.TicketUpdated{TicketID: next.ID, Field: *entry.Field, Value: valueOf(entry.NewValue)},
			})
		}
	}
	return &UpdateResult{Ticket: next, History: history}, nil
}

// GetTicket returns a ticket the actor may see.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(ticket, actor); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListHistory returns the audit trail of a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string, actor domain.Actor) ([]domain.TicketHistoryEntry, error) {
	if _, err := s.GetTicket(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, errorutil.NewTransient(err)
	}
	return entries, nil
}

// PostMessage adds to the ticket conversation, pushes message:new to the
// ticket scope and notifies the counterpart. Internal notes are staff-only:
// they are not pushed live and only the assignee hears about them.
func (s *TicketService) PostMessage(ctx context.Context, ticketID string, actor domain.Actor, body string, internal bool) (*domain.TicketMessage, error) {
	ticket, err := s.GetTicket(ctx, ticketID, actor)
	if err != nil {
		return nil, err
	}
	if internal && !actor.Role.IsStaff() {
		return nil, errorutil.NewForbidden("internal notes are staff only")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errorutil.NewValidationError("message body is required", map[string]any{"field": "body"})
	}

	msg := &domain.TicketMessage{TicketID: ticket.ID, AuthorID: actor.ID, Internal: internal, Body: body}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, errorutil.NewTransient(err)
	}

	if !internal {
		s.publish(events.Event{
			Name:  events.EventMessageNew,
			Scope: events.TicketScope(ticket.ID),
			Data:  events.MessageNew{TicketID: ticket.ID, MessageID: msg.ID, AuthorID: msg.AuthorID, Body: msg.Body},
		})
	}

	var recipient string
	switch {
	case actor.Role == domain.RoleCustomer || internal:
		if ticket.AssignedToID != nil {
			recipient = *ticket.AssignedToID
		}
	default:
		recipient = ticket.CustomerID
	}
	if recipient != "" && recipient != actor.ID {
		actorID, messageID := actor.ID, msg.ID
		s.notify(ctx, []domain.NotificationIntent{{
			Recipient: recipient,
			Type:      domain.NotificationMessage,
			Ticket:    ticket,
			ActorID:   &actorID,
			MessageID: &messageID,
		}})
	}
	return msg, nil
}

// ListMessages returns the conversation; customers never see internal notes.
func (s *TicketService) ListMessages(ctx context.Context, ticketID string, actor domain.Actor) ([]domain.TicketMessage, error) {
	if _, err := s.GetTicket(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketID, actor.Role.IsStaff())
	if err != nil {
		return nil, errorutil.NewTransient(err)
	}
	return msgs, nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, errorutil.NewTransient(err)
	}
	return ticket, nil
}

func (s *TicketService) requireRole(ctx context.Context, userID, field string, ok func(domain.Role) bool) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorutil.NewValidationError("unknown user", map[string]any{"field": field, "user_id": userID})
		}
		return errorutil.NewTransient(err)
	}
	if !user.Active || !ok(user.Role) {
		return errorutil.NewValidationError("user cannot fill this role", map[string]any{"field": field, "user_id": userID})
	}
	return nil
}

// notify delivers intents after the ticket write committed. Delivery failures
// never fail the mutation.
func (s *TicketService) notify(ctx context.Context, intents []domain.NotificationIntent) {
	if s.notifier == nil || len(intents) == 0 {
		return
	}
	if _, err := s.notifier.DispatchAll(ctx, intents); err != nil {
		s.logger.Warn("notification dispatch failed", zap.Error(err))
	}
}

func (s *TicketService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

func authorizeView(ticket *domain.Ticket, actor domain.Actor) error {
	switch {
	case actor.Role.IsStaff():
		return nil
	case actor.Role == domain.RoleCustomer && ticket.CustomerID == actor.ID:
		return nil
	}
	return errorutil.NewForbidden("ticket belongs to another customer")
}

func valueOf(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
