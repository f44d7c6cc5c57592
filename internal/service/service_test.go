package service

import (
	"context"
	"testing"
	"time"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/events"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/lifecycle"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/notify"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository/memory"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/sla"
	"github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

var (
	start    = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	customer = domain.Actor{ID: "cust-1", Role: domain.RoleCustomer}
	other    = domain.Actor{ID: "cust-2", Role: domain.RoleCustomer}
	agent    = domain.Actor{ID: "agent-1", Role: domain.RoleAgent}
	admin    = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

type harness struct {
	store       *memory.Store
	clock       *clock.FakeClock
	hub         *events.Broadcaster
	dispatcher  *notify.Dispatcher
	tickets     *TicketService
	notifyFeeds *NotificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := clock.NewFake(start)
	store := memory.NewStore(fake)
	for _, a := range []domain.Actor{customer, other, agent, admin} {
		store.PutUser(domain.User{ID: a.ID, Name: a.ID, Role: a.Role, Active: true})
	}
	hub := events.NewBroadcaster(16, nil, nil)
	dispatcher := notify.NewDispatcher(notify.DispatcherDependencies{
		Notifications: store.Notifications(),
		Publisher:     hub,
		Clock:         fake,
	})
	calc := sla.NewCalculator(sla.NewResolver(store.SLAConfigs(), sla.DefaultPolicies(), nil))
	h := &harness{store: store, clock: fake, hub: hub, dispatcher: dispatcher}
	h.tickets = NewTicketService(TicketDependencies{
		TicketRepo:   store.Tickets(),
		HistoryRepo:  store.History(),
		MessageRepo:  store.Messages(),
		UserRepo:     store.Users(),
		StateMachine: lifecycle.NewStateMachine(calc, fake),
		Deadlines:    calc,
		Notifier:     dispatcher,
		Publisher:    hub,
		Clock:        fake,
	})
	h.notifyFeeds = NewNotificationService(store.Notifications())
	return h
}

func (h *harness) seedAssigned(t *testing.T, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	deadline := start.Add(8 * time.Hour)
	assignee := agent.ID
	ticket := &domain.Ticket{
		Title:        "Invoice shows the wrong VAT",
		Status:       status,
		Priority:     domain.TicketPriorityHigh,
		IssueType:    domain.IssueTypeBilling,
		CustomerID:   customer.ID,
		AssignedToID: &assignee,
		SLADeadline:  &deadline,
		CreatedAt:    start,
	}
	h.store.PutTicket(ticket)
	return ticket
}

func (h *harness) inbox(t *testing.T, userID string) []domain.Notification {
	t.Helper()
	list, err := h.store.Notifications().ListByUser(context.Background(), userID, repository.NotificationFilter{})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return list
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }
func strPtr(s string) *string                              { return &s }

func TestCreateTicket_CustomerGetsNumberDeadlineAndHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket, err := h.tickets.CreateTicket(ctx, customer, TicketCreateInput{
		Title:     "  Cannot log in  ",
		IssueType: domain.IssueTypeAccount,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Number != 1 || ticket.DisplayNumber() != "TCK-000001" {
		t.Errorf("unexpected number %d (%s)", ticket.Number, ticket.DisplayNumber())
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.Priority != domain.TicketPriorityMedium {
		t.Errorf("unexpected status/priority %s/%s", ticket.Status, ticket.Priority)
	}
	if ticket.Title != "Cannot log in" {
		t.Errorf("title not trimmed: %q", ticket.Title)
	}
	if ticket.CustomerID != customer.ID {
		t.Errorf("expected ticket to belong to the filing customer, got %s", ticket.CustomerID)
	}
	want := start.Add(1440 * time.Minute)
	if ticket.SLADeadline == nil || !ticket.SLADeadline.Equal(want) {
		t.Errorf("expected deadline %s, got %v", want, ticket.SLADeadline)
	}

	history, err := h.tickets.ListHistory(ctx, ticket.ID, customer)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Action != domain.HistoryActionCreated {
		t.Fatalf("expected a single CREATED entry, got %+v", history)
	}
}

func TestCreateTicket_StaffOnBehalfNotifiesAssignee(t *testing.T) {
	h := newHarness(t)
	assignee := agent.ID
	ticket, err := h.tickets.CreateTicket(context.Background(), admin, TicketCreateInput{
		Title:        "Parcel never arrived",
		Priority:     domain.TicketPriorityUrgent,
		IssueType:    domain.IssueTypeDelivery,
		CustomerID:   customer.ID,
		AssignedToID: &assignee,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ticket.IsAssignedTo(agent.ID) {
		t.Fatalf("expected ticket assigned to %s", agent.ID)
	}
	inbox := h.inbox(t, agent.ID)
	if len(inbox) != 1 || inbox[0].Type != domain.NotificationTicketUpdate {
		t.Fatalf("expected one TICKET_UPDATE for the assignee, got %+v", inbox)
	}
	if len(h.inbox(t, admin.ID)) != 0 {
		t.Errorf("the acting admin must not be notified")
	}
}

func TestCreateTicket_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assignee := agent.ID

	cases := []struct {
		name  string
		actor domain.Actor
		input TicketCreateInput
		kind  errorutil.Kind
	}{
		{"customer for someone else", customer, TicketCreateInput{Title: "x", CustomerID: other.ID}, errorutil.KindForbidden},
		{"customer assigning", customer, TicketCreateInput{Title: "x", AssignedToID: &assignee}, errorutil.KindForbidden},
		{"system actor", domain.SystemActor, TicketCreateInput{Title: "x"}, errorutil.KindForbidden},
		{"staff without customer", agent, TicketCreateInput{Title: "x"}, errorutil.KindValidation},
		{"staff with staff customer", agent, TicketCreateInput{Title: "x", CustomerID: admin.ID}, errorutil.KindValidation},
		{"blank title", customer, TicketCreateInput{Title: "   "}, errorutil.KindValidation},
		{"bad priority", customer, TicketCreateInput{Title: "x", Priority: "CRITICAL"}, errorutil.KindValidation},
	}
	for _, tc := range cases {
		_, err := h.tickets.CreateTicket(ctx, tc.actor, tc.input)
		if !errorutil.IsKind(err, tc.kind) {
			t.Errorf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
	}
}

func TestUpdateTicket_PersistsNotifiesAndPublishes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seedAssigned(t, domain.TicketStatusOpen)

	watcher := h.hub.Connect("watcher")
	h.hub.Join(watcher, events.TicketScope(ticket.ID))

	result, err := h.tickets.UpdateTicket(ctx, ticket.ID, lifecycle.Changes{Status: statusPtr(domain.TicketStatusInProgress)}, agent)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", result.Ticket.Status)
	}
	if result.Ticket.Version != ticket.Version+1 {
		t.Errorf("expected version %d, got %d", ticket.Version+1, result.Ticket.Version)
	}
	if len(result.History) != 1 || result.History[0].Action != domain.HistoryActionStatusChanged {
		t.Fatalf("expected one STATUS_CHANGED entry, got %+v", result.History)
	}
	if result.History[0].ID == "" {
		t.Errorf("expected persisted history entry to carry an id")
	}

	select {
	case ev := <-watcher.Events():
		data, ok := ev.Data.(events.TicketUpdated)
		if ev.Name != events.EventTicketUpdated || !ok {
			t.Fatalf("unexpected event %+v", ev)
		}
		if data.Field != domain.FieldStatus || data.Value != "IN_PROGRESS" {
			t.Errorf("unexpected payload %+v", data)
		}
	default:
		t.Fatalf("expected a ticket:updated event")
	}

	inbox := h.inbox(t, customer.ID)
	if len(inbox) != 1 || inbox[0].Type != domain.NotificationTicketUpdate {
		t.Fatalf("expected the customer to be notified, got %+v", inbox)
	}
}

func TestUpdateTicket_SameStatusIsNoop(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedAssigned(t, domain.TicketStatusOpen)

	result, err := h.tickets.UpdateTicket(context.Background(), ticket.ID, lifecycle.Changes{Status: statusPtr(domain.TicketStatusOpen)}, agent)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(result.History) != 0 || result.Ticket.Version != ticket.Version {
		t.Errorf("expected nothing persisted, got version %d history %d", result.Ticket.Version, len(result.History))
	}
}

// staleTickets hands out snapshots one version behind the store, as if another
// writer committed between read and write.
type staleTickets struct {
	repository.TicketRepository
}

func (s staleTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.TicketRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.Version--
	return ticket, nil
}

func TestUpdateTicket_StaleVersionIsConcurrentModification(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedAssigned(t, domain.TicketStatusOpen)
	h.tickets.tickets = staleTickets{h.store.Tickets()}

	_, err := h.tickets.UpdateTicket(context.Background(), ticket.ID, lifecycle.Changes{Status: statusPtr(domain.TicketStatusEscalated)}, agent)
	if !errorutil.HasCode(err, "CONCURRENT_MODIFICATION") {
		t.Fatalf("expected CONCURRENT_MODIFICATION, got %v", err)
	}
	if msg := errorutil.ToDomainError(err).Message; msg != "ticket was modified, please retry" {
		t.Errorf("unexpected message %q", msg)
	}

	history, _ := h.store.History().ListByTicket(context.Background(), ticket.ID)
	if len(history) != 0 {
		t.Errorf("rejected update must not write history, got %d entries", len(history))
	}
	if len(h.inbox(t, customer.ID)) != 0 {
		t.Errorf("rejected update must not notify")
	}
}

func TestUpdateTicket_CustomerReopensResolvedTicket(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedAssigned(t, domain.TicketStatusResolved)

	result, err := h.tickets.UpdateTicket(context.Background(), ticket.ID, lifecycle.Changes{Status: statusPtr(domain.TicketStatusReopened)}, customer)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusReopened {
		t.Errorf("expected REOPENED, got %s", result.Ticket.Status)
	}
	inbox := h.inbox(t, agent.ID)
	if len(inbox) != 1 {
		t.Fatalf("expected the assignee to be notified once, got %d", len(inbox))
	}
	if len(h.inbox(t, customer.ID)) != 0 {
		t.Errorf("the acting customer must not be notified")
	}

	_, err = h.tickets.UpdateTicket(context.Background(), ticket.ID, lifecycle.Changes{Status: statusPtr(domain.TicketStatusReopened)}, other)
	if !errorutil.IsForbidden(err) {
		t.Errorf("expected another customer to be forbidden, got %v", err)
	}
}

func TestUpdateTicket_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seedAssigned(t, domain.TicketStatusClosed)

	_, err := h.tickets.UpdateTicket(ctx, "missing", lifecycle.Changes{Title: strPtr("x")}, agent)
	if !errorutil.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = h.tickets.UpdateTicket(ctx, ticket.ID, lifecycle.Changes{Status: statusPtr(domain.TicketStatusInProgress)}, agent)
	if !errorutil.HasCode(err, "INVALID_TRANSITION") {
		t.Errorf("expected INVALID_TRANSITION, got %v", err)
	}

	_, err = h.tickets.UpdateTicket(ctx, ticket.ID, lifecycle.Changes{AssignedToID: strPtr(customer.ID)}, agent)
	if !errorutil.IsKind(err, errorutil.KindValidation) {
		t.Errorf("expected assigning a customer to fail validation, got %v", err)
	}
	stored, err := h.store.Tickets().GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.AssignedToID == nil || *stored.AssignedToID != agent.ID {
		t.Errorf("rejected assignment was persisted: %v", stored.AssignedToID)
	}
}

func TestUpdateTicket_TransitionIsCheckedBeforeAssignee(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedAssigned(t, domain.TicketStatusClosed)

	_, err := h.tickets.UpdateTicket(context.Background(), ticket.ID, lifecycle.Changes{
		Status:       statusPtr(domain.TicketStatusInProgress),
		AssignedToID: strPtr("nobody"),
	}, agent)
	if !errorutil.HasCode(err, "INVALID_TRANSITION") {
		t.Fatalf("expected INVALID_TRANSITION ahead of the assignee lookup, got %v", err)
	}
}

func TestGetTicket_CustomerOwnership(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedAssigned(t, domain.TicketStatusOpen)

	if _, err := h.tickets.GetTicket(context.Background(), ticket.ID, customer); err != nil {
		t.Errorf("owner should see the ticket: %v", err)
	}
	if _, err := h.tickets.GetTicket(context.Background(), ticket.ID, other); !errorutil.IsForbidden(err) {
		t.Errorf("expected forbidden for another customer, got %v", err)
	}
	if _, err := h.tickets.ListHistory(context.Background(), ticket.ID, other); !errorutil.IsForbidden(err) {
		t.Errorf("expected forbidden history for another customer, got %v", err)
	}
}

func TestPostMessage_NotifiesCounterpartAndHidesInternalNotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seedAssigned(t, domain.TicketStatusInProgress)

	watcher := h.hub.Connect("watcher")
	h.hub.Join(watcher, events.TicketScope(ticket.ID))

	msg, err := h.tickets.PostMessage(ctx, ticket.ID, customer, "Still broken after the update", false)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	select {
	case ev := <-watcher.Events():
		if ev.Name != events.EventMessageNew {
			t.Errorf("expected message:new, got %s", ev.Name)
		}
	default:
		t.Errorf("expected a message:new event")
	}
	inbox := h.inbox(t, agent.ID)
	if len(inbox) != 1 || inbox[0].Type != domain.NotificationMessage || inbox[0].MessageID == nil || *inbox[0].MessageID != msg.ID {
		t.Fatalf("expected a MESSAGE notification for the assignee, got %+v", inbox)
	}

	if _, err := h.tickets.PostMessage(ctx, ticket.ID, admin, "Known issue, see incident 42", true); err != nil {
		t.Fatalf("internal note: %v", err)
	}
	select {
	case ev := <-watcher.Events():
		t.Errorf("internal notes must not be pushed, got %+v", ev)
	default:
	}
	if _, err := h.tickets.PostMessage(ctx, ticket.ID, customer, "sneaky", true); !errorutil.IsForbidden(err) {
		t.Errorf("expected customers to be barred from internal notes, got %v", err)
	}

	visible, err := h.tickets.ListMessages(ctx, ticket.ID, customer)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 {
		t.Errorf("customer should see 1 message, got %d", len(visible))
	}
	all, err := h.tickets.ListMessages(ctx, ticket.ID, agent)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("staff should see 2 messages, got %d", len(all))
	}
}

func TestNotificationService_Feed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seedAssigned(t, domain.TicketStatusOpen)

	for _, s := range []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusWaitingCustomer} {
		if _, err := h.tickets.UpdateTicket(ctx, ticket.ID, lifecycle.Changes{Status: statusPtr(s)}, agent); err != nil {
			t.Fatalf("update to %s: %v", s, err)
		}
	}

	count, err := h.notifyFeeds.UnreadCount(ctx, customer)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 unread, got %d (%v)", count, err)
	}
	list, err := h.notifyFeeds.List(ctx, customer, repository.NotificationFilter{UnreadOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := h.notifyFeeds.MarkRead(ctx, other, list[0].ID); !errorutil.IsNotFound(err) {
		t.Errorf("expected another user's notification to read as not found, got %v", err)
	}
	if err := h.notifyFeeds.MarkRead(ctx, customer, list[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	marked, err := h.notifyFeeds.MarkAllRead(ctx, customer)
	if err != nil || marked != 1 {
		t.Errorf("expected 1 remaining marked, got %d (%v)", marked, err)
	}
	empty, err := h.notifyFeeds.List(ctx, other, repository.NotificationFilter{})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty non-nil feed, got %v (%v)", empty, err)
	}
}
