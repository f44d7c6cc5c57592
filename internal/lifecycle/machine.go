// Package lifecycle validates ticket mutations and turns them into side-effect
// intents. It performs no I/O beyond deadline resolution.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/pkg/util/errorutil"
)

// Changes is a partial update. Nil fields are left untouched; ClearAssignee
// unassigns the ticket and wins over AssignedToID.
type Changes struct {
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	IssueType     *domain.IssueType
	AssignedToID  *string
	ClearAssignee bool
	Title         *string
	Description   *string
}

// Empty reports whether no field was requested.
func (c Changes) Empty() bool {
	return c.Status == nil && c.Priority == nil && c.IssueType == nil && c.AssignedToID == nil &&
		!c.ClearAssignee && c.Title == nil && c.Description == nil
}

func (c Changes) touchesAssignee() bool {
	return c.AssignedToID != nil || c.ClearAssignee
}

func (c Changes) touchesNonStatus() bool {
	return c.Priority != nil || c.IssueType != nil || c.touchesAssignee() || c.Title != nil || c.Description != nil
}

// DeadlineCalculator derives a resolution deadline anchored at createdAt.
type DeadlineCalculator interface {
	Deadline(ctx context.Context, createdAt time.Time, priority domain.TicketPriority, issueType domain.IssueType) (time.Time, error)
}

// StateMachine applies guarded changes to ticket snapshots.
type StateMachine struct {
	deadlines DeadlineCalculator
	clock     clock.Clock
}

func NewStateMachine(deadlines DeadlineCalculator, c clock.Clock) *StateMachine {
	if c == nil {
		c = clock.Real()
	}
	return &StateMachine{deadlines: deadlines, clock: c}
}

// Apply validates changes against the guards and the transition graph and, on
// acceptance, returns the updated snapshot with its ordered intents. The input
// ticket is never modified. A request that changes nothing yields an Outcome
// with no intents.
func (m *StateMachine) Apply(ctx context.Context, ticket *domain.Ticket, changes Changes, actor domain.Actor) (*Outcome, error) {
	if ticket == nil {
		return nil, errorutil.NewNotFound("ticket", nil)
	}
	if err := validate(changes); err != nil {
		return nil, err
	}
	if err := m.guard(ticket, changes, actor); err != nil {
		return nil, err
	}

	next := ticket.Clone()
	out := &Outcome{Ticket: next}
	now := m.clock.Now()
	actorID := actorRef(actor)

	recompute := false
	if changes.Status != nil && *changes.Status != ticket.Status {
		from, to := ticket.Status, *changes.Status
		// Leaving a terminal status thaws the deadline, which may predate a priority change.
		recompute = from.IsTerminal() && !to.IsTerminal()
		next.Status = to
		switch {
		case to == domain.TicketStatusResolved:
			resolvedAt := now
			next.ResolvedAt = &resolvedAt
		case to == domain.TicketStatusReopened:
			next.ResolvedAt = nil
		}
		change := out.record(domain.HistoryActionStatusChanged, actorID, domain.FieldStatus, string(from), string(to),
			map[string]any{"transition": string(to), "from": string(from)})
		if recipient := counterpart(ticket, actor); recipient != "" {
			out.notify(domain.NotificationIntent{
				Recipient: recipient,
				Type:      domain.NotificationTicketUpdate,
				Ticket:    next,
				ActorID:   actorID,
				Change:    change,
			})
		}
	}

	if changes.Priority != nil && *changes.Priority != ticket.Priority {
		next.Priority = *changes.Priority
		out.record(domain.HistoryActionPriorityChanged, actorID, domain.FieldPriority,
			string(ticket.Priority), string(next.Priority), nil)
		recompute = true
	}
	if changes.IssueType != nil && *changes.IssueType != ticket.IssueType {
		next.IssueType = *changes.IssueType
		out.record(domain.HistoryActionUpdated, actorID, domain.FieldIssueType,
			string(ticket.IssueType), string(next.IssueType), nil)
		recompute = true
	}

	if changes.touchesAssignee() {
		var target *string
		if !changes.ClearAssignee {
			target = changes.AssignedToID
		}
		if !sameRef(ticket.AssignedToID, target) {
			next.AssignedToID = copyRef(target)
			change := out.recordRefs(domain.HistoryActionAssigned, actorID, domain.FieldAssignedTo,
				copyRef(ticket.AssignedToID), copyRef(target), nil)
			if target != nil {
				out.notify(domain.NotificationIntent{
					Recipient: *target,
					Type:      domain.NotificationTicketUpdate,
					Ticket:    next,
					ActorID:   actorID,
					Change:    change,
				})
			}
		}
	}

	if changes.Title != nil && *changes.Title != ticket.Title {
		next.Title = *changes.Title
		out.record(domain.HistoryActionUpdated, actorID, domain.FieldTitle, ticket.Title, next.Title, nil)
	}
	if changes.Description != nil && *changes.Description != ticket.Description {
		next.Description = *changes.Description
		out.record(domain.HistoryActionUpdated, actorID, domain.FieldDescription, ticket.Description, next.Description, nil)
	}

	// Terminal tickets keep their frozen deadline.
	if recompute && !next.Status.IsTerminal() {
		if err := m.recomputeDeadline(ctx, next, out, actorID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *StateMachine) recomputeDeadline(ctx context.Context, next *domain.Ticket, out *Outcome, actorID *string) error {
	if m.deadlines == nil {
		return nil
	}
	deadline, err := m.deadlines.Deadline(ctx, next.CreatedAt, next.Priority, next.IssueType)
	if err != nil {
		return err
	}
	old := next.SLADeadline
	if old != nil && old.Equal(deadline) {
		return nil
	}
	next.SLADeadline = &deadline
	out.Intents = append(out.Intents, DeadlineIntent{Old: copyTime(old), New: deadline})
	out.recordRefs(domain.HistoryActionUpdated, actorID, domain.FieldSLADeadline,
		formatTime(old), formatTime(&deadline), map[string]any{"anchor": next.CreatedAt.UTC().Format(time.RFC3339)})
	return nil
}

// guard enforces, in order: customer field restrictions, ownership, graph
// membership, then per-field role permissions.
func (m *StateMachine) guard(ticket *domain.Ticket, changes Changes, actor domain.Actor) error {
	if !actor.Role.Valid() || actor.IsSystem() {
		return errorutil.NewForbidden("unknown actor")
	}
	customer := actor.Role == domain.RoleCustomer
	if customer {
		if changes.touchesNonStatus() {
			return errorutil.NewForbidden("customers may only reopen their own tickets")
		}
		if ticket.CustomerID != actor.ID {
			return errorutil.NewForbidden("ticket belongs to another customer")
		}
	}

	if changes.Status != nil && *changes.Status != ticket.Status {
		from, to := ticket.Status, *changes.Status
		if !CanTransition(from, to) {
			return errorutil.NewInvalidTransition(string(from), string(to))
		}
		if customer {
			if !isReopenEdge(from, to) || !Allowed(actor.Role, PermReopenOwn) {
				return errorutil.NewForbidden("customers may only reopen their own tickets")
			}
		} else if !Allowed(actor.Role, PermChangeStatus) {
			return errorutil.NewForbidden("role cannot change status")
		}
	}

	checks := []struct {
		requested bool
		perm      Permission
	}{
		{changes.Priority != nil, PermChangePriority},
		{changes.IssueType != nil, PermChangeIssueType},
		{changes.touchesAssignee(), PermAssign},
		{changes.Title != nil || changes.Description != nil, PermEditDetails},
	}
	for _, c := range checks {
		if c.requested && !Allowed(actor.Role, c.perm) {
			return errorutil.NewForbidden("role cannot perform " + string(c.perm))
		}
	}
	return nil
}

func validate(changes Changes) error {
	details := map[string]any{}
	if changes.Status != nil && !changes.Status.Valid() {
		details["status"] = "unknown status"
	}
	if changes.Priority != nil && !changes.Priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if changes.IssueType != nil && !changes.IssueType.Valid() {
		details["issueType"] = "unknown issue type"
	}
	if changes.AssignedToID != nil && strings.TrimSpace(*changes.AssignedToID) == "" && !changes.ClearAssignee {
		details["assignedToId"] = "must not be blank"
	}
	if changes.Title != nil && strings.TrimSpace(*changes.Title) == "" {
		details["title"] = "must not be blank"
	}
	if len(details) > 0 {
		return errorutil.NewValidationError("invalid ticket changes", details)
	}
	return nil
}

// counterpart is who hears about a status change: the assignee when the
// customer acts, the customer when staff acts. The actor is never notified.
func counterpart(ticket *domain.Ticket, actor domain.Actor) string {
	var recipient string
	if actor.Role == domain.RoleCustomer {
		if ticket.AssignedToID != nil {
			recipient = *ticket.AssignedToID
		}
	} else {
		recipient = ticket.CustomerID
	}
	if recipient == actor.ID {
		return ""
	}
	return recipient
}

func actorRef(actor domain.Actor) *string {
	if actor.IsSystem() {
		return nil
	}
	id := actor.ID
	return &id
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyRef(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
