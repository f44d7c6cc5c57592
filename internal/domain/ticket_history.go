package domain

import "time"

// HistoryAction captures what happened in a history entry.
type HistoryAction string

const (
	HistoryActionCreated         HistoryAction = "CREATED"
	HistoryActionStatusChanged   HistoryAction = "STATUS_CHANGED"
	HistoryActionPriorityChanged HistoryAction = "PRIORITY_CHANGED"
	HistoryActionAssigned        HistoryAction = "ASSIGNED"
	HistoryActionEscalated       HistoryAction = "ESCALATED"
	HistoryActionResolved        HistoryAction = "RESOLVED"
	HistoryActionClosed          HistoryAction = "CLOSED"
	HistoryActionReopened        HistoryAction = "REOPENED"
	HistoryActionUpdated         HistoryAction = "UPDATED"
)

// Ticket field names used in history entries and ticket:updated events.
const (
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldIssueType   = "issueType"
	FieldAssignedTo  = "assignedToId"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldSLABreached = "slaBreached"
	FieldSLADeadline = "slaDeadline"
)

// TicketHistoryEntry is an immutable audit trail entry. ActorID is nil for system-generated entries.
type TicketHistoryEntry struct {
	ID        string
	TicketID  string
	ActorID   *string
	Action    HistoryAction
	Field     *string
	OldValue  *string
	NewValue  *string
	Metadata  map[string]any
	CreatedAt time.Time
}
