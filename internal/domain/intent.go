package domain

import "time"

// FieldChange describes one field transition on a ticket.
type FieldChange struct {
	Field    string
	OldValue *string
	NewValue *string
}

// NotificationIntent asks the dispatcher to notify Recipient about Ticket.
// Change is set for TICKET_UPDATE, Deadline for SLA_WARNING and SLA_BREACH.
type NotificationIntent struct {
	Recipient string
	Type      NotificationType
	Ticket    *Ticket
	ActorID   *string
	Change    *FieldChange
	Deadline  *time.Time
	MessageID *string
}
