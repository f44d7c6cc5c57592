package lifecycle

import (
	"time"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

// Intent is a side effect for the caller to carry out. The concrete types are
// HistoryIntent, NotifyIntent and DeadlineIntent.
type Intent interface {
	isIntent()
}

// HistoryIntent is one audit entry to append.
type HistoryIntent struct {
	Entry *domain.TicketHistoryEntry
}

// NotifyIntent asks for a persisted notification.
type NotifyIntent struct {
	domain.NotificationIntent
}

// DeadlineIntent records that the SLA deadline was recomputed.
type DeadlineIntent struct {
	Old *time.Time
	New time.Time
}

func (HistoryIntent) isIntent()  {}
func (NotifyIntent) isIntent()   {}
func (DeadlineIntent) isIntent() {}

// Outcome is the result of an accepted mutation.
type Outcome struct {
	Ticket  *domain.Ticket
	Intents []Intent
}

// Changed reports whether any field actually changed.
func (o *Outcome) Changed() bool {
	return len(o.History()) > 0
}

// History returns the history entries in emission order.
func (o *Outcome) History() []*domain.TicketHistoryEntry {
	var entries []*domain.TicketHistoryEntry
	for _, intent := range o.Intents {
		if h, ok := intent.(HistoryIntent); ok {
			entries = append(entries, h.Entry)
		}
	}
	return entries
}

// Notifications returns the notification intents in emission order.
func (o *Outcome) Notifications() []domain.NotificationIntent {
	var intents []domain.NotificationIntent
	for _, intent := range o.Intents {
		if n, ok := intent.(NotifyIntent); ok {
			intents = append(intents, n.NotificationIntent)
		}
	}
	return intents
}

func (o *Outcome) record(action domain.HistoryAction, actorID *string, field, oldValue, newValue string, metadata map[string]any) *domain.FieldChange {
	return o.recordRefs(action, actorID, field, &oldValue, &newValue, metadata)
}

func (o *Outcome) recordRefs(action domain.HistoryAction, actorID *string, field string, oldValue, newValue *string, metadata map[string]any) *domain.FieldChange {
	name := field
	o.Intents = append(o.Intents, HistoryIntent{Entry: &domain.TicketHistoryEntry{
		TicketID: o.Ticket.ID,
		ActorID:  actorID,
		Action:   action,
		Field:    &name,
		OldValue: oldValue,
		NewValue: newValue,
		Metadata: metadata,
	}})
	return &domain.FieldChange{Field: field, OldValue: oldValue, NewValue: newValue}
}

func (o *Outcome) notify(intent domain.NotificationIntent) {
	o.Intents = append(o.Intents, NotifyIntent{NotificationIntent: intent})
}
