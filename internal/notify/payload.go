package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

// Payload is the persisted body of a notification. Each notification type has
// exactly one payload variant.
type Payload interface {
	Type() domain.NotificationType
	Summary() Base
}

// Base is shared by every variant.
type Base struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	TicketNumber string `json:"ticketNumber,omitempty"`
	TicketTitle  string `json:"ticketTitle,omitempty"`
}

func (b Base) Summary() Base { return b }

type TicketUpdatePayload struct {
	Base
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue,omitempty"`
	NewValue *string `json:"newValue,omitempty"`
	ActorID  *string `json:"actorId,omitempty"`
}

type MessagePayload struct {
	Base
	MessageID string  `json:"messageId"`
	AuthorID  *string `json:"authorId,omitempty"`
}

type SLAWarningPayload struct {
	Base
	Deadline         time.Time `json:"deadline"`
	MinutesRemaining int       `json:"minutesRemaining"`
}

type SLABreachPayload struct {
	Base
	Deadline       time.Time `json:"deadline"`
	MinutesOverdue int       `json:"minutesOverdue"`
}

func (TicketUpdatePayload) Type() domain.NotificationType { return domain.NotificationTicketUpdate }
func (MessagePayload) Type() domain.NotificationType      { return domain.NotificationMessage }
func (SLAWarningPayload) Type() domain.NotificationType   { return domain.NotificationSLAWarning }
func (SLABreachPayload) Type() domain.NotificationType    { return domain.NotificationSLABreach }

// DecodePayload parses a stored payload according to its notification type.
func DecodePayload(t domain.NotificationType, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case domain.NotificationTicketUpdate:
		var v TicketUpdatePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case domain.NotificationMessage:
		var v MessagePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case domain.NotificationSLAWarning:
		var v SLAWarningPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case domain.NotificationSLABreach:
		var v SLABreachPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}

// BuildPayload renders the payload variant for intent at time now.
func BuildPayload(intent domain.NotificationIntent, now time.Time) (Payload, error) {
	base := Base{}
	if t := intent.Ticket; t != nil {
		base.TicketNumber = t.DisplayNumber()
		base.TicketTitle = t.Title
	}

	switch intent.Type {
	case domain.NotificationTicketUpdate:
		if intent.Change == nil {
			return nil, fmt.Errorf("ticket update intent without a change")
		}
		base.Title, base.Content = describeChange(base.TicketNumber, intent.Change)
		return TicketUpdatePayload{
			Base:     base,
			Field:    intent.Change.Field,
			OldValue: intent.Change.OldValue,
			NewValue: intent.Change.NewValue,
			ActorID:  intent.ActorID,
		}, nil

	case domain.NotificationMessage:
		if intent.MessageID == nil {
			return nil, fmt.Errorf("message intent without a message id")
		}
		base.Title = "New message"
		base.Content = fmt.Sprintf("New message on %s", base.TicketNumber)
		return MessagePayload{Base: base, MessageID: *intent.MessageID, AuthorID: intent.ActorID}, nil

	case domain.NotificationSLAWarning:
		if intent.Deadline == nil {
			return nil, fmt.Errorf("sla warning intent without a deadline")
		}
		remaining := int(intent.Deadline.Sub(now).Round(time.Minute) / time.Minute)
		if remaining < 0 {
			remaining = 0
		}
		base.Title = "SLA deadline approaching"
		base.Content = fmt.Sprintf("%s is due in %d minutes", base.TicketNumber, remaining)
		return SLAWarningPayload{Base: base, Deadline: *intent.Deadline, MinutesRemaining: remaining}, nil

	case domain.NotificationSLABreach:
		if intent.Deadline == nil {
			return nil, fmt.Errorf("sla breach intent without a deadline")
		}
		overdue := int(now.Sub(*intent.Deadline).Round(time.Minute) / time.Minute)
		if overdue < 0 {
			overdue = 0
		}
		base.Title = "SLA breached"
		base.Content = fmt.Sprintf("%s missed its resolution deadline", base.TicketNumber)
		return SLABreachPayload{Base: base, Deadline: *intent.Deadline, MinutesOverdue: overdue}, nil
	}
	return nil, fmt.Errorf("unknown notification type %q", intent.Type)
}

func describeChange(number string, change *domain.FieldChange) (string, string) {
	value := "none"
	if change.NewValue != nil {
		value = *change.NewValue
	}
	switch change.Field {
	case domain.FieldStatus:
		return "Ticket status changed", fmt.Sprintf("%s is now %s", number, value)
	case domain.FieldAssignedTo:
		return "Ticket assigned", fmt.Sprintf("%s was assigned to you", number)
	case domain.FieldPriority:
		return "Ticket priority changed", fmt.Sprintf("%s priority is now %s", number, value)
	}
	return "Ticket updated", fmt.Sprintf("%s %s changed", number, change.Field)
}
