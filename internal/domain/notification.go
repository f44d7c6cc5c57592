package domain

import (
	"encoding/json"
	"time"
)

// NotificationType enumerates persisted notification kinds.
type NotificationType string

const (
	NotificationTicketUpdate NotificationType = "TICKET_UPDATE"
	NotificationMessage      NotificationType = "MESSAGE"
	NotificationSLAWarning   NotificationType = "SLA_WARNING"
	NotificationSLABreach    NotificationType = "SLA_BREACH"
)

// Notification is a persisted, per-recipient record. Only IsRead ever changes after creation.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	TicketID  *string          `json:"ticketId,omitempty"`
	MessageID *string          `json:"messageId,omitempty"`
	Payload   json.RawMessage  `json:"payload"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}
