package dto

import "github.com/helpdesk-labs/ticket-lifecycle/internal/domain"

// NotificationListResponse is one page of a recipient's feed.
type NotificationListResponse struct {
	Items  []domain.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

// MarkAllReadResponse reports how many notifications flipped.
type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}
