package domain

import "time"

// TicketMessage is one entry in a ticket's conversation. Internal notes are
// visible to staff only.
type TicketMessage struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketId"`
	AuthorID  string    `json:"authorId"`
	Internal  bool      `json:"internal"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
