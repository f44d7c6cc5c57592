package events

import "strings"

// Wire event names. Existing consumers depend on these strings.
const (
	EventTicketUpdated = "ticket:updated"
	EventNotification  = "notification"
	EventMessageNew    = "message:new"

	OpJoinTicket  = "join:ticket"
	OpLeaveTicket = "leave:ticket"
)

// Scope is a delivery channel: one ticket's room or one user's personal channel.
type Scope string

const (
	ticketScopePrefix = "ticket:"
	userScopePrefix   = "user:"
)

func TicketScope(ticketID string) Scope { return Scope(ticketScopePrefix + ticketID) }
func UserScope(userID string) Scope     { return Scope(userScopePrefix + userID) }

// TicketID returns the ticket id of a ticket scope.
func (s Scope) TicketID() (string, bool) {
	return strings.CutPrefix(string(s), ticketScopePrefix)
}

// Event is one live push. Scope selects the audience and is not sent on the wire.
type Event struct {
	Name  string `json:"event"`
	Scope Scope  `json:"-"`
	Data  any    `json:"data"`
}

// TicketUpdated is the ticket:updated payload.
type TicketUpdated struct {
	TicketID string `json:"ticketId"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
}

// MessageNew is the message:new payload relayed for the chat collaborator.
type MessageNew struct {
	TicketID  string `json:"ticketId"`
	MessageID string `json:"messageId"`
	AuthorID  string `json:"authorId"`
	Body      string `json:"body"`
}

// ScopeRequest is the payload of join:ticket and leave:ticket.
type ScopeRequest struct {
	TicketID string `json:"ticketId"`
}
