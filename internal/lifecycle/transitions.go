package lifecycle

import "github.com/helpdesk-labs/ticket-lifecycle/internal/domain"

var transitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen: {
		domain.TicketStatusInProgress, domain.TicketStatusWaitingCustomer, domain.TicketStatusEscalated,
		domain.TicketStatusResolved, domain.TicketStatusClosed,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusWaitingCustomer, domain.TicketStatusEscalated,
		domain.TicketStatusResolved, domain.TicketStatusClosed,
	},
	domain.TicketStatusWaitingCustomer: {
		domain.TicketStatusInProgress, domain.TicketStatusEscalated,
		domain.TicketStatusResolved, domain.TicketStatusClosed,
	},
	domain.TicketStatusEscalated: {
		domain.TicketStatusInProgress, domain.TicketStatusWaitingCustomer,
		domain.TicketStatusResolved, domain.TicketStatusClosed,
	},
	domain.TicketStatusReopened: {
		domain.TicketStatusInProgress, domain.TicketStatusWaitingCustomer, domain.TicketStatusEscalated,
		domain.TicketStatusResolved, domain.TicketStatusClosed,
	},
	domain.TicketStatusResolved: {domain.TicketStatusClosed, domain.TicketStatusReopened},
	domain.TicketStatusClosed:   {domain.TicketStatusReopened},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// Staying in the same status is not an edge.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s domain.TicketStatus) []domain.TicketStatus {
	next := transitions[s]
	out := make([]domain.TicketStatus, len(next))
	copy(out, next)
	return out
}

// isReopenEdge is the only edge a customer may take.
func isReopenEdge(from, to domain.TicketStatus) bool {
	return from.IsTerminal() && to == domain.TicketStatusReopened
}
