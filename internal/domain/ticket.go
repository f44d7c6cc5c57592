package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingCustomer TicketStatus = "WAITING_CUSTOMER"
	TicketStatusEscalated       TicketStatus = "ESCALATED"
	TicketStatusReopened        TicketStatus = "REOPENED"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
)

// AllTicketStatuses lists every status in declaration order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusWaitingCustomer,
	TicketStatusEscalated,
	TicketStatusReopened,
	TicketStatusResolved,
	TicketStatusClosed,
}

// IsTerminal reports whether the status stops the SLA clock. Terminal tickets can still be reopened.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

func (s TicketStatus) Valid() bool {
	for _, candidate := range AllTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// IssueType categorizes what the customer needs help with.
type IssueType string

const (
	IssueTypeTechnical      IssueType = "TECHNICAL"
	IssueTypeBilling        IssueType = "BILLING"
	IssueTypeAccount        IssueType = "ACCOUNT"
	IssueTypeDelivery       IssueType = "DELIVERY"
	IssueTypeFeatureRequest IssueType = "FEATURE_REQUEST"
	IssueTypeGeneral        IssueType = "GENERAL"
)

func (t IssueType) Valid() bool {
	switch t {
	case IssueTypeTechnical, IssueTypeBilling, IssueTypeAccount, IssueTypeDelivery,
		IssueTypeFeatureRequest, IssueTypeGeneral:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	Number       int64
	Title        string
	Description  string
	Status       TicketStatus
	Priority     TicketPriority
	IssueType    IssueType
	CustomerID   string
	AssignedToID *string
	SLADeadline  *time.Time
	SLABreached  bool
	ResolvedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Version increments on every persisted change and backs optimistic updates.
	Version int64
}

// DisplayNumber renders the human-readable ticket reference.
func (t *Ticket) DisplayNumber() string {
	return fmt.Sprintf("TCK-%06d", t.Number)
}

// IsAssignedTo reports whether userID is the current assignee.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

// Clone returns a deep copy so callers can diff before/after snapshots.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.AssignedToID = cloneString(t.AssignedToID)
	cp.SLADeadline = cloneTime(t.SLADeadline)
	cp.ResolvedAt = cloneTime(t.ResolvedAt)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
