package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/lifecycle"
)

// CreateTicketRequest payload. CustomerID is only honoured for staff callers.
type CreateTicketRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Priority     domain.TicketPriority `json:"priority"`
	IssueType    domain.IssueType      `json:"issueType"`
	CustomerID   string                `json:"customerId"`
	AssignedToID *string               `json:"assignedToId"`
}

// NullableString distinguishes an absent key from an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// UpdateTicketRequest is a partial update; "assignedToId": null unassigns.
type UpdateTicketRequest struct {
	Status       *domain.TicketStatus   `json:"status"`
	Priority     *domain.TicketPriority `json:"priority"`
	IssueType    *domain.IssueType      `json:"issueType"`
	AssignedToID NullableString         `json:"assignedToId"`
	Title        *string                `json:"title"`
	Description  *string                `json:"description"`
}

// Changes converts the request into state machine input.
func (r UpdateTicketRequest) Changes() lifecycle.Changes {
	changes := lifecycle.Changes{
		Status:      r.Status,
		Priority:    r.Priority,
		IssueType:   r.IssueType,
		Title:       r.Title,
		Description: r.Description,
	}
	if r.AssignedToID.Set {
		if r.AssignedToID.Value == nil {
			changes.ClearAssignee = true
		} else {
			changes.AssignedToID = r.AssignedToID.Value
		}
	}
	return changes
}

// TicketResponse is the ticket as rendered to clients.
type TicketResponse struct {
	ID            string                `json:"id"`
	Number        int64                 `json:"number"`
	DisplayNumber string                `json:"displayNumber"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	IssueType     domain.IssueType      `json:"issueType"`
	CustomerID    string                `json:"customerId"`
	AssignedToID  *string               `json:"assignedToId"`
	SLADeadline   *time.Time            `json:"slaDeadline"`
	SLABreached   bool                  `json:"slaBreached"`
	ResolvedAt    *time.Time            `json:"resolvedAt"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
	Version       int64                 `json:"version"`
	NextStatuses  []domain.TicketStatus `json:"nextStatuses"`
}

// NewTicketResponse renders t.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	next := lifecycle.NextStatuses(t.Status)
	if next == nil {
		next = []domain.TicketStatus{}
	}
	return TicketResponse{
		ID:            t.ID,
		Number:        t.Number,
		DisplayNumber: t.DisplayNumber(),
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      t.Priority,
		IssueType:     t.IssueType,
		CustomerID:    t.CustomerID,
		AssignedToID:  t.AssignedToID,
		SLADeadline:   t.SLADeadline,
		SLABreached:   t.SLABreached,
		ResolvedAt:    t.ResolvedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		Version:       t.Version,
		NextStatuses:  next,
	}
}

// HistoryEntryResponse is one audit entry.
type HistoryEntryResponse struct {
	ID        string               `json:"id"`
	TicketID  string               `json:"ticketId"`
	ActorID   *string              `json:"actorId"`
	Action    domain.HistoryAction `json:"action"`
	Field     *string              `json:"field"`
	OldValue  *string              `json:"oldValue"`
	NewValue  *string              `json:"newValue"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// NewHistoryResponse renders entries, never returning nil.
func NewHistoryResponse(entries []domain.TicketHistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:        e.ID,
			TicketID:  e.TicketID,
			ActorID:   e.ActorID,
			Action:    e.Action,
			Field:     e.Field,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// UpdateTicketResponse carries the updated ticket and the entries just applied.
type UpdateTicketResponse struct {
	Ticket  TicketResponse         `json:"ticket"`
	History []HistoryEntryResponse `json:"history"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}
