package domain

// SLAConfig is a configured policy row. A nil IssueType applies to every category of the priority.
type SLAConfig struct {
	ID                   string         `json:"id"`
	Priority             TicketPriority `json:"priority"`
	IssueType            *IssueType     `json:"issueType"`
	FirstResponseMinutes int            `json:"firstResponseMinutes"`
	ResolutionMinutes    int            `json:"resolutionMinutes"`
}

// SLAPolicy is the resolved time budget for a ticket.
type SLAPolicy struct {
	FirstResponseMinutes int `json:"firstResponseMinutes" yaml:"first_response_minutes"`
	ResolutionMinutes    int `json:"resolutionMinutes" yaml:"resolution_minutes"`
}
