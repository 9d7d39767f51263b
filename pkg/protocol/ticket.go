package protocol

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketClosed     TicketStatus = "closed"
)

// Team is the operational queue a ticket is routed to.
type Team string

const (
	TeamMaintenance Team = "maintenance"
	TeamRA          Team = "ra"
)

// Ticket is a finalized issue report routed to a team queue.
type Ticket struct {
	ID            string       `json:"id"`
	Transcript    string       `json:"transcript,omitempty"`
	Category      string       `json:"category"`
	IssueType     string       `json:"issue_type"`
	Location      string       `json:"location"`
	Urgency       string       `json:"urgency"`
	Summary       string       `json:"summary"`
	Team          Team         `json:"team"`
	Status        TicketStatus `json:"status"`
	QueuePosition int          `json:"queue_position"`
	Owner         string       `json:"owner,omitempty"`
	// ConversationStartedAt is when the originating conversation began,
	// carried over from the classification timestamp.
	ConversationStartedAt string     `json:"conversation_timestamp,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ClosedAt              *time.Time `json:"closed_at,omitempty"`
}

// IsOpen reports whether the ticket occupies a queue slot. Tickets with a
// missing status are treated as open; the reconciler backfills the field.
func (t *Ticket) IsOpen() bool {
	return t.Status == "" || t.Status == TicketOpen || t.Status == TicketInProgress
}

// ValidStatus reports whether s is a recognized ticket status.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketClosed:
		return true
	}
	return false
}

// ValidTeam reports whether tm is a recognized team.
func ValidTeam(tm Team) bool {
	return tm == TeamMaintenance || tm == TeamRA
}
