package ticket

import (
	"context"

	"github.com/movemate-io/movemate/pkg/protocol"
)

// CreateRequest carries the fields of a schema-complete conversation
// being finalized into a ticket.
type CreateRequest struct {
	Transcript string
	Category   string
	IssueType  string
	Location   string
	Urgency    string
	Summary    string
	// Team may be pre-set (e.g. by a retried call); the store routes
	// only when it is empty.
	Team  protocol.Team
	Owner string
	// ConversationStartedAt is the classification timestamp (RFC 3339).
	ConversationStartedAt string
}

// Filter constrains ticket list queries.
type Filter struct {
	Team   protocol.Team
	Status *protocol.TicketStatus
	// OpenOnly selects tickets with status open or in_progress.
	OpenOnly bool
	Limit    int // 0 = no limit
}

// Correction is a partial overwrite applied by the queue reconciler.
// Nil fields are left untouched.
type Correction struct {
	ID            string
	QueuePosition *int
	Team          *protocol.Team
	Status        *protocol.TicketStatus
}

// Store is the persistence interface for tickets.
type Store interface {
	// CreateTicket routes, assigns a queue position, and inserts a new
	// open ticket in one atomic step.
	CreateTicket(ctx context.Context, req CreateRequest) (*protocol.Ticket, error)
	// Get retrieves a ticket by ID.
	Get(id string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(filter Filter) ([]*protocol.Ticket, error)
	// All returns every ticket, used by the reconciler.
	All() ([]*protocol.Ticket, error)
	// UpdateStatus changes a ticket's status, maintaining closed_at.
	UpdateStatus(id string, status protocol.TicketStatus) error
	// UpdateQueuePosition overwrites a ticket's queue position. Used by
	// the reconciler and the dashboard sync, never by creation.
	UpdateQueuePosition(id string, position int) error
	// ApplyCorrections batch-writes reconciler corrections.
	ApplyCorrections(corrections []Correction) error
}
