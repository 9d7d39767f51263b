package ticket

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/movemate-io/movemate/internal/route"
	"github.com/movemate-io/movemate/pkg/protocol"
)

const ticketColumns = `id, transcript, category, issue_type, location, urgency, summary,
	team, status, queue_position, owner, conversation_started_at, created_at, updated_at, closed_at`

// SQLiteStore implements Store using SQLite.
//
// Queue positions are assigned inside a single transaction (count of
// open tickets for the team, plus one), so concurrent CreateTicket
// calls cannot produce duplicate positions. The reconciler still runs
// to heal history that predates this store or was edited externally.
type SQLiteStore struct {
	db  *sql.DB
	hub *Hub
	now func() time.Time
}

// StoreOption configures a SQLiteStore.
type StoreOption func(*SQLiteStore)

// WithHub attaches a change-notification hub.
func WithHub(h *Hub) StoreOption {
	return func(s *SQLiteStore) { s.hub = h }
}

// WithClock injects a time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string, opts ...StoreOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	// A single connection serializes writers, so the count-then-insert
	// in CreateTicket cannot interleave or hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id                      TEXT PRIMARY KEY,
			transcript              TEXT NOT NULL DEFAULT '',
			category                TEXT NOT NULL DEFAULT '',
			issue_type              TEXT NOT NULL DEFAULT '',
			location                TEXT NOT NULL DEFAULT '',
			urgency                 TEXT NOT NULL DEFAULT '',
			summary                 TEXT NOT NULL DEFAULT '',
			team                    TEXT NOT NULL DEFAULT '',
			status                  TEXT NOT NULL DEFAULT 'open',
			queue_position          INTEGER NOT NULL DEFAULT 0,
			owner                   TEXT NOT NULL DEFAULT '',
			conversation_started_at TEXT NOT NULL DEFAULT '',
			created_at              TEXT NOT NULL,
			updated_at              TEXT NOT NULL,
			closed_at               TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_team_status ON tickets(team, status);
		CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateTicket(ctx context.Context, req CreateRequest) (*protocol.Ticket, error) {
	team := route.DetermineTeam(route.Fields{
		Team:      req.Team,
		Category:  req.Category,
		IssueType: req.IssueType,
		Summary:   req.Summary,
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ticket store: begin: %w", err)
	}
	defer tx.Rollback()

	var openCount int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE team = ? AND status IN ('open', 'in_progress')`,
		string(team)).Scan(&openCount)
	if err != nil {
		return nil, fmt.Errorf("ticket store: count open: %w", err)
	}

	now := s.now().UTC()
	t := &protocol.Ticket{
		ID:                    uuid.NewString(),
		Transcript:            req.Transcript,
		Category:              req.Category,
		IssueType:             req.IssueType,
		Location:              req.Location,
		Urgency:               req.Urgency,
		Summary:               req.Summary,
		Team:                  team,
		Status:                protocol.TicketOpen,
		QueuePosition:         openCount + 1,
		Owner:                 req.Owner,
		ConversationStartedAt: req.ConversationStartedAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Transcript, t.Category, t.IssueType, t.Location, t.Urgency, t.Summary,
		string(t.Team), string(t.Status), t.QueuePosition, t.Owner, t.ConversationStartedAt,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), nil)
	if err != nil {
		return nil, fmt.Errorf("ticket store: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ticket store: commit: %w", err)
	}

	s.notify(Event{Kind: EventCreated, Ticket: t})
	return t, nil
}

func (s *SQLiteStore) Get(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q not found", id)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(filter Filter) ([]*protocol.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any

	if filter.Team != "" {
		query += " AND team = ?"
		args = append(args, string(filter.Team))
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.OpenOnly {
		query += " AND status IN ('open', 'in_progress')"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	return s.queryTickets(query, args...)
}

func (s *SQLiteStore) All() ([]*protocol.Ticket, error) {
	return s.queryTickets(`SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at`)
}

func (s *SQLiteStore) UpdateStatus(id string, status protocol.TicketStatus) error {
	now := formatTime(s.now().UTC())
	var closedAt any
	if status == protocol.TicketClosed {
		closedAt = now
	}

	result, err := s.db.Exec(`UPDATE tickets SET status = ?, updated_at = ?, closed_at = ? WHERE id = ?`,
		string(status), now, closedAt, id)
	if err != nil {
		return fmt.Errorf("ticket store: update status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("ticket %q not found", id)
	}

	s.notifyByID(EventStatusChanged, id)
	return nil
}

func (s *SQLiteStore) UpdateQueuePosition(id string, position int) error {
	result, err := s.db.Exec(`UPDATE tickets SET queue_position = ?, updated_at = ? WHERE id = ?`,
		position, formatTime(s.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("ticket store: update queue position: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("ticket %q not found", id)
	}

	s.notifyByID(EventQueueChanged, id)
	return nil
}

func (s *SQLiteStore) ApplyCorrections(corrections []Correction) error {
	if len(corrections) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ticket store: begin: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now().UTC())
	for _, c := range corrections {
		if c.QueuePosition != nil {
			if _, err := tx.Exec(`UPDATE tickets SET queue_position = ?, updated_at = ? WHERE id = ?`,
				*c.QueuePosition, now, c.ID); err != nil {
				return fmt.Errorf("ticket store: correct queue position: %w", err)
			}
		}
		if c.Team != nil {
			if _, err := tx.Exec(`UPDATE tickets SET team = ?, updated_at = ? WHERE id = ?`,
				string(*c.Team), now, c.ID); err != nil {
				return fmt.Errorf("ticket store: correct team: %w", err)
			}
		}
		if c.Status != nil {
			if _, err := tx.Exec(`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
				string(*c.Status), now, c.ID); err != nil {
				return fmt.Errorf("ticket store: correct status: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ticket store: commit corrections: %w", err)
	}

	for _, c := range corrections {
		s.notifyByID(EventQueueChanged, c.ID)
	}
	return nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

func (s *SQLiteStore) notify(ev Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

func (s *SQLiteStore) notifyByID(kind EventKind, id string) {
	if s.hub == nil {
		return
	}
	if t, err := s.Get(id); err == nil {
		s.hub.Publish(Event{Kind: kind, Ticket: t})
	}
}

func (s *SQLiteStore) queryTickets(query string, args ...any) ([]*protocol.Ticket, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: query: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var team, status, createdAt, updatedAt string
	var closedAt *string

	err := row.Scan(&t.ID, &t.Transcript, &t.Category, &t.IssueType, &t.Location, &t.Urgency,
		&t.Summary, &team, &status, &t.QueuePosition, &t.Owner, &t.ConversationStartedAt,
		&createdAt, &updatedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	t.Team = protocol.Team(team)
	t.Status = protocol.TicketStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if closedAt != nil {
		ct, err := time.Parse(time.RFC3339Nano, *closedAt)
		if err == nil {
			t.ClosedAt = &ct
		}
	}
	return &t, nil
}
