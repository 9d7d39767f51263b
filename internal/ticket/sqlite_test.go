package ticket

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/movemate-io/movemate/pkg/protocol"
)

func newTestStore(t *testing.T, opts ...StoreOption) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.db")
	s, err := NewSQLiteStore(path, opts...)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.DB().Close() })
	return s
}

func leakRequest() CreateRequest {
	return CreateRequest{
		Transcript: "there's a leak under my sink in John Adams 204",
		Category:   "Maintenance",
		IssueType:  "Water leak",
		Location:   "John Adams Dorm 204",
		Urgency:    "MEDIUM",
		Summary:    "Leak under the sink in John Adams 204",
		Owner:      "resident-42",
	}
}

func TestCreateTicket(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateTicket(context.Background(), leakRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Team != protocol.TeamMaintenance {
		t.Errorf("team = %q", created.Team)
	}
	if created.Status != protocol.TicketOpen {
		t.Errorf("status = %q", created.Status)
	}
	if created.QueuePosition != 1 {
		t.Errorf("queue position = %d, want 1", created.QueuePosition)
	}

	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Owner != "resident-42" {
		t.Errorf("owner = %q", got.Owner)
	}
	if got.Summary != created.Summary {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestCreateTicketQueuePositionsPerTeam(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		created, err := s.CreateTicket(ctx, leakRequest())
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if created.QueuePosition != i {
			t.Errorf("maintenance ticket %d: position = %d", i, created.QueuePosition)
		}
	}

	// RA queue is independent.
	raReq := CreateRequest{
		Category:  "Resident Life",
		IssueType: "Noise disturbance",
		Location:  "Southwest Tower 512",
		Urgency:   "MEDIUM",
		Summary:   "Roommate playing loud music at night",
	}
	created, err := s.CreateTicket(ctx, raReq)
	if err != nil {
		t.Fatalf("create ra: %v", err)
	}
	if created.Team != protocol.TeamRA {
		t.Errorf("team = %q", created.Team)
	}
	if created.QueuePosition != 1 {
		t.Errorf("ra position = %d, want 1", created.QueuePosition)
	}
}

func TestCreateTicketClosedTicketsDoNotCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.CreateTicket(ctx, leakRequest())
	if err := s.UpdateStatus(first.ID, protocol.TicketClosed); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := s.CreateTicket(ctx, leakRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.QueuePosition != 1 {
		t.Errorf("position = %d, want 1 (closed ticket should not hold a slot)", second.QueuePosition)
	}
}

func TestCreateTicketExplicitTeamPreserved(t *testing.T) {
	s := newTestStore(t)

	req := leakRequest()
	req.Team = protocol.TeamRA // retried call carries its earlier routing
	created, err := s.CreateTicket(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Team != protocol.TeamRA {
		t.Errorf("team = %q, want pre-set ra", created.Team)
	}
}

func TestConcurrentCreatesNoDuplicatePositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	positions := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.CreateTicket(ctx, leakRequest())
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			positions <- created.QueuePosition
		}()
	}
	wg.Wait()
	close(positions)

	seen := make(map[int]bool)
	for pos := range positions {
		if seen[pos] {
			t.Errorf("duplicate queue position %d", pos)
		}
		seen[pos] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Errorf("missing queue position %d", i)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t)
	created, _ := s.CreateTicket(context.Background(), leakRequest())

	if err := s.UpdateStatus(created.ID, protocol.TicketInProgress); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(created.ID)
	if got.Status != protocol.TicketInProgress {
		t.Errorf("status = %q", got.Status)
	}
	if got.ClosedAt != nil {
		t.Error("closed_at set on in_progress ticket")
	}

	if err := s.UpdateStatus(created.ID, protocol.TicketClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ = s.Get(created.ID)
	if got.ClosedAt == nil {
		t.Fatal("closed_at not set on close")
	}

	// Reopening clears closed_at.
	if err := s.UpdateStatus(created.ID, protocol.TicketOpen); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ = s.Get(created.ID)
	if got.ClosedAt != nil {
		t.Error("closed_at not cleared on reopen")
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateStatus("nope", protocol.TicketClosed); err == nil {
		t.Error("expected error for missing ticket")
	}
}

func TestUpdateQueuePosition(t *testing.T) {
	s := newTestStore(t)
	created, _ := s.CreateTicket(context.Background(), leakRequest())

	if err := s.UpdateQueuePosition(created.ID, 7); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(created.ID)
	if got.QueuePosition != 7 {
		t.Errorf("position = %d", got.QueuePosition)
	}
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m1, _ := s.CreateTicket(ctx, leakRequest())
	s.CreateTicket(ctx, leakRequest())
	s.UpdateStatus(m1.ID, protocol.TicketClosed)

	all, err := s.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d", len(all))
	}

	open, _ := s.List(Filter{OpenOnly: true})
	if len(open) != 1 {
		t.Errorf("len(open) = %d", len(open))
	}

	closed := protocol.TicketClosed
	closedList, _ := s.List(Filter{Status: &closed})
	if len(closedList) != 1 || closedList[0].ID != m1.ID {
		t.Errorf("closed list = %+v", closedList)
	}

	none, _ := s.List(Filter{Team: protocol.TeamRA})
	if len(none) != 0 {
		t.Errorf("ra list = %d entries", len(none))
	}
}

func TestApplyCorrections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateTicket(ctx, leakRequest())
	b, _ := s.CreateTicket(ctx, leakRequest())

	two, one := 2, 1
	ra := protocol.TeamRA
	open := protocol.TicketOpen
	err := s.ApplyCorrections([]Correction{
		{ID: a.ID, QueuePosition: &two, Team: &ra},
		{ID: b.ID, QueuePosition: &one, Status: &open},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	gotA, _ := s.Get(a.ID)
	if gotA.QueuePosition != 2 || gotA.Team != protocol.TeamRA {
		t.Errorf("a = pos %d team %q", gotA.QueuePosition, gotA.Team)
	}
	gotB, _ := s.Get(b.ID)
	if gotB.QueuePosition != 1 {
		t.Errorf("b = pos %d", gotB.QueuePosition)
	}
}

func TestHubNotifications(t *testing.T) {
	hub := NewHub()
	s := newTestStore(t, WithHub(hub))

	events, cancel := hub.Subscribe()
	defer cancel()

	created, _ := s.CreateTicket(context.Background(), leakRequest())

	select {
	case ev := <-events:
		if ev.Kind != EventCreated || ev.Ticket.ID != created.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no created event")
	}

	s.UpdateStatus(created.ID, protocol.TicketClosed)
	select {
	case ev := <-events:
		if ev.Kind != EventStatusChanged {
			t.Errorf("kind = %q", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no status event")
	}
}

func TestHubSubscribeCancel(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	if hub.Len() != 1 {
		t.Fatalf("Len = %d", hub.Len())
	}
	cancel()
	if hub.Len() != 0 {
		t.Errorf("Len after cancel = %d", hub.Len())
	}
	cancel() // second cancel is a no-op
}
