// Package reconcile recomputes queue positions and backfills missing
// team/status fields across all stored tickets. It is the converging
// correction for any history that predates routing or was edited
// outside the store.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/movemate-io/movemate/internal/route"
	"github.com/movemate-io/movemate/internal/ticket"
	"github.com/movemate-io/movemate/pkg/protocol"
)

// Reconciler corrects queue state. Safe to run repeatedly and
// concurrently with live ticket writes; a pass that races a write is
// simply corrected by the next pass.
type Reconciler struct {
	store  ticket.Store
	logger *slog.Logger
}

// New creates a Reconciler over the given store.
func New(store ticket.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile loads every ticket, resolves missing teams from the
// category, ranks each team's open tickets by creation time, and
// batch-writes only the fields that differ from the computed values.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tickets, err := r.store.All()
	if err != nil {
		return fmt.Errorf("reconcile: load tickets: %w", err)
	}

	queues := make(map[protocol.Team][]*protocol.Ticket)
	for _, t := range tickets {
		team := t.Team
		if team == "" {
			team = route.TeamFromCategory(t.Category)
		}
		if team == "" {
			// No team and no usable category: leave the ticket alone.
			continue
		}
		if t.IsOpen() {
			queues[team] = append(queues[team], t)
		}
	}

	var corrections []ticket.Correction
	for team, queue := range queues {
		sort.SliceStable(queue, func(i, j int) bool {
			a, b := queue[i].CreatedAt, queue[j].CreatedAt
			// Unparseable/missing timestamps sort last.
			if a.IsZero() {
				return false
			}
			if b.IsZero() {
				return true
			}
			return a.Before(b)
		})

		for i, t := range queue {
			c := ticket.Correction{ID: t.ID}
			changed := false

			if want := i + 1; t.QueuePosition != want {
				pos := want
				c.QueuePosition = &pos
				changed = true
			}
			if t.Team == "" {
				tm := team
				c.Team = &tm
				changed = true
			}
			if t.Status == "" {
				st := protocol.TicketOpen
				c.Status = &st
				changed = true
			}
			if changed {
				corrections = append(corrections, c)
			}
		}
	}

	if len(corrections) == 0 {
		return nil
	}
	if err := r.store.ApplyCorrections(corrections); err != nil {
		return fmt.Errorf("reconcile: apply: %w", err)
	}
	r.logger.Info("queue reconciled", "corrections", len(corrections))
	return nil
}
