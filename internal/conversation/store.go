// Package conversation holds the in-flight structured state for each
// voice-reporting session, keyed by conversation ID. State is
// in-memory only; an abandoned conversation simply starts over after a
// process restart.
package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/movemate-io/movemate/pkg/protocol"
)

// DefaultIdleTimeout is how long a conversation survives without a Get
// or Update before it is evicted.
const DefaultIdleTimeout = 30 * time.Minute

type entry struct {
	state     protocol.Classification
	expiresAt time.Time
}

// Store accumulates classification state per conversation with idle
// expiry. Every Get and Update pushes the expiry deadline out; Sweep
// reclaims entries whose deadline has passed.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout overrides the 30-minute idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithClock injects a time source, used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty conversation store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		timeout: DefaultIdleTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the accumulated state for a conversation, or a zero
// record if the conversation is unknown or has idled out. A hit resets
// the idle deadline.
func (s *Store) Get(conversationID string) protocol.Classification {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(conversationID)
	if e == nil {
		return protocol.Classification{}
	}
	e.expiresAt = s.now().Add(s.timeout)
	return e.state
}

// Update merges a partial classification over the stored state and
// returns the merged record, creating the entry if needed. Merging is
// sticky: an incoming empty or "Unknown" value never clears a field
// that already holds information, and the conversation timestamp is set
// once and kept.
func (s *Store) Update(conversationID string, partial protocol.Classification) protocol.Classification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior protocol.Classification
	if e := s.live(conversationID); e != nil {
		prior = e.state
	}

	merged := Merge(prior, partial)
	s.entries[conversationID] = &entry{
		state:     merged,
		expiresAt: s.now().Add(s.timeout),
	}
	s.logger.Debug("conversation updated",
		"conversation", conversationID,
		"complete", merged.SchemaComplete())
	return merged
}

// Delete evicts a conversation. Used on idle expiry and when the user
// starts a new conversation.
func (s *Store) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
}

// Sweep removes all conversations whose idle deadline has passed and
// returns how many were evicted. Expired entries are already invisible
// to Get and Update; the sweep reclaims their memory.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("idle conversations evicted", "count", evicted)
	}
	return evicted
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for _, e := range s.entries {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// live returns the entry for id if it exists and has not expired,
// deleting it otherwise. Caller holds the lock.
func (s *Store) live(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return nil
	}
	return e
}

// Merge applies the sticky-field rule field by field: a new non-empty
// value replaces the prior one, anything else preserves it. The
// timestamp is write-once. NeedsMoreInfo and Reply always reflect the
// latest turn.
func Merge(prior, next protocol.Classification) protocol.Classification {
	out := protocol.Classification{
		Category:      stick(prior.Category, next.Category),
		IssueType:     stick(prior.IssueType, next.IssueType),
		Location:      stick(prior.Location, next.Location),
		Urgency:       stick(prior.Urgency, next.Urgency),
		Summary:       stick(prior.Summary, next.Summary),
		Reply:         next.Reply,
		NeedsMoreInfo: next.NeedsMoreInfo,
		Timestamp:     prior.Timestamp,
	}
	if out.Reply == "" {
		out.Reply = prior.Reply
	}
	if out.Timestamp == "" {
		out.Timestamp = next.Timestamp
	}
	return out
}

func stick(prior, next string) string {
	if protocol.FieldSet(next) {
		return next
	}
	return prior
}
