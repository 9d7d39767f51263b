// Package classify turns one voice-turn transcript plus the
// conversation's accumulated state into an updated structured record.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/movemate-io/movemate/internal/conversation"
	"github.com/movemate-io/movemate/internal/provider"
	"github.com/movemate-io/movemate/pkg/protocol"
)

// ErrClassification marks model failures: no content returned, or
// content that is not a valid JSON object. The conversation state is
// never modified on such a turn.
var ErrClassification = errors.New("classification failed")

// Classifier asks an LLM to classify a transcript in the context of the
// conversation so far, enforces the sticky-field merge in code, and
// stores the merged result.
type Classifier struct {
	prov   provider.Provider
	conv   *conversation.Store
	model  string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(c *Classifier) { c.model = model }
}

// WithClock injects a time source for first-turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a Classifier backed by the given provider and
// conversation store.
func New(prov provider.Provider, conv *conversation.Store, opts ...Option) *Classifier {
	c := &Classifier{
		prov:   prov,
		conv:   conv,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify runs one classification turn and returns the merged
// post-storage conversation state. On error the stored state is
// untouched.
func (c *Classifier) Classify(ctx context.Context, transcript, conversationID string) (protocol.Classification, error) {
	prior := c.conv.Get(conversationID)

	startedAt := prior.Timestamp
	if startedAt == "" {
		startedAt = c.now().UTC().Format(time.RFC3339)
	}
	promptState := prior
	promptState.Timestamp = startedAt

	zero := 0.0
	resp, err := c.prov.Chat(ctx, protocol.ChatRequest{
		Model: c.model,
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: buildSystemPrompt(promptState)},
			{Role: "user", Content: fmt.Sprintf("Transcript: %q", transcript)},
		},
		Temperature:  &zero,
		JSONResponse: true,
	})
	if err != nil {
		return protocol.Classification{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return protocol.Classification{}, fmt.Errorf("%w: model returned no content", ErrClassification)
	}

	parsed, err := parseClassification(resp.Content)
	if err != nil {
		return protocol.Classification{}, err
	}
	if parsed.Timestamp == "" {
		parsed.Timestamp = startedAt
	}

	merged := c.conv.Update(conversationID, parsed)
	c.logger.Info("transcript classified",
		"conversation", conversationID,
		"category", merged.Category,
		"urgency", merged.Urgency,
		"needs_more_info", merged.NeedsMoreInfo,
		"complete", merged.SchemaComplete(),
		"tokens", resp.Usage.TotalTokens())
	return merged, nil
}

// parseClassification decodes the model's JSON into the typed record.
// Models occasionally wrap JSON in a markdown fence even when asked not
// to; the fence is stripped before decoding.
func parseClassification(raw string) (protocol.Classification, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}

	var parsed protocol.Classification
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return protocol.Classification{}, fmt.Errorf("%w: invalid JSON: %v", ErrClassification, err)
	}

	parsed.Urgency = normalizeUrgency(parsed.Urgency)
	return parsed, nil
}

func normalizeUrgency(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	switch v {
	case "HIGH", "MEDIUM", "LOW", "":
		return v
	}
	// Anything off-rubric is kept verbatim but uppercased; the merge
	// treats it as a filled field either way.
	return v
}
