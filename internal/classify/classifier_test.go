package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/movemate-io/movemate/internal/conversation"
	"github.com/movemate-io/movemate/pkg/protocol"
)

// fakeProvider returns canned responses and records requests.
type fakeProvider struct {
	responses []string
	err       error
	requests  []protocol.ChatRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(_ context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &protocol.ChatResponse{Content: f.responses[idx]}, nil
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestClassifier(t *testing.T, prov *fakeProvider) (*Classifier, *conversation.Store) {
	t.Helper()
	conv := conversation.NewStore()
	return New(prov, conv, WithClock(fixedClock())), conv
}

func TestClassifySingleTurn(t *testing.T) {
	prov := &fakeProvider{responses: []string{`{
		"category": "Maintenance",
		"issue_type": "Water leak",
		"location": "John Adams Dorm 204",
		"urgency": "MEDIUM",
		"summary": "Leak under the sink in John Adams 204",
		"reply": "Got it! A ticket has been filed.",
		"needs_more_info": false
	}`}}
	c, _ := newTestClassifier(t, prov)

	got, err := c.Classify(context.Background(), "There's a leak under my sink in John Adams 204", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Category != "Maintenance" || got.Urgency != "MEDIUM" {
		t.Errorf("classification = %+v", got)
	}
	if !got.SchemaComplete() {
		t.Error("expected schema-complete state")
	}
	if got.Timestamp != "2025-03-01T09:00:00Z" {
		t.Errorf("timestamp not defaulted: %q", got.Timestamp)
	}
}

func TestClassifyMultiTurnPreservesFields(t *testing.T) {
	prov := &fakeProvider{responses: []string{
		`{
			"category": "Resident Life",
			"issue_type": "Noise disturbance",
			"location": "Unknown",
			"urgency": "MEDIUM",
			"summary": "Roommate plays loud music at night",
			"reply": "Which building and room is this in?",
			"needs_more_info": true
		}`,
		`{
			"location": "Southwest Tower 512",
			"reply": "Thanks for reporting! Your ticket has been created.",
			"needs_more_info": false
		}`,
	}}
	c, _ := newTestClassifier(t, prov)

	first, err := c.Classify(context.Background(), "My roommate keeps playing loud music at night", "c1")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if first.SchemaComplete() {
		t.Error("turn 1 should not be complete (location unknown)")
	}

	second, err := c.Classify(context.Background(), "It's in Southwest Tower, room 512", "c1")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if second.Category != "Resident Life" || second.IssueType != "Noise disturbance" {
		t.Errorf("turn 1 fields regressed: %+v", second)
	}
	if second.Location != "Southwest Tower 512" {
		t.Errorf("location = %q", second.Location)
	}
	if !second.SchemaComplete() {
		t.Error("turn 2 should be schema-complete")
	}

	// The second prompt must carry the accumulated state.
	sys := prov.requests[1].Messages[0].Content
	if !strings.Contains(sys, "Noise disturbance") {
		t.Error("second prompt missing prior state")
	}
}

func TestClassifyTimestampEchoedAcrossTurns(t *testing.T) {
	prov := &fakeProvider{responses: []string{
		`{"category": "Maintenance", "needs_more_info": true, "timestamp": "2025-03-01T09:00:00Z"}`,
		`{"location": "West Hall 3", "needs_more_info": true, "timestamp": "2099-01-01T00:00:00Z"}`,
	}}
	c, _ := newTestClassifier(t, prov)

	c.Classify(context.Background(), "the heat is broken", "c1")
	got, err := c.Classify(context.Background(), "West Hall room 3", "c1")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if got.Timestamp != "2025-03-01T09:00:00Z" {
		t.Errorf("timestamp drifted: %q", got.Timestamp)
	}
}

func TestClassifyInvalidJSON(t *testing.T) {
	prov := &fakeProvider{responses: []string{`I could not classify that, sorry!`}}
	c, conv := newTestClassifier(t, prov)

	conv.Update("c1", protocol.Classification{Category: "Maintenance"})

	_, err := c.Classify(context.Background(), "hello", "c1")
	if !errors.Is(err, ErrClassification) {
		t.Fatalf("error = %v, want ErrClassification", err)
	}

	// A failed turn must not mutate the stored state.
	if got := conv.Get("c1"); got.Category != "Maintenance" || got.Location != "" {
		t.Errorf("state mutated on failed turn: %+v", got)
	}
}

func TestClassifyEmptyResponse(t *testing.T) {
	prov := &fakeProvider{responses: []string{""}}
	c, _ := newTestClassifier(t, prov)

	_, err := c.Classify(context.Background(), "hello", "c1")
	if !errors.Is(err, ErrClassification) {
		t.Errorf("error = %v, want ErrClassification", err)
	}
}

func TestClassifyProviderError(t *testing.T) {
	prov := &fakeProvider{err: fmt.Errorf("api error (status 500)")}
	c, _ := newTestClassifier(t, prov)

	_, err := c.Classify(context.Background(), "hello", "c1")
	if !errors.Is(err, ErrClassification) {
		t.Errorf("error = %v, want ErrClassification", err)
	}
}

func TestClassifyFencedJSON(t *testing.T) {
	prov := &fakeProvider{responses: []string{
		"```json\n{\"category\": \"Maintenance\", \"urgency\": \"low\", \"needs_more_info\": true}\n```",
	}}
	c, _ := newTestClassifier(t, prov)

	got, err := c.Classify(context.Background(), "scuffed paint", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Category != "Maintenance" {
		t.Errorf("category = %q", got.Category)
	}
	if got.Urgency != "LOW" {
		t.Errorf("urgency not normalized: %q", got.Urgency)
	}
}

func TestClassifyRequestShape(t *testing.T) {
	prov := &fakeProvider{responses: []string{`{"needs_more_info": true}`}}
	c, _ := newTestClassifier(t, prov)

	c.Classify(context.Background(), "hi there", "c1")

	req := prov.requests[0]
	if !req.JSONResponse {
		t.Error("expected JSON response format")
	}
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Error("expected temperature 0")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	sys := req.Messages[0].Content
	for _, want := range []string{"needs_more_info", "HIGH", "Field preservation", "timestamp"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if !strings.Contains(req.Messages[1].Content, "hi there") {
		t.Error("user message missing transcript")
	}
}
