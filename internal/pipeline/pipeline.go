// Package pipeline orchestrates one voice turn end to end: transcribe,
// classify against the conversation so far, finalize a ticket when the
// record is complete, and synthesize the spoken reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/movemate-io/movemate/internal/speech"
	"github.com/movemate-io/movemate/internal/ticket"
	"github.com/movemate-io/movemate/pkg/protocol"
)

// FallbackReply is returned when classification fails so the caller
// always gets a usable acknowledgement.
const FallbackReply = "Thanks! MoveMate captured your issue and will share updates once a team member picks it up."

// Classifier runs one classification turn and returns the merged
// conversation state.
type Classifier interface {
	Classify(ctx context.Context, transcript, conversationID string) (protocol.Classification, error)
}

// Result is the assembled response for one utterance.
type Result struct {
	Transcript     string
	Reply          string
	Classification *protocol.Classification
	Ticket         *protocol.Ticket
	// Audio is the synthesized MP3 reply; nil when synthesis failed or
	// was skipped. Absence never fails the call.
	Audio []byte
}

// Pipeline wires the external capabilities together. It holds no
// per-conversation state of its own.
type Pipeline struct {
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	classifier  Classifier
	tickets     ticket.Store
	logger      *slog.Logger
}

// New creates a Pipeline. The synthesizer may be nil, in which case
// responses are text-only.
func New(t speech.Transcriber, s speech.Synthesizer, c Classifier, store ticket.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		transcriber: t,
		synthesizer: s,
		classifier:  c,
		tickets:     store,
		logger:      logger,
	}
}

// HandleUtterance processes one recorded turn. Only transcription
// failure aborts the call; classification, persistence, and synthesis
// failures degrade the response instead.
func (p *Pipeline) HandleUtterance(ctx context.Context, audio []byte, filename, conversationID, ownerID string) (*Result, error) {
	if p.transcriber == nil {
		return nil, fmt.Errorf("%w: no transcriber configured", speech.ErrTranscription)
	}
	transcript, err := p.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return nil, err
	}
	if transcript == "" {
		return &Result{}, nil
	}

	res := p.HandleTranscript(ctx, transcript, conversationID, ownerID)

	if p.synthesizer != nil && res.Reply != "" {
		replyAudio, err := p.synthesizer.Synthesize(ctx, res.Reply)
		if err != nil {
			p.logger.Warn("reply synthesis failed, responding text-only",
				"conversation", conversationID, "error", err)
		} else {
			res.Audio = replyAudio
		}
	}
	return res, nil
}

// HandleTranscript runs the classify-and-finalize half of a turn. Used
// directly for text messages, where there is nothing to transcribe or
// speak.
func (p *Pipeline) HandleTranscript(ctx context.Context, transcript, conversationID, ownerID string) *Result {
	res := &Result{Transcript: transcript, Reply: FallbackReply}

	state, err := p.classifier.Classify(ctx, transcript, conversationID)
	if err != nil {
		p.logger.Warn("classification failed", "conversation", conversationID, "error", err)
		return res
	}
	res.Classification = &state
	if state.Reply != "" {
		res.Reply = state.Reply
	}

	if !state.SchemaComplete() {
		p.logger.Info("ticket not created, more info needed", "conversation", conversationID)
		return res
	}

	created, err := p.tickets.CreateTicket(ctx, ticket.CreateRequest{
		Transcript:            transcript,
		Category:              state.Category,
		IssueType:             state.IssueType,
		Location:              state.Location,
		Urgency:               state.Urgency,
		Summary:               state.Summary,
		Owner:                 ownerID,
		ConversationStartedAt: state.Timestamp,
	})
	if err != nil {
		// The resident still gets their reply; the conversation stays
		// complete, so a retry turn can finalize it.
		p.logger.Error("ticket persistence failed", "conversation", conversationID, "error", err)
		return res
	}

	res.Ticket = created
	p.logger.Info("ticket created",
		"ticket", created.ID,
		"team", created.Team,
		"queue_position", created.QueuePosition,
		"conversation", conversationID)
	return res
}

// IsTranscriptionError reports whether err came from the
// speech-to-text capability.
func IsTranscriptionError(err error) bool {
	return errors.Is(err, speech.ErrTranscription)
}
