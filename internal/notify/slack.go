// Package notify pushes new-ticket heads-ups to staff Slack channels,
// one channel per team, driven off the ticket event hub.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/movemate-io/movemate/internal/ticket"
	"github.com/movemate-io/movemate/pkg/protocol"
)

// Config holds Slack notifier configuration.
type Config struct {
	BotToken string `json:"bot_token"` // xoxb-... Bot User OAuth Token
	// Channels maps team names ("maintenance", "ra") to channel IDs.
	Channels map[string]string `json:"channels"`
	// DefaultChannel receives tickets for teams without a mapping.
	DefaultChannel string `json:"default_channel,omitempty"`
}

// poster is the slice of the Slack client the notifier uses.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier forwards ticket-created events to Slack.
type Notifier struct {
	api    poster
	cfg    Config
	logger *slog.Logger
}

// New creates a Notifier.
func New(cfg Config, logger *slog.Logger, opts ...slack.Option) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("notify: bot_token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		api:    slack.New(cfg.BotToken, opts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run subscribes to the hub and posts each created ticket. Blocks until
// the context is cancelled.
func (n *Notifier) Run(ctx context.Context, hub *ticket.Hub) {
	events, cancel := hub.Subscribe()
	defer cancel()

	n.logger.Info("slack notifier started")
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != ticket.EventCreated || ev.Ticket == nil {
				continue
			}
			n.notify(ctx, ev.Ticket)
		case <-ctx.Done():
			n.logger.Info("slack notifier stopped")
			return
		}
	}
}

func (n *Notifier) notify(ctx context.Context, t *protocol.Ticket) {
	channel := n.channelFor(t.Team)
	if channel == "" {
		n.logger.Debug("no channel for team, skipping", "team", t.Team, "ticket", t.ID)
		return
	}

	_, _, err := n.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(Message(t), false))
	if err != nil {
		n.logger.Error("slack notification failed", "ticket", t.ID, "channel", channel, "error", err)
		return
	}
	n.logger.Info("ticket posted to slack", "ticket", t.ID, "channel", channel)
}

func (n *Notifier) channelFor(team protocol.Team) string {
	if ch, ok := n.cfg.Channels[string(team)]; ok {
		return ch
	}
	return n.cfg.DefaultChannel
}

// Message renders the Slack text for a new ticket.
func Message(t *protocol.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":ticket: *New %s ticket* (queue #%d)\n", t.Team, t.QueuePosition)
	fmt.Fprintf(&b, "> %s\n", t.Summary)
	fmt.Fprintf(&b, "*Location:* %s · *Urgency:* %s", t.Location, t.Urgency)
	if t.Owner != "" {
		fmt.Fprintf(&b, " · *Reporter:* %s", t.Owner)
	}
	fmt.Fprintf(&b, "\n`%s`", t.ID)
	return b.String()
}
