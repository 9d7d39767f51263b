// Package telegram lets residents report issues to the MoveMate bot by
// voice note or text. Each chat is one conversation; turns run through
// the same pipeline as the REST surface.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/movemate-io/movemate/internal/pipeline"
)

// Config holds Telegram connector configuration.
type Config struct {
	Token     string  // Bot token from @BotFather
	AllowFrom []int64 // Allowed Telegram user IDs (empty = allow all)
}

// Processor handles one conversation turn. Implemented by
// pipeline.Pipeline.
type Processor interface {
	HandleUtterance(ctx context.Context, audio []byte, filename, conversationID, ownerID string) (*pipeline.Result, error)
	HandleTranscript(ctx context.Context, transcript, conversationID, ownerID string) *pipeline.Result
}

// ConversationResetter discards accumulated conversation state, used by
// the /new command.
type ConversationResetter interface {
	Delete(conversationID string)
}

// Connector implements connector.Connector for Telegram.
type Connector struct {
	bot    *tgbotapi.BotAPI
	config Config
	proc   Processor
	convs  ConversationResetter
	logger *slog.Logger
	cancel context.CancelFunc
}

// New creates a new Telegram connector.
func New(cfg Config, proc Processor, convs ConversationResetter, logger *slog.Logger) (*Connector, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:    bot,
		config: cfg,
		proc:   proc,
		convs:  convs,
		logger: logger,
	}, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start begins long-polling for updates. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			c.handleUpdate(ctx, update)

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Connector) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	userID := msg.From.ID
	chatID := msg.Chat.ID
	convID := "telegram:" + strconv.FormatInt(chatID, 10)
	owner := "telegram:" + strconv.FormatInt(userID, 10)

	if len(c.config.AllowFrom) > 0 && !contains(c.config.AllowFrom, userID) {
		c.logger.Warn("unauthorized user", "user_id", userID, "username", msg.From.UserName)
		return
	}

	if msg.IsCommand() {
		c.handleCommand(chatID, convID, msg)
		return
	}

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	c.bot.Send(typing)

	var res *pipeline.Result
	switch {
	case msg.Voice != nil || msg.Audio != nil:
		audio, filename, err := c.downloadVoice(ctx, msg)
		if err != nil {
			c.logger.Error("voice download failed", "chat_id", chatID, "error", err)
			c.sendText(chatID, "Sorry, I couldn't fetch that voice message. Please try again.")
			return
		}
		res, err = c.proc.HandleUtterance(ctx, audio, filename, convID, owner)
		if err != nil {
			c.logger.Error("voice turn failed", "chat_id", chatID, "error", err)
			c.sendText(chatID, "Sorry, I couldn't make out that voice message. Could you try again or type it out?")
			return
		}
		if res.Transcript == "" {
			c.sendText(chatID, "I couldn't hear anything in that recording. Could you try again?")
			return
		}

	case msg.Text != "":
		res = c.proc.HandleTranscript(ctx, msg.Text, convID, owner)

	default:
		return
	}

	c.sendText(chatID, res.Reply)
	if len(res.Audio) > 0 {
		c.sendVoice(chatID, res.Audio)
	}
	if res.Ticket != nil {
		c.sendHTML(chatID, TicketNote(res.Ticket))
	}
}

func (c *Connector) handleCommand(chatID int64, convID string, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		c.sendText(chatID, "Hi! I'm MoveMate. Tell me about any issue in your residence, by voice note or text, and I'll get it to the right team.")

	case "new":
		c.convs.Delete(convID)
		c.sendText(chatID, "Starting fresh. What's going on?")

	case "help":
		help := strings.Join([]string{
			"Send a voice note or a text describing your issue.",
			"",
			"/new — Start over with a fresh report",
			"/help — Show this help message",
		}, "\n")
		c.sendText(chatID, help)

	default:
		c.sendText(chatID, "I don't know that command. Try /help.")
	}
}

func (c *Connector) sendText(chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		c.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (c *Connector) sendHTML(chatID int64, html string) {
	m := tgbotapi.NewMessage(chatID, html)
	m.ParseMode = "HTML"
	if _, err := c.bot.Send(m); err != nil {
		// Fallback to plain text if the HTML is rejected.
		m.Text = StripTags(html)
		m.ParseMode = ""
		if _, err := c.bot.Send(m); err != nil {
			c.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
		}
	}
}

func (c *Connector) sendVoice(chatID int64, audio []byte) {
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "reply.mp3", Bytes: audio})
	if _, err := c.bot.Send(voice); err != nil {
		c.logger.Warn("telegram voice send failed", "chat_id", chatID, "error", err)
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
