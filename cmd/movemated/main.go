// Command movemated is the MoveMate daemon: it ingests resident issue
// reports over REST, Telegram, and call webhooks, classifies them into
// tickets, and keeps the per-team queues consistent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	apiPkg "github.com/movemate-io/movemate/internal/api"
	"github.com/movemate-io/movemate/internal/classify"
	"github.com/movemate-io/movemate/internal/config"
	"github.com/movemate-io/movemate/internal/connector/telegram"
	"github.com/movemate-io/movemate/internal/connector/webhook"
	"github.com/movemate-io/movemate/internal/conversation"
	"github.com/movemate-io/movemate/internal/logbuf"
	"github.com/movemate-io/movemate/internal/notify"
	"github.com/movemate-io/movemate/internal/pipeline"
	"github.com/movemate-io/movemate/internal/provider"
	"github.com/movemate-io/movemate/internal/reconcile"
	"github.com/movemate-io/movemate/internal/scheduler"
	"github.com/movemate-io/movemate/internal/speech"
	"github.com/movemate-io/movemate/internal/ticket"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("movemated starting", "store", cfg.Store.Path)

	// 1. Classification provider
	providers := make(map[string]provider.Provider)
	for name, pcfg := range cfg.Providers {
		switch pcfg.Type {
		case "anthropic":
			var opts []provider.AnthropicOption
			if pcfg.BaseURL != "" {
				opts = append(opts, provider.WithAnthropicBaseURL(pcfg.BaseURL))
			}
			if pcfg.Model != "" {
				opts = append(opts, provider.WithAnthropicModel(pcfg.Model))
			}
			providers[name] = provider.NewAnthropic(pcfg.APIKey, opts...)
		default: // "openai" or empty
			var opts []provider.OpenAIOption
			if pcfg.BaseURL != "" {
				opts = append(opts, provider.WithBaseURL(pcfg.BaseURL))
			}
			if pcfg.Model != "" {
				opts = append(opts, provider.WithModel(pcfg.Model))
			}
			providers[name] = provider.NewOpenAI(pcfg.APIKey, opts...)
		}
		logger.Info("provider initialized", "name", name, "type", pcfg.Type, "model", pcfg.Model)
	}
	defaultProv := providers["default"]

	// 2. Ticket store with change hub
	os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755)
	hub := ticket.NewHub()
	store, err := ticket.NewSQLiteStore(cfg.Store.Path, ticket.WithHub(hub))
	if err != nil {
		logger.Error("failed to open ticket store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}

	// 3. Conversation state + classifier + speech
	convs := conversation.NewStore(
		conversation.WithIdleTimeout(time.Duration(cfg.Conversation.IdleTimeoutMinutes)*time.Minute),
		conversation.WithLogger(logger.With("component", "conversation")),
	)
	classifier := classify.New(defaultProv, convs,
		classify.WithModel(cfg.Providers["default"].Model),
		classify.WithLogger(logger.With("component", "classify")),
	)

	var transcriber speech.Transcriber
	var synthesizer speech.Synthesizer
	if cfg.Speech.APIKey != "" {
		var opts []speech.ClientOption
		if cfg.Speech.BaseURL != "" {
			opts = append(opts, speech.WithBaseURL(cfg.Speech.BaseURL))
		}
		if cfg.Speech.TranscribeModel != "" {
			opts = append(opts, speech.WithTranscribeModel(cfg.Speech.TranscribeModel))
		}
		if cfg.Speech.SpeechModel != "" {
			opts = append(opts, speech.WithSpeechModel(cfg.Speech.SpeechModel, "nova"))
		}
		sc := speech.NewOpenAIClient(cfg.Speech.APIKey, opts...)
		transcriber, synthesizer = sc, sc
	} else {
		logger.Warn("no speech api key configured, voice turns disabled")
	}

	pipe := pipeline.New(transcriber, synthesizer, classifier, store, logger.With("component", "pipeline"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Background jobs: queue reconciler + idle-conversation sweep
	reconciler := reconcile.New(store, logger.With("component", "reconcile"))
	sched := scheduler.New(logger.With("component", "scheduler"))
	if err := sched.AddJob("queue-reconcile", cfg.Reconcile.Interval, func() {
		if err := reconciler.Reconcile(ctx); err != nil && ctx.Err() == nil {
			logger.Error("reconcile pass failed", "error", err)
		}
	}); err != nil {
		logger.Error("failed to schedule reconciler", "error", err)
		os.Exit(1)
	}
	if err := sched.AddJob("conversation-sweep", "@every 1m", func() {
		if n := convs.Sweep(); n > 0 {
			logger.Info("idle conversations discarded", "count", n)
		}
	}); err != nil {
		logger.Error("failed to schedule sweep", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// Startup backfill shortly after boot so restarts converge fast.
	go func() {
		select {
		case <-time.After(2 * time.Second):
			if err := reconciler.Reconcile(ctx); err != nil && ctx.Err() == nil {
				logger.Error("startup reconcile failed", "error", err)
			}
		case <-ctx.Done():
		}
	}()

	// 5. Staff notifications
	if cfg.Notify.Slack != nil {
		notifier, err := notify.New(notify.Config{
			BotToken:       cfg.Notify.Slack.BotToken,
			Channels:       cfg.Notify.Slack.Channels,
			DefaultChannel: cfg.Notify.Slack.DefaultChannel,
		}, logger.With("component", "notify"))
		if err != nil {
			logger.Error("failed to init slack notifier", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "slack-notifier", func() { notifier.Run(ctx, hub) })
	}

	// 6. Telegram connector
	if cfg.Connectors.Telegram != nil {
		tgConn, err := telegram.New(
			telegram.Config{
				Token:     cfg.Connectors.Telegram.Token,
				AllowFrom: cfg.Connectors.Telegram.AllowFrom,
			},
			pipe, convs,
			logger.With("connector", "telegram"),
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
	}

	// 7. API server, with the call webhook mounted when configured
	apiSrv := apiPkg.NewServer(pipe, store, convs, hub, apiPkg.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Key:  cfg.Server.Key,
	}, logger.With("component", "api"), logBuf)

	if cfg.Connectors.CallWebhook != nil {
		apiSrv.MountWebhook(webhook.New(webhook.Config{
			Secret:      cfg.Connectors.CallWebhook.Secret,
			BearerToken: cfg.Connectors.CallWebhook.BearerToken,
		}, convs, store, logger.With("connector", "call-webhook")))
		logger.Info("call webhook mounted")
	}

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.Server.Port)

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	store.DB().Close()
	logger.Info("movemated stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
