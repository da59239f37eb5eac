package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alekspetrov/taskboard/internal/adapters/slack"
	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/bot"
	"github.com/alekspetrov/taskboard/internal/config"
	"github.com/alekspetrov/taskboard/internal/health"
	"github.com/alekspetrov/taskboard/internal/interpreter"
	"github.com/alekspetrov/taskboard/internal/llm"
	"github.com/alekspetrov/taskboard/internal/logging"
	"github.com/alekspetrov/taskboard/internal/reminders"
	"github.com/alekspetrov/taskboard/internal/store/filestore"
	"github.com/alekspetrov/taskboard/internal/store/remote"
	"github.com/alekspetrov/taskboard/internal/store/sqlstore"
)

// openStore opens the store selected by store.driver.
func openStore(cfg *config.StoreConfig) (board.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, config.DriverSQLite3:
		s, err := sqlstore.Open(cfg.Driver, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverFile:
		s, err := filestore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverRemote:
		return remote.NewClient(cfg.URL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newInterpreter builds the message interpreter. Without an API key every
// message takes the keyword fallback.
func newInterpreter(cfg *config.Config, loc *time.Location) *interpreter.Interpreter {
	opts := []interpreter.Option{
		interpreter.WithTimeout(cfg.LLM.Timeout),
		interpreter.WithLocation(loc),
	}
	if !cfg.LLM.Enabled || cfg.LLM.APIKey == "" {
		return interpreter.New(nil, opts...)
	}
	client := llm.NewClient(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTimeout(cfg.LLM.Timeout),
	)
	return interpreter.New(client, opts...)
}

// newDeduper connects to Redis when redis.url is set. The returned close
// function is always safe to call.
func newDeduper(cfg *config.RedisConfig) (reminders.Deduper, func(), error) {
	if cfg.URL == "" {
		return nil, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("invalid redis.url: %w", err)
	}
	rc := redis.NewClient(opts)
	return reminders.NewRedisDeduper(rc, cfg.DedupeTTL), func() { _ = rc.Close() }, nil
}

// reminderPipeline assembles scanner and dispatcher. Delivery goes through
// the Slack bot token; without one the pipeline cannot be built.
type reminderPipeline struct {
	*reminders.Pipeline
	close func()
}

func newReminderPipeline(cfg *config.Config, store board.ReminderStore, loc *time.Location) (*reminderPipeline, error) {
	if cfg.Slack.BotToken == "" {
		return nil, errors.New("slack.bot_token is required to deliver reminders")
	}
	dedupe, closeDedupe, err := newDeduper(cfg.Redis)
	if err != nil {
		return nil, err
	}

	dcfg := reminders.DispatcherConfig{
		Target:    cfg.Slack.RemindersChannel,
		PublicURL: cfg.API.PublicURL,
		Location:  loc,
		Deduper:   dedupe,
	}
	notifier := slack.NewNotifier(slack.NewClient(cfg.Slack.BotToken))

	return &reminderPipeline{
		Pipeline: &reminders.Pipeline{
			Scanner:    reminders.NewScanner(store, cfg.Reminders.StoreTimeout),
			Dispatcher: reminders.NewDispatcher(store, notifier, dcfg),
		},
		close: closeDedupe,
	}, nil
}

// startReminders runs the reminder cycle on its interval until ctx is done.
// It returns the scheduler and a stop function, both nil when reminders are off.
func startReminders(ctx context.Context, cfg *config.Config, store board.ReminderStore, loc *time.Location) (*reminders.Scheduler, func()) {
	log := logging.WithComponent("reminders")
	if !cfg.Reminders.Enabled {
		log.Info("reminders disabled")
		return nil, nil
	}
	p, err := newReminderPipeline(cfg, store, loc)
	if err != nil {
		log.Warn("reminders not started", slog.Any("error", err))
		return nil, nil
	}
	sched := reminders.NewScheduler(p, cfg.Reminders.Interval)
	sched.Start(ctx)
	return sched, func() {
		sched.Stop()
		p.close()
	}
}

// newMonitor creates the bot health monitor, persisting to health.status_file
// when one is configured.
func newMonitor(cfg *config.HealthConfig) *health.Monitor {
	var opts []health.Option
	if cfg.StatusFile != "" {
		opts = append(opts, health.WithStatusFile(cfg.StatusFile))
	}
	return health.NewMonitor(cfg.Staleness, opts...)
}

// runBot connects to Slack and answers messages until ctx is cancelled.
func runBot(ctx context.Context, cfg *config.Config, store board.BotStore, monitor *health.Monitor, loc *time.Location) error {
	if !cfg.Slack.SocketModeReady() {
		return errors.New("slack socket mode needs slack.enabled, socket_mode, bot_token and app_token")
	}
	defer monitor.MarkStopped()

	socket := slack.NewSocketModeClient(cfg.Slack.AppToken)
	socket.SetObserver(monitor)
	transport := slack.NewTransport(socket, slack.NewClient(cfg.Slack.BotToken), cfg.Slack)

	b := bot.New(store, newInterpreter(cfg, loc), bot.WithLocation(loc))
	transport.SetMessageHandler(messageHandler(b))
	return transport.Run(ctx)
}

// messageHandler adapts Slack events to the bot.
func messageHandler(b *bot.Bot) slack.MessageHandler {
	return func(ctx context.Context, evt *slack.Event) string {
		reply := b.Handle(ctx, bot.Message{
			Text:       evt.Text,
			UserID:     evt.UserID,
			ChannelID:  evt.ChannelID,
			CreateOnly: evt.IsSlashCommand(),
		})
		return reply.Text
	}
}
