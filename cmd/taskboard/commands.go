package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/taskboard/internal/api"
	"github.com/alekspetrov/taskboard/internal/banner"
	"github.com/alekspetrov/taskboard/internal/config"
	"github.com/alekspetrov/taskboard/internal/health"
	"github.com/alekspetrov/taskboard/internal/logging"
	"github.com/alekspetrov/taskboard/internal/reminders"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the board API, the Slack bot and reminders",
		Long: `Run the REST API. When Slack is configured the bot and the reminder
scheduler run in the same process and share the bot health monitor.

Examples:
  taskboard serve
  taskboard serve --config ./taskboard.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logging.Close() }()

			if cfg.Store.Driver == config.DriverRemote {
				return errors.New("serve owns the board; use store.driver sqlite, sqlite3 or file")
			}
			loc, err := cfg.Reminders.Location()
			if err != nil {
				return err
			}
			store, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			banner.Startup(cmd.OutOrStdout(), version, "API", cfg,
				fmt.Sprintf("API:   http://%s", cfg.API.Addr()),
				fmt.Sprintf("Store: %s %s", cfg.Store.Driver, cfg.Store.Path))

			log := logging.WithComponent("serve")
			var opts []api.ServerOption
			var wg sync.WaitGroup
			switch {
			case cfg.Slack.SocketModeReady():
				monitor := newMonitor(cfg.Health)
				opts = append(opts, api.WithStatusSource(monitor))
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := runBot(ctx, cfg, store, monitor, loc); err != nil {
						log.Error("bot stopped", slog.Any("error", err))
					}
				}()
			case cfg.Health.StatusFile != "":
				opts = append(opts, api.WithStatusSource(&health.FileSource{
					Path:      cfg.Health.StatusFile,
					Staleness: cfg.Health.Staleness,
				}))
			}

			if sched, stop := startReminders(ctx, cfg, store, loc); sched != nil {
				opts = append(opts, api.WithSchedulerStatus(sched))
				defer stop()
			}

			err = api.NewServer(cfg.API, store, opts...).Start(ctx)
			cancel()
			wg.Wait()
			return err
		},
	}
}

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run only the Slack bot and reminders",
		Long: `Run the Slack bot and the reminder scheduler without the REST API.
Point store.driver at remote to talk to a board served elsewhere.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logging.Close() }()

			loc, err := cfg.Reminders.Location()
			if err != nil {
				return err
			}
			store, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			banner.Startup(cmd.OutOrStdout(), version, "Slack Bot", cfg)
			if _, stop := startReminders(ctx, cfg, store, loc); stop != nil {
				defer stop()
			}
			return runBot(ctx, cfg, store, newMonitor(cfg.Health), loc)
		},
	}
}

func newRemindCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder cycle and exit",
		Long: `Scan for tasks whose reminder is due, post them to Slack and mark them sent.

Examples:
  taskboard remind            # send due reminders once
  taskboard remind --dry-run  # list what would be sent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.Discard()

			loc, err := cfg.Reminders.Location()
			if err != nil {
				return err
			}
			store, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := signalContext()
			defer cancel()
			out := cmd.OutOrStdout()

			if dryRun {
				scanner := reminders.NewScanner(store, cfg.Reminders.StoreTimeout)
				printCandidates(out, scanner.Scan(ctx, time.Now()), loc)
				return nil
			}

			p, err := newReminderPipeline(cfg, store, loc)
			if err != nil {
				return err
			}
			defer p.close()

			res, err := p.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sent %d, failed %d, duplicates %d\n", res.Sent, res.Failed, res.Duplicates)
			if res.MarkFailed > 0 {
				fmt.Fprintf(out, "warning: %d sent but not marked, they may repeat\n", res.MarkFailed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list due reminders without sending")
	return cmd
}

func printCandidates(w io.Writer, candidates []reminders.Candidate, loc *time.Location) {
	if len(candidates) == 0 {
		fmt.Fprintln(w, "No reminders due.")
		return
	}
	for _, c := range candidates {
		client := c.Task.Client
		if client == "" {
			client = "-"
		}
		fmt.Fprintf(w, "%-36s  %-40s  %-16s  due %s%s\n",
			c.Task.ID,
			c.Task.Title,
			client,
			reminders.FormatRelative(c.MinutesRemaining),
			reminders.FormatAbsolute(*c.Task.DueDate, loc))
	}
	fmt.Fprintf(w, "%d reminder(s) due\n", len(candidates))
}
