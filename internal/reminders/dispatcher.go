package reminders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/logging"
)

// ErrNoTarget is returned when no delivery target is configured.
var ErrNoTarget = errors.New("reminder target channel not configured")

// Notifier delivers a reminder to a chat target.
type Notifier interface {
	Notify(ctx context.Context, target string, n *Notification) error
}

// Result summarizes one dispatch pass.
type Result struct {
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
	// MarkFailed counts deliveries that succeeded but could not be latched.
	MarkFailed int `json:"markFailed"`
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Target    string         // chat channel ID
	PublicURL string         // base for "View Task" links
	Location  *time.Location // zone used for " at 3:04 PM"
	Deduper   Deduper        // optional
}

// Dispatcher sends one notification per candidate and latches ReminderSent.
type Dispatcher struct {
	store    board.ReminderStore
	notifier Notifier
	cfg      DispatcherConfig
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store board.ReminderStore, notifier Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logging.WithComponent("reminders.dispatcher"),
	}
}

// Dispatch delivers candidates sequentially in order. A failure on one
// candidate never aborts the others. ReminderSent is only set after the
// notifier reports success.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []Candidate) (Result, error) {
	var res Result
	if d.cfg.Target == "" {
		d.log.Warn("reminder channel not set, skipping reminders")
		return res, ErrNoTarget
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		d.dispatchOne(ctx, c, &res)
	}
	return res, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, c Candidate, res *Result) {
	log := d.log.With(slog.String("task_id", c.Task.ID), slog.String("title", c.Task.Title))

	key := ClaimKey(c.Task)
	if d.cfg.Deduper != nil {
		first, err := d.cfg.Deduper.Claim(ctx, key)
		switch {
		case err != nil:
			// Redis being down should not silence reminders.
			log.Warn("reminder claim failed, sending anyway", slog.Any("error", err))
		case !first:
			log.Info("reminder already claimed, latching")
			res.Duplicates++
			d.markSent(ctx, c.Task.ID, log, res)
			return
		}
	}

	n := BuildNotification(c, d.cfg.PublicURL, d.cfg.Location)
	if err := d.notifier.Notify(ctx, d.cfg.Target, n); err != nil {
		log.Error("failed to send reminder", slog.Any("error", err))
		res.Failed++
		if d.cfg.Deduper != nil {
			if rerr := d.cfg.Deduper.Release(ctx, key); rerr != nil {
				log.Warn("failed to release reminder claim", slog.Any("error", rerr))
			}
		}
		return
	}

	res.Sent++
	log.Info("reminder sent", slog.Int("minutes_remaining", c.MinutesRemaining))
	d.markSent(ctx, c.Task.ID, log, res)
}

func (d *Dispatcher) markSent(ctx context.Context, taskID string, log *slog.Logger, res *Result) {
	if err := d.store.MarkReminderSent(ctx, taskID); err != nil {
		res.MarkFailed++
		log.Error("failed to mark reminder sent", slog.Any("error", err))
	}
}
