// Package reminders finds tasks whose reminder threshold has passed and
// delivers one notification per task.
package reminders

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/logging"
)

// DefaultStoreTimeout bounds a single scan query.
const DefaultStoreTimeout = 10 * time.Second

// Candidate is a task that should be reminded about now.
type Candidate struct {
	Task             board.Task `json:"task"`
	MinutesRemaining int        `json:"minutesRemaining"`
	HoursRemaining   int        `json:"hoursRemaining"`
}

// NewCandidate computes remaining time until the task is due, rounded to the
// nearest minute and floored at zero.
func NewCandidate(t board.Task, now time.Time) Candidate {
	c := Candidate{Task: t}
	if t.DueDate != nil {
		mins := math.Round(t.DueDate.Sub(now).Minutes())
		if mins > 0 {
			c.MinutesRemaining = int(mins)
		}
	}
	c.HoursRemaining = c.MinutesRemaining / 60
	return c
}

// Scanner selects reminder candidates from a store.
type Scanner struct {
	store   board.ReminderStore
	timeout time.Duration
	log     *slog.Logger
}

// NewScanner creates a scanner. A non-positive timeout uses DefaultStoreTimeout.
func NewScanner(store board.ReminderStore, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Scanner{store: store, timeout: timeout, log: logging.WithComponent("reminders.scanner")}
}

// Scan returns tasks whose threshold (due - lead) is at or before now and that
// have not been reminded yet, in store order. Store failures are logged and
// yield an empty result; the next cycle retries.
func (s *Scanner) Scan(ctx context.Context, now time.Time) []Candidate {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tasks, err := s.store.ListTasksNeedingReminders(ctx)
	if err != nil {
		s.log.Warn("reminder scan failed, skipping cycle", slog.Any("error", err))
		return nil
	}

	var out []Candidate
	for _, t := range tasks {
		// Stores may pre-filter loosely; the threshold is decided here.
		if !t.NeedsReminder(now) {
			continue
		}
		out = append(out, NewCandidate(t, now))
	}
	if len(out) > 0 {
		s.log.Info("tasks need reminders", slog.Int("count", len(out)))
	}
	return out
}
