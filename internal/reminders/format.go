package reminders

import (
	"fmt"
	"strings"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
)

// FormatRelative renders minutes until due as "now", "in 5 minutes",
// "in 2 hours" or "in 1h 30m".
func FormatRelative(minutes int) string {
	switch {
	case minutes <= 0:
		return "now"
	case minutes == 1:
		return "in 1 minute"
	case minutes < 60:
		return fmt.Sprintf("in %d minutes", minutes)
	}
	hours, rem := minutes/60, minutes%60
	switch {
	case rem != 0:
		return fmt.Sprintf("in %dh %dm", hours, rem)
	case hours == 1:
		return "in 1 hour"
	default:
		return fmt.Sprintf("in %d hours", hours)
	}
}

// FormatAbsolute returns " at 3:04 PM" for due, or "" when the due time is
// 23:59 in loc, the convention for "some time that day".
func FormatAbsolute(due time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	local := due.In(loc)
	if local.Hour() == 23 && local.Minute() == 59 {
		return ""
	}
	return " at " + local.Format("3:04 PM")
}

// Notification is the channel-neutral content of one reminder.
type Notification struct {
	TaskID   string
	Title    string
	Client   string
	Priority board.Priority
	Relative string // "in 30 minutes"
	Absolute string // " at 3:00 PM" or ""
	URL      string
}

// Text is the plain fallback line shown by clients that cannot render rich
// layouts.
func (n *Notification) Text() string {
	return fmt.Sprintf("Reminder: \"%s\" is due %s%s", n.Title, n.Relative, n.Absolute)
}

// ClientLabel returns the client name or "None".
func (n *Notification) ClientLabel() string {
	if n.Client == "" {
		return "None"
	}
	return n.Client
}

// BuildNotification renders a candidate. publicURL is the board's externally
// reachable base URL.
func BuildNotification(c Candidate, publicURL string, loc *time.Location) *Notification {
	n := &Notification{
		TaskID:   c.Task.ID,
		Title:    c.Task.Title,
		Client:   c.Task.Client,
		Priority: c.Task.Priority,
		Relative: FormatRelative(c.MinutesRemaining),
		URL:      fmt.Sprintf("%s/?task=%s", strings.TrimRight(publicURL, "/"), c.Task.ID),
	}
	if c.Task.DueDate != nil {
		n.Absolute = FormatAbsolute(*c.Task.DueDate, loc)
	}
	return n
}
