// Package interpreter turns a free-form chat message into a task draft. It
// asks a language model first and falls back to keyword rules whenever the
// model is missing, slow, rate limited or returns something unusable.
package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/llm"
	"github.com/alekspetrov/taskboard/internal/logging"
)

// DefaultTimeout bounds one model call.
const DefaultTimeout = 10 * time.Second

const (
	fallbackTitle    = "New Task"
	maxFallbackTitle = 100

	summaryFallback = "Here are your current tasks."
	summaryEmpty    = "No tasks to summarize."
)

// Fallback reasons, logged so the cause is visible in the logs.
const (
	ReasonUnavailable     = "unavailable"
	ReasonRateLimited     = "rate_limited"
	ReasonRequestFailed   = "request_failed"
	ReasonMalformedOutput = "malformed_output"
)

// Model completes a prompt. llm.Client satisfies it.
type Model interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Interpreter converts messages to drafts.
type Interpreter struct {
	model   Model
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger
}

// Option customizes an Interpreter.
type Option func(*Interpreter)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(i *Interpreter) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithLocation sets the zone used for "today" and for date-only due dates.
func WithLocation(loc *time.Location) Option {
	return func(i *Interpreter) {
		if loc != nil {
			i.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

// New creates an interpreter. model may be nil, in which case every message
// takes the fallback path.
func New(model Model, opts ...Option) *Interpreter {
	i := &Interpreter{
		model:   model,
		timeout: DefaultTimeout,
		loc:     time.Local,
		now:     time.Now,
		log:     logging.WithComponent("interpreter"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret always returns a usable draft.
func (i *Interpreter) Interpret(ctx context.Context, message string, knownClients []string) board.TaskDraft {
	if i.model == nil {
		i.logFallback(ReasonUnavailable, nil)
		return Fallback(message)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	now := i.now().In(i.loc)
	reply, err := i.model.Complete(ctx, buildSystemPrompt(knownClients), buildUserPrompt(message, now))
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			i.logFallback(ReasonRateLimited, err)
		} else {
			i.logFallback(ReasonRequestFailed, err)
		}
		return Fallback(message)
	}

	draft, err := i.parse(reply, message)
	if err != nil {
		i.logFallback(ReasonMalformedOutput, err, slog.String("reply", truncate(reply, 200)))
		return Fallback(message)
	}
	return draft
}

func (i *Interpreter) logFallback(reason string, err error, attrs ...any) {
	args := []any{slog.String("reason", reason)}
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	args = append(args, attrs...)
	i.log.Warn("using fallback task parsing", args...)
}

func (i *Interpreter) parse(reply, message string) (board.TaskDraft, error) {
	var generic any
	if err := json.Unmarshal([]byte(stripFences(reply)), &generic); err != nil {
		return board.TaskDraft{}, fmt.Errorf("reply is not json: %w", err)
	}
	fields, dropped, err := checkShape(generic)
	if err != nil {
		return board.TaskDraft{}, err
	}
	if len(dropped) > 0 {
		i.log.Debug("dropped mistyped fields from model reply", slog.Any("fields", dropped))
	}
	return i.sanitize(fields, message), nil
}

// sanitize builds a draft from the model's fields. Missing or mistyped values
// take their defaults instead of discarding the reply.
func (i *Interpreter) sanitize(fields map[string]any, message string) board.TaskDraft {
	str := func(key string) (string, bool) {
		v, ok := fields[key].(string)
		return strings.TrimSpace(v), ok
	}
	d := board.TaskDraft{Priority: board.PriorityMedium}

	d.Title, _ = str("title")
	if d.Title == "" {
		d.Title = fallbackTitleFor(message)
	}
	d.Client, _ = str("client")
	if p, ok := str("priority"); ok {
		if p := board.Priority(strings.ToLower(p)); p.Valid() {
			d.Priority = p
		}
	}
	if raw, ok := str("dueDate"); ok {
		if due, ok := parseDueDate(raw, i.loc); ok {
			d.DueDate = &due
		} else {
			i.log.Debug("ignoring unparseable due date", slog.String("due_date", raw))
		}
	}
	if lead, ok := fields["remindMeInMinutes"].(float64); ok && lead >= 0 && d.DueDate != nil {
		m := int(math.Round(lead))
		d.RemindMeInMinutes = &m
	}
	items, _ := fields["checklist"].([]any)
	d.Checklist = sanitizeChecklist(items)
	return d
}

// sanitizeChecklist accepts strings or {"text": ...} objects, trims them,
// drops blanks and assigns temp-N IDs by final position.
func sanitizeChecklist(items []any) []board.ChecklistItem {
	out := []board.ChecklistItem{}
	for _, item := range items {
		var text string
		switch v := item.(type) {
		case string:
			text = v
		case map[string]any:
			text, _ = v["text"].(string)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, board.ChecklistItem{
			ID:   fmt.Sprintf("temp-%d", len(out)),
			Text: text,
		})
	}
	return out
}

// parseDueDate accepts YYYY-MM-DD (end of that day, 23:59 in loc) or RFC 3339.
func parseDueDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, loc), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	// Models sometimes drop the zone; read it as local wall time.
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Fallback builds a draft without a model: the message itself becomes the
// title and a few keywords set the priority.
func Fallback(message string) board.TaskDraft {
	lower := strings.ToLower(message)
	priority := board.PriorityMedium
	switch {
	case strings.Contains(lower, "urgent"), strings.Contains(lower, "asap"), strings.Contains(lower, "high priority"):
		priority = board.PriorityHigh
	case strings.Contains(lower, "low priority"), strings.Contains(lower, "when you can"):
		priority = board.PriorityLow
	}
	return board.TaskDraft{
		Title:     fallbackTitleFor(message),
		Priority:  priority,
		Checklist: []board.ChecklistItem{},
	}
}

func fallbackTitleFor(message string) string {
	title := strings.TrimSpace(truncate(message, maxFallbackTitle))
	if title == "" {
		return fallbackTitle
	}
	return title
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Summarize returns a short friendly overview of tasks, or a fixed sentence
// when the model is unavailable or fails.
func (i *Interpreter) Summarize(ctx context.Context, tasks []board.Task) string {
	if i.model == nil {
		return summaryFallback
	}
	if len(tasks) == 0 {
		return summaryEmpty
	}

	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		client := t.Client
		if client == "" {
			client = "no client"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s priority, %s)", t.Title, t.Priority, client))
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	text, err := i.model.Complete(ctx, "", buildSummaryPrompt(lines))
	if err != nil || strings.TrimSpace(text) == "" {
		i.log.Warn("task summary failed", slog.Any("error", err))
		return summaryFallback
	}
	return strings.TrimSpace(text)
}
