// Package bot answers chat messages: it routes each message to a board query
// or turns it into a task through the interpreter.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/logging"
)

// DefaultTimeout bounds the store calls made for one message.
const DefaultTimeout = 10 * time.Second

const helpText = "Hi! I can help you manage tasks. Here's what I can do:\n" +
	"- Describe a task and I'll create it, e.g. `Create a proposal for Acme Corp, high priority, due Friday`\n" +
	"- `tasks` or `show tasks` - Show all tasks\n" +
	"- `clients` - List all clients\n" +
	"- `stages` - List all stages\n" +
	"- `/task <description>` - Create a task from anywhere"

const slashUsage = "Please provide a task description. Example: `/task Create proposal for Acme Corp, high priority`"

// Interpreter turns free text into task drafts and summaries.
type Interpreter interface {
	Interpret(ctx context.Context, message string, knownClients []string) board.TaskDraft
	Summarize(ctx context.Context, tasks []board.Task) string
}

// Message is one inbound chat message.
type Message struct {
	Text      string
	UserID    string
	ChannelID string
	// CreateOnly skips routing; slash commands always create a task.
	CreateOnly bool
}

// Reply is the text sent back to the chat.
type Reply struct {
	Text    string
	Command Command
	Err     error
}

// Bot handles chat messages. It keeps no per-message state, so Handle is
// safe to call from many goroutines.
type Bot struct {
	store   board.BotStore
	interp  Interpreter
	timeout time.Duration
	loc     *time.Location
	log     *slog.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithTimeout bounds store calls per message.
func WithTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLocation sets the zone used to print due dates.
func WithLocation(loc *time.Location) Option {
	return func(b *Bot) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// New creates a bot.
func New(store board.BotStore, interp Interpreter, opts ...Option) *Bot {
	b := &Bot{
		store:   store,
		interp:  interp,
		timeout: DefaultTimeout,
		loc:     time.Local,
		log:     logging.WithComponent("bot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle answers msg. It always returns readable text; failures become an
// apologetic reply carrying the reason.
func (b *Bot) Handle(ctx context.Context, msg Message) Reply {
	text := strings.TrimSpace(msg.Text)
	cmd := Route(text)
	if msg.CreateOnly {
		cmd = CommandCreateTask
	}

	log := b.log.With(
		slog.String("command", string(cmd)),
		slog.String("user_id", msg.UserID),
		slog.String("channel_id", msg.ChannelID))

	var (
		out string
		err error
	)
	switch cmd {
	case CommandHelp:
		out = helpText
	case CommandShowTasks:
		out, err = b.showTasks(ctx)
	case CommandListClients:
		out, err = b.listClients(ctx)
	case CommandListStages:
		out, err = b.listStages(ctx)
	case CommandCreateTask:
		if text == "" {
			out = slashUsage
			break
		}
		out, err = b.createTask(ctx, text)
	}

	if err != nil {
		log.Error("bot command failed", slog.Any("error", err))
		out = errorReply(cmd, err)
	} else {
		log.Info("bot command handled")
	}

	b.recordActivity(ctx, text, cmd, err)
	return Reply{Text: out, Command: cmd, Err: err}
}

func errorReply(cmd Command, err error) string {
	switch cmd {
	case CommandShowTasks:
		return ":x: Error fetching tasks: " + err.Error()
	case CommandListClients:
		return ":x: Error fetching clients: " + err.Error()
	case CommandListStages:
		return ":x: Error fetching stages: " + err.Error()
	case CommandCreateTask:
		if errors.Is(err, board.ErrInvalid) {
			return ":x: Failed to create task: " + err.Error()
		}
		return ":x: Error creating task: " + err.Error()
	default:
		return "Sorry, I encountered an error: " + err.Error()
	}
}

func (b *Bot) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Bot) showTasks(ctx context.Context) (string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	tasks, err := b.store.ListTasks(ctx, board.Filter{})
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "No tasks found. Create one by describing it to me!", nil
	}
	stages, err := b.store.ListStages(ctx)
	if err != nil {
		return "", fmt.Errorf("list stages: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(":clipboard: *Your Tasks*\n")
	if summary := b.interp.Summarize(ctx, tasks); summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	for _, s := range stages {
		var inStage []board.Task
		for _, t := range tasks {
			if t.StageID == s.ID {
				inStage = append(inStage, t)
			}
		}
		if len(inStage) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "*%s*\n", s.Name)
		for _, t := range inStage {
			fmt.Fprintf(&sb, "%s %s", t.Priority.Emoji(), t.Title)
			if t.Client != "" {
				fmt.Fprintf(&sb, " (%s)", t.Client)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) listClients(ctx context.Context) (string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	clients, err := b.store.ListClientNames(ctx)
	if err != nil {
		return "", fmt.Errorf("list clients: %w", err)
	}
	if len(clients) == 0 {
		return "No clients found yet. Create a task with a client name to add one!", nil
	}
	return ":busts_in_silhouette: *Clients*\n" + bulletList(clients), nil
}

func (b *Bot) listStages(ctx context.Context) (string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	stages, err := b.store.ListStages(ctx)
	if err != nil {
		return "", fmt.Errorf("list stages: %w", err)
	}
	if len(stages) == 0 {
		return "No stages found.", nil
	}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return ":kanban: *Stages*\n" + bulletList(names), nil
}

func (b *Bot) createTask(ctx context.Context, text string) (string, error) {
	storeCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	// A failing lookup only costs the interpreter some context.
	clients, err := b.store.ListClientNames(storeCtx)
	if err != nil {
		b.log.Warn("could not load clients for interpretation", slog.Any("error", err))
		clients = nil
	}
	stages, err := b.store.ListStages(storeCtx)
	if err != nil {
		b.log.Warn("could not load stages, using default", slog.Any("error", err))
		stages = nil
	}

	draft := b.interp.Interpret(ctx, text, clients)

	stageName := "To Do"
	draft.StageID = board.DefaultStageID
	if s, ok := board.DefaultStageFor(stages); ok {
		draft.StageID = s.ID
		stageName = s.Name
	}

	createCtx, cancelCreate := b.withTimeout(ctx)
	defer cancelCreate()
	task, err := b.store.CreateTask(createCtx, draft)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, ":white_check_mark: Task created!\n*%s*\n", task.Title)
	fmt.Fprintf(&sb, "Client: %s\n", orNone(task.Client))
	fmt.Fprintf(&sb, "Priority: %s\n", task.Priority)
	fmt.Fprintf(&sb, "Stage: %s", stageName)
	if task.DueDate != nil {
		fmt.Fprintf(&sb, "\nDue: %s", formatDue(*task.DueDate, b.loc))
		if task.RemindMeInMinutes != nil {
			fmt.Fprintf(&sb, " (reminder %d min before)", *task.RemindMeInMinutes)
		}
	}
	if n := len(task.Checklist); n > 0 {
		fmt.Fprintf(&sb, "\nChecklist: %d items", n)
	}
	return sb.String(), nil
}

func (b *Bot) recordActivity(ctx context.Context, text string, cmd Command, err error) {
	a := board.NewActivity(text, string(cmd), err, time.Now())

	ctx, cancel := b.withTimeout(context.WithoutCancel(ctx))
	defer cancel()
	if recErr := b.store.RecordActivity(ctx, a); recErr != nil {
		b.log.Warn("failed to record bot activity", slog.Any("error", recErr))
	}
}

// formatDue prints a due time, dropping the clock for the 23:59 "some time
// that day" convention.
func formatDue(due time.Time, loc *time.Location) string {
	local := due.In(loc)
	if local.Hour() == 23 && local.Minute() == 59 {
		return local.Format("Mon Jan 2")
	}
	return local.Format("Mon Jan 2, 3:04 PM")
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
