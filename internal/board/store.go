package board

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a task, stage or checklist item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStageNotEmpty is returned when deleting a stage that still has tasks.
	ErrStageNotEmpty = errors.New("cannot delete stage with tasks. Move or delete tasks first")
	// ErrInvalid marks a rejected mutation; the wrapped message says why.
	ErrInvalid = errors.New("invalid request")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ReminderStore is the slice of the store the reminder pipeline needs.
type ReminderStore interface {
	// ListTasksNeedingReminders returns tasks with a lead time, a due date and
	// ReminderSent=false. Implementations may pre-filter by threshold; callers
	// re-check.
	ListTasksNeedingReminders(ctx context.Context) ([]Task, error)
	// MarkReminderSent latches the reminder. Returns ErrNotFound for unknown IDs.
	MarkReminderSent(ctx context.Context, taskID string) error
}

// BotStore is the slice of the store the chat bot needs.
type BotStore interface {
	CreateTask(ctx context.Context, draft TaskDraft) (Task, error)
	ListTasks(ctx context.Context, filter Filter) ([]Task, error)
	ListStages(ctx context.Context) ([]Stage, error)
	ListClientNames(ctx context.Context) ([]string, error)
	RecordActivity(ctx context.Context, a Activity) error
}

// Store is the full repository contract served by the REST API.
type Store interface {
	ReminderStore
	BotStore

	GetTask(ctx context.Context, id string) (Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error)
	DeleteTask(ctx context.Context, id string) error
	UpdateChecklistItem(ctx context.Context, taskID, itemID string, patch ChecklistItemPatch) (ChecklistItem, error)
	DeleteChecklistItem(ctx context.Context, taskID, itemID string) error

	GetStage(ctx context.Context, id string) (Stage, error)
	CreateStage(ctx context.Context, name, color string) (Stage, error)
	UpdateStage(ctx context.Context, id string, patch StagePatch) (Stage, error)
	// ReorderStages assigns Order by position in ids.
	ReorderStages(ctx context.Context, ids []string) ([]Stage, error)
	// DeleteStage returns ErrStageNotEmpty while any task references the stage.
	DeleteStage(ctx context.Context, id string) error

	ListActivity(ctx context.Context, limit, offset int) (ActivityPage, error)
	Close() error
}

// ValidateDraft checks a draft before it is persisted.
func ValidateDraft(d TaskDraft) error {
	if d.Priority != "" && !d.Priority.Valid() {
		return invalidf("priority must be one of low, medium, high")
	}
	if d.RemindMeInMinutes != nil && *d.RemindMeInMinutes < 0 {
		return invalidf("remindMeInMinutes must not be negative")
	}
	return nil
}
