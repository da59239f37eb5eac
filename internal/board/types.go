// Package board defines the kanban domain: stages, tasks, checklists and the
// repository contracts the rest of taskboard consumes.
package board

import (
	"sort"
	"strings"
	"time"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a priority value. Unknown or empty values map to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Valid reports whether p is one of the three known priorities.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Emoji returns the Slack severity marker for the priority.
func (p Priority) Emoji() string {
	switch p {
	case PriorityHigh:
		return ":red_circle:"
	case PriorityMedium:
		return ":large_yellow_circle:"
	default:
		return ":large_green_circle:"
	}
}

// ChecklistItem is a single sub-step of a task. Items are owned by their task.
type ChecklistItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task is a card on the board.
type Task struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Client            string          `json:"client"`
	Priority          Priority        `json:"priority"`
	StageID           string          `json:"stageId"`
	DueDate           *time.Time      `json:"dueDate"`
	RemindMeInMinutes *int            `json:"remindMeInMinutes"`
	ReminderSent      bool            `json:"reminderSent"`
	Checklist         []ChecklistItem `json:"checklist"`
	Order             int             `json:"order"`
	CreatedAt         time.Time       `json:"createdAt"`

	// ReminderGeneration counts re-arms, so a reminder moved away from a due
	// date and back again is still a new reminder.
	ReminderGeneration int `json:"reminderGeneration"`
}

// ReminderAt returns the instant the task's reminder becomes due.
// ok is false when the task has no due date or no lead time.
func (t *Task) ReminderAt() (at time.Time, ok bool) {
	if t.DueDate == nil || t.RemindMeInMinutes == nil {
		return time.Time{}, false
	}
	return t.DueDate.Add(-time.Duration(*t.RemindMeInMinutes) * time.Minute), true
}

// NeedsReminder reports whether the reminder threshold has been crossed at now
// and the reminder has not been sent yet.
func (t *Task) NeedsReminder(now time.Time) bool {
	if t.ReminderSent {
		return false
	}
	at, ok := t.ReminderAt()
	if !ok {
		return false
	}
	return !now.Before(at)
}

// Stage is a board column.
type Stage struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
	Color string `json:"color"`
}

// DefaultStageColor is used when a stage is created without a color.
const DefaultStageColor = "#6B7280"

// DefaultStageID is the stage new tasks land in when none is given.
const DefaultStageID = "todo"

// DefaultStages returns the stages seeded into an empty board.
func DefaultStages() []Stage {
	return []Stage{
		{ID: "todo", Name: "To Do", Order: 0, Color: "#6B7280"},
		{ID: "in-progress", Name: "In Progress", Order: 1, Color: "#3B82F6"},
		{ID: "complete", Name: "Complete", Order: 2, Color: "#10B981"},
	}
}

// TaskDraft is the input for creating a task.
type TaskDraft struct {
	Title             string          `json:"title"`
	Client            string          `json:"client,omitempty"`
	Priority          Priority        `json:"priority"`
	StageID           string          `json:"stageId,omitempty"`
	DueDate           *time.Time      `json:"dueDate,omitempty"`
	RemindMeInMinutes *int            `json:"remindMeInMinutes,omitempty"`
	Checklist         []ChecklistItem `json:"checklist"`
}

// Filter narrows ListTasks results. Zero values match everything.
type Filter struct {
	Client   string // case-insensitive equality
	Priority Priority
	StageID  string
	Search   string // case-insensitive substring of title or checklist text
}

// Match reports whether t satisfies the filter.
func (f Filter) Match(t *Task) bool {
	if f.Client != "" && !strings.EqualFold(t.Client, f.Client) {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.StageID != "" && t.StageID != f.StageID {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if strings.Contains(strings.ToLower(t.Title), q) {
			return true
		}
		for _, item := range t.Checklist {
			if strings.Contains(strings.ToLower(item.Text), q) {
				return true
			}
		}
		return false
	}
	return true
}

// SortTasks orders tasks by Order, breaking ties by insertion.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// SortStages orders stages by Order.
func SortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})
}

// DefaultStageFor picks the stage new bot-created tasks go to: "To Do" when it
// exists, the first stage otherwise. ok is false for an empty board.
func DefaultStageFor(stages []Stage) (Stage, bool) {
	for _, s := range stages {
		if strings.EqualFold(s.Name, "to do") {
			return s, true
		}
	}
	if len(stages) > 0 {
		return stages[0], true
	}
	return Stage{}, false
}

// Activity is one recorded bot interaction.
type Activity struct {
	ID          string    `json:"id"`
	UserRequest string    `json:"userRequest"`
	BotAction   string    `json:"botAction"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ActivityPage is a newest-first slice of the activity log.
type ActivityPage struct {
	Activities []Activity `json:"activities"`
	Total      int        `json:"total"`
	HasMore    bool       `json:"hasMore"`
}
