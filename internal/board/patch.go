package board

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Optional carries a nullable field in a patch. The zero value means "absent";
// Set with a nil Value means "clear".
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns an Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// IsZero lets encoding/json omit absent fields via omitzero.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked when the key
// is present, which is what marks the field as Set.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// TaskPatch is a partial task update. Nil pointers and unset Optionals leave
// the field untouched.
//
// Changing DueDate or RemindMeInMinutes (including clearing them) re-arms the
// reminder by resetting ReminderSent and bumping ReminderGeneration, unless
// ReminderSent is set explicitly in the same patch. An explicit false re-arms
// too.
type TaskPatch struct {
	Title             *string             `json:"title,omitempty"`
	Client            *string             `json:"client,omitempty"`
	Priority          *Priority           `json:"priority,omitempty"`
	StageID           *string             `json:"stageId,omitempty"`
	Order             *int                `json:"order,omitempty"`
	DueDate           Optional[time.Time] `json:"dueDate,omitzero"`
	RemindMeInMinutes Optional[int]       `json:"remindMeInMinutes,omitzero"`
	ReminderSent      *bool               `json:"reminderSent,omitempty"`
	Checklist         *[]ChecklistItem    `json:"checklist,omitempty"`
}

// Validate rejects patches that would leave the task in an invalid state.
func (p *TaskPatch) Validate() error {
	if p.Priority != nil && !p.Priority.Valid() {
		return invalidf("priority must be one of low, medium, high")
	}
	if p.RemindMeInMinutes.Value != nil && *p.RemindMeInMinutes.Value < 0 {
		return invalidf("remindMeInMinutes must not be negative")
	}
	if p.StageID != nil && strings.TrimSpace(*p.StageID) == "" {
		return invalidf("stageId must not be empty")
	}
	return nil
}

// Apply mutates t according to the patch.
func (t *Task) Apply(p TaskPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Client != nil {
		t.Client = *p.Client
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.StageID != nil {
		t.StageID = *p.StageID
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	rearm := false
	if p.DueDate.Set {
		t.DueDate = copyPtr(p.DueDate.Value)
		rearm = true
	}
	if p.RemindMeInMinutes.Set {
		t.RemindMeInMinutes = copyPtr(p.RemindMeInMinutes.Value)
		rearm = true
	}
	if p.ReminderSent != nil {
		rearm = !*p.ReminderSent
	}
	if rearm {
		t.ReminderSent = false
		t.ReminderGeneration++
	} else if p.ReminderSent != nil {
		t.ReminderSent = true
	}
	if p.Checklist != nil {
		t.Checklist = NormalizeChecklist(*p.Checklist)
	}
}

// ChecklistItemPatch updates a single checklist item.
type ChecklistItemPatch struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// Apply mutates item according to the patch.
func (item *ChecklistItem) Apply(p ChecklistItemPatch) {
	if p.Text != nil {
		item.Text = *p.Text
	}
	if p.Completed != nil {
		item.Completed = *p.Completed
	}
}

// StagePatch updates a stage.
type StagePatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// Apply mutates s according to the patch.
func (s *Stage) Apply(p StagePatch) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.Order != nil {
		s.Order = *p.Order
	}
}

// NewTask builds a task from a draft. The caller assigns Order.
func NewTask(d TaskDraft, now time.Time) Task {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = "Untitled Task"
	}
	stageID := d.StageID
	if stageID == "" {
		stageID = DefaultStageID
	}
	priority := d.Priority
	if !priority.Valid() {
		priority = PriorityMedium
	}
	return Task{
		ID:                uuid.NewString(),
		Title:             title,
		Client:            strings.TrimSpace(d.Client),
		Priority:          priority,
		StageID:           stageID,
		DueDate:           copyPtr(d.DueDate),
		RemindMeInMinutes: copyPtr(d.RemindMeInMinutes),
		Checklist:         NormalizeChecklist(d.Checklist),
		CreatedAt:         now.UTC(),
	}
}

// NewStage builds a stage with a fresh ID.
func NewStage(name, color string, order int) Stage {
	if strings.TrimSpace(name) == "" {
		name = "New Stage"
	}
	if color == "" {
		color = DefaultStageColor
	}
	return Stage{ID: uuid.NewString(), Name: name, Order: order, Color: color}
}

// NewActivity builds a log entry for one bot interaction. A non-nil err marks
// it failed.
func NewActivity(userRequest, action string, err error, now time.Time) Activity {
	a := Activity{
		ID:          uuid.NewString(),
		UserRequest: userRequest,
		BotAction:   action,
		Success:     err == nil,
		Timestamp:   now.UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// NormalizeChecklist gives every item a persistent ID. Draft IDs of the form
// temp-N are replaced.
func NormalizeChecklist(items []ChecklistItem) []ChecklistItem {
	out := make([]ChecklistItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" || strings.HasPrefix(item.ID, "temp-") {
			item.ID = uuid.NewString()
		}
		out = append(out, item)
	}
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
