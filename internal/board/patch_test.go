package board

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func sentTask(t *testing.T) Task {
	t.Helper()
	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	return Task{
		ID:                "t1",
		Title:             "Send proposal",
		Priority:          PriorityMedium,
		StageID:           "todo",
		DueDate:           &due,
		RemindMeInMinutes: intPtr(30),
		ReminderSent:      true,
	}
}

func TestApplyResetsReminderSent(t *testing.T) {
	later := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	title := "Renamed"
	sent := true
	unsent := false

	tests := []struct {
		name     string
		patch    TaskPatch
		wantSent bool
		wantGen  int
	}{
		{name: "title only keeps latch", patch: TaskPatch{Title: &title}, wantSent: true, wantGen: 0},
		{name: "due date change resets", patch: TaskPatch{DueDate: Some(later)}, wantSent: false, wantGen: 1},
		{name: "due date cleared resets", patch: TaskPatch{DueDate: Null[time.Time]()}, wantSent: false, wantGen: 1},
		{name: "lead time change resets", patch: TaskPatch{RemindMeInMinutes: Some(60)}, wantSent: false, wantGen: 1},
		{name: "lead time cleared resets", patch: TaskPatch{RemindMeInMinutes: Null[int]()}, wantSent: false, wantGen: 1},
		{name: "explicit flag wins", patch: TaskPatch{DueDate: Some(later), ReminderSent: &sent}, wantSent: true, wantGen: 0},
		{name: "explicit reset re-arms", patch: TaskPatch{ReminderSent: &unsent}, wantSent: false, wantGen: 1},
		{name: "both fields bump once", patch: TaskPatch{DueDate: Some(later), RemindMeInMinutes: Some(5)}, wantSent: false, wantGen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := sentTask(t)
			task.Apply(tt.patch)
			if task.ReminderSent != tt.wantSent {
				t.Errorf("ReminderSent = %v, want %v", task.ReminderSent, tt.wantSent)
			}
			if task.ReminderGeneration != tt.wantGen {
				t.Errorf("ReminderGeneration = %d, want %d", task.ReminderGeneration, tt.wantGen)
			}
		})
	}
}

func TestApplyReArmSameDueDateIsNewGeneration(t *testing.T) {
	task := sentTask(t)
	original := *task.DueDate

	task.Apply(TaskPatch{DueDate: Some(original.Add(24 * time.Hour))})
	task.Apply(TaskPatch{DueDate: Some(original)})

	if task.ReminderSent {
		t.Error("ReminderSent should be reset")
	}
	if task.ReminderGeneration != 2 {
		t.Errorf("ReminderGeneration = %d, want 2", task.ReminderGeneration)
	}
}

func TestApplyClearsNullableFields(t *testing.T) {
	task := sentTask(t)
	task.Apply(TaskPatch{DueDate: Null[time.Time](), RemindMeInMinutes: Null[int]()})
	if task.DueDate != nil {
		t.Errorf("DueDate = %v, want nil", task.DueDate)
	}
	if task.RemindMeInMinutes != nil {
		t.Errorf("RemindMeInMinutes = %v, want nil", *task.RemindMeInMinutes)
	}
}

func TestTaskPatchJSONDistinguishesAbsentAndNull(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantDue   bool
		wantLead  bool
		wantValue bool
	}{
		{name: "absent", body: `{"title":"x"}`},
		{name: "null due", body: `{"dueDate":null}`, wantDue: true},
		{name: "lead value", body: `{"remindMeInMinutes":15}`, wantLead: true, wantValue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p TaskPatch
			if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.DueDate.Set != tt.wantDue {
				t.Errorf("DueDate.Set = %v, want %v", p.DueDate.Set, tt.wantDue)
			}
			if p.RemindMeInMinutes.Set != tt.wantLead {
				t.Errorf("RemindMeInMinutes.Set = %v, want %v", p.RemindMeInMinutes.Set, tt.wantLead)
			}
			if (p.RemindMeInMinutes.Value != nil) != tt.wantValue {
				t.Errorf("RemindMeInMinutes.Value = %v", p.RemindMeInMinutes.Value)
			}
		})
	}
}

func TestTaskPatchMarshalOmitsAbsent(t *testing.T) {
	title := "x"
	data, err := json.Marshal(TaskPatch{Title: &title, DueDate: Null[time.Time]()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "remindMeInMinutes") {
		t.Errorf("absent field serialized: %s", got)
	}
	if !strings.Contains(got, `"dueDate":null`) {
		t.Errorf("null field missing: %s", got)
	}
}

func TestTaskPatchValidate(t *testing.T) {
	bad := Priority("urgent")
	empty := " "
	tests := []struct {
		name    string
		patch   TaskPatch
		wantErr bool
	}{
		{name: "empty patch", patch: TaskPatch{}},
		{name: "bad priority", patch: TaskPatch{Priority: &bad}, wantErr: true},
		{name: "negative lead", patch: TaskPatch{RemindMeInMinutes: Some(-5)}, wantErr: true},
		{name: "blank stage", patch: TaskPatch{StageID: &empty}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestNewTaskDefaults(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := NewTask(TaskDraft{
		Title:     "  ",
		Checklist: []ChecklistItem{{ID: "temp-0", Text: "a"}, {ID: "keep", Text: "b"}},
	}, now)

	if task.Title != "Untitled Task" {
		t.Errorf("Title = %q", task.Title)
	}
	if task.StageID != DefaultStageID {
		t.Errorf("StageID = %q", task.StageID)
	}
	if task.Priority != PriorityMedium {
		t.Errorf("Priority = %q", task.Priority)
	}
	if task.ReminderSent {
		t.Error("new task should not have reminder sent")
	}
	if task.Checklist[0].ID == "temp-0" || task.Checklist[0].ID == "" {
		t.Errorf("temp id not replaced: %q", task.Checklist[0].ID)
	}
	if task.Checklist[1].ID != "keep" {
		t.Errorf("existing id changed: %q", task.Checklist[1].ID)
	}
}

func TestNewActivity(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("CET", 3600))

	ok := NewActivity("show tasks", "show_tasks", nil, now)
	if ok.ID == "" || !ok.Success || ok.Error != "" {
		t.Errorf("success activity = %+v", ok)
	}
	if ok.Timestamp.Location() != time.UTC || !ok.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v", ok.Timestamp)
	}

	failed := NewActivity("buy milk", "create_task", errors.New("disk full"), now)
	if failed.Success || failed.Error != "disk full" {
		t.Errorf("failed activity = %+v", failed)
	}
}
