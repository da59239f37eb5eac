// Package storetest holds behavior every board.Store implementation must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
)

// Run exercises open against the shared contract. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) board.Store) {
	t.Run("DefaultStages", func(t *testing.T) { testDefaultStages(t, open(t)) })
	t.Run("StageDeleteGuard", func(t *testing.T) { testStageDeleteGuard(t, open(t)) })
	t.Run("ReminderListing", func(t *testing.T) { testReminderListing(t, open(t)) })
	t.Run("PatchReArmsReminder", func(t *testing.T) { testPatchReArms(t, open(t)) })
	t.Run("TitlePatchKeepsLatch", func(t *testing.T) { testTitlePatchKeepsLatch(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
}

func lead(m int) *int { return &m }

func testDefaultStages(t *testing.T, s board.Store) {
	stages, err := s.ListStages(context.Background())
	if err != nil {
		t.Fatalf("ListStages: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(stages))
	}
	if st, ok := board.DefaultStageFor(stages); !ok || st.ID != board.DefaultStageID {
		t.Errorf("DefaultStageFor = %+v", st)
	}
}

func testStageDeleteGuard(t *testing.T, s board.Store) {
	ctx := context.Background()
	task, err := s.CreateTask(ctx, board.TaskDraft{Title: "blocker", StageID: "in-progress"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.DeleteStage(ctx, "in-progress"); !errors.Is(err, board.ErrStageNotEmpty) {
		t.Fatalf("DeleteStage = %v, want ErrStageNotEmpty", err)
	}
	if _, err := s.GetStage(ctx, "in-progress"); err != nil {
		t.Fatalf("stage should survive rejected delete: %v", err)
	}
	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := s.DeleteStage(ctx, "in-progress"); err != nil {
		t.Fatalf("DeleteStage on empty stage: %v", err)
	}
}

func testReminderListing(t *testing.T, s board.Store) {
	ctx := context.Background()
	due := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	armed, _ := s.CreateTask(ctx, board.TaskDraft{Title: "armed", DueDate: &due, RemindMeInMinutes: lead(30)})
	_, _ = s.CreateTask(ctx, board.TaskDraft{Title: "no lead", DueDate: &due})
	_, _ = s.CreateTask(ctx, board.TaskDraft{Title: "no due", RemindMeInMinutes: lead(30)})

	tasks, err := s.ListTasksNeedingReminders(ctx)
	if err != nil {
		t.Fatalf("ListTasksNeedingReminders: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != armed.ID {
		t.Fatalf("got %d tasks, want only %q", len(tasks), armed.Title)
	}

	if err := s.MarkReminderSent(ctx, armed.ID); err != nil {
		t.Fatalf("MarkReminderSent: %v", err)
	}
	tasks, _ = s.ListTasksNeedingReminders(ctx)
	if len(tasks) != 0 {
		t.Errorf("sent task still listed: %+v", tasks)
	}
}

func testPatchReArms(t *testing.T, s board.Store) {
	ctx := context.Background()
	due := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	task, _ := s.CreateTask(ctx, board.TaskDraft{Title: "x", DueDate: &due, RemindMeInMinutes: lead(30)})
	_ = s.MarkReminderSent(ctx, task.ID)

	if _, err := s.UpdateTask(ctx, task.ID, board.TaskPatch{RemindMeInMinutes: board.Some(60)}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.ReminderSent {
		t.Error("lead time change should reset ReminderSent")
	}
	if got.RemindMeInMinutes == nil || *got.RemindMeInMinutes != 60 {
		t.Errorf("RemindMeInMinutes = %v", got.RemindMeInMinutes)
	}
	if got.ReminderGeneration != task.ReminderGeneration+1 {
		t.Errorf("ReminderGeneration = %d, want %d", got.ReminderGeneration, task.ReminderGeneration+1)
	}
}

func testTitlePatchKeepsLatch(t *testing.T, s board.Store) {
	ctx := context.Background()
	due := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	task, _ := s.CreateTask(ctx, board.TaskDraft{Title: "x", DueDate: &due, RemindMeInMinutes: lead(30)})
	if err := s.MarkReminderSent(ctx, task.ID); err != nil {
		t.Fatalf("MarkReminderSent: %v", err)
	}

	title := "renamed"
	updated, err := s.UpdateTask(ctx, task.ID, board.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if !updated.ReminderSent {
		t.Error("title patch reverted ReminderSent")
	}
	if updated.ReminderGeneration != task.ReminderGeneration {
		t.Errorf("ReminderGeneration = %d, want %d", updated.ReminderGeneration, task.ReminderGeneration)
	}
}

func testNotFound(t *testing.T, s board.Store) {
	ctx := context.Background()
	if _, err := s.GetTask(ctx, "nope"); !errors.Is(err, board.ErrNotFound) {
		t.Errorf("GetTask = %v", err)
	}
	if _, err := s.UpdateTask(ctx, "nope", board.TaskPatch{}); !errors.Is(err, board.ErrNotFound) {
		t.Errorf("UpdateTask = %v", err)
	}
	if err := s.DeleteTask(ctx, "nope"); !errors.Is(err, board.ErrNotFound) {
		t.Errorf("DeleteTask = %v", err)
	}
	if err := s.MarkReminderSent(ctx, "nope"); !errors.Is(err, board.ErrNotFound) {
		t.Errorf("MarkReminderSent = %v", err)
	}
	if err := s.DeleteStage(ctx, "nope"); !errors.Is(err, board.ErrNotFound) {
		t.Errorf("DeleteStage = %v", err)
	}
}
