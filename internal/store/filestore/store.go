// Package filestore keeps the whole board in a single JSON document. It suits
// single-user setups where running SQLite is not wanted.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/logging"
)

type document struct {
	Stages   []board.Stage    `json:"stages"`
	Tasks    []board.Task     `json:"tasks"`
	Activity []board.Activity `json:"botActivity"`
}

// Store is a board.Store backed by a JSON file. All methods hold one mutex;
// each mutation rewrites the file atomically.
type Store struct {
	path string
	now  func() time.Time
	log  *slog.Logger

	mu  sync.Mutex
	doc document
}

var _ board.Store = (*Store)(nil)

// Open loads path, creating a board with the default stages if it does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now, log: logging.WithComponent("store.file")}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = document{Stages: board.DefaultStages(), Tasks: []board.Task{}, Activity: []board.Activity{}}
		if err := s.flush(); err != nil {
			return nil, err
		}
		s.log.Info("created board file", slog.String("path", path))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read board file: %w", err)
	}

	if err := sonic.ConfigStd.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("failed to parse board file %s: %w", path, err)
	}
	if len(s.doc.Stages) == 0 {
		s.doc.Stages = board.DefaultStages()
	}
	return s, nil
}

// flush writes the document to a temp file and renames it over the target.
// Callers hold mu.
func (s *Store) flush() error {
	data, err := sonic.ConfigStd.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".board-*.json")
	if err != nil {
		return fmt.Errorf("failed to write board: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write board: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write board: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace board file: %w", err)
	}
	return nil
}

// Close is a no-op; every mutation is already on disk.
func (s *Store) Close() error { return nil }

func (s *Store) taskIndex(id string) int {
	for i := range s.doc.Tasks {
		if s.doc.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) stageIndex(id string) int {
	for i := range s.doc.Stages {
		if s.doc.Stages[i].ID == id {
			return i
		}
	}
	return -1
}

// cloneTask detaches a task from the document so callers cannot mutate it.
func cloneTask(t board.Task) board.Task {
	t.Checklist = append([]board.ChecklistItem{}, t.Checklist...)
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.RemindMeInMinutes != nil {
		m := *t.RemindMeInMinutes
		t.RemindMeInMinutes = &m
	}
	return t
}

// ListTasks returns tasks matching the filter in board order.
func (s *Store) ListTasks(_ context.Context, filter board.Filter) ([]board.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []board.Task{}
	for i := range s.doc.Tasks {
		if filter.Match(&s.doc.Tasks[i]) {
			out = append(out, cloneTask(s.doc.Tasks[i]))
		}
	}
	board.SortTasks(out)
	return out, nil
}

// GetTask returns a task by ID.
func (s *Store) GetTask(_ context.Context, id string) (board.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.taskIndex(id)
	if i < 0 {
		return board.Task{}, fmt.Errorf("task %s: %w", id, board.ErrNotFound)
	}
	return cloneTask(s.doc.Tasks[i]), nil
}

// CreateTask appends a task to the end of its stage.
func (s *Store) CreateTask(_ context.Context, draft board.TaskDraft) (board.Task, error) {
	if err := board.ValidateDraft(draft); err != nil {
		return board.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task := board.NewTask(draft, s.now())
	if s.stageIndex(task.StageID) < 0 {
		return board.Task{}, fmt.Errorf("%w: unknown stage %q", board.ErrInvalid, task.StageID)
	}
	task.Order = 0
	for _, t := range s.doc.Tasks {
		if t.StageID == task.StageID && t.Order >= task.Order {
			task.Order = t.Order + 1
		}
	}

	s.doc.Tasks = append(s.doc.Tasks, task)
	if err := s.flush(); err != nil {
		s.doc.Tasks = s.doc.Tasks[:len(s.doc.Tasks)-1]
		return board.Task{}, err
	}
	return cloneTask(task), nil
}

// mutateTask applies fn to a task and persists, rolling back on write failure.
func (s *Store) mutateTask(id string, fn func(t *board.Task) error) (board.Task, error) {
	i := s.taskIndex(id)
	if i < 0 {
		return board.Task{}, fmt.Errorf("task %s: %w", id, board.ErrNotFound)
	}
	prev := cloneTask(s.doc.Tasks[i])
	if err := fn(&s.doc.Tasks[i]); err != nil {
		s.doc.Tasks[i] = prev
		return board.Task{}, err
	}
	if err := s.flush(); err != nil {
		s.doc.Tasks[i] = prev
		return board.Task{}, err
	}
	return cloneTask(s.doc.Tasks[i]), nil
}

// UpdateTask applies a patch.
func (s *Store) UpdateTask(_ context.Context, id string, patch board.TaskPatch) (board.Task, error) {
	if err := patch.Validate(); err != nil {
		return board.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutateTask(id, func(t *board.Task) error {
		t.Apply(patch)
		return nil
	})
}

// DeleteTask removes a task and its checklist.
func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.taskIndex(id)
	if i < 0 {
		return fmt.Errorf("task %s: %w", id, board.ErrNotFound)
	}
	prev := s.doc.Tasks
	s.doc.Tasks = append(append([]board.Task{}, prev[:i]...), prev[i+1:]...)
	if err := s.flush(); err != nil {
		s.doc.Tasks = prev
		return err
	}
	return nil
}

// UpdateChecklistItem patches one checklist item.
func (s *Store) UpdateChecklistItem(_ context.Context, taskID, itemID string, patch board.ChecklistItemPatch) (board.ChecklistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated board.ChecklistItem
	_, err := s.mutateTask(taskID, func(t *board.Task) error {
		for j := range t.Checklist {
			if t.Checklist[j].ID == itemID {
				t.Checklist[j].Apply(patch)
				updated = t.Checklist[j]
				return nil
			}
		}
		return fmt.Errorf("checklist item %s: %w", itemID, board.ErrNotFound)
	})
	return updated, err
}

// DeleteChecklistItem removes one checklist item.
func (s *Store) DeleteChecklistItem(_ context.Context, taskID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.mutateTask(taskID, func(t *board.Task) error {
		for j := range t.Checklist {
			if t.Checklist[j].ID == itemID {
				t.Checklist = append(t.Checklist[:j:j], t.Checklist[j+1:]...)
				return nil
			}
		}
		return fmt.Errorf("checklist item %s: %w", itemID, board.ErrNotFound)
	})
	return err
}

// ListClientNames returns distinct non-empty client names, ascending.
func (s *Store) ListClientNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	clients := []string{}
	for _, t := range s.doc.Tasks {
		c := strings.TrimSpace(t.Client)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		clients = append(clients, c)
	}
	sort.Strings(clients)
	return clients, nil
}

// ListTasksNeedingReminders returns armed, unsent reminders. The threshold is
// left to the caller.
func (s *Store) ListTasksNeedingReminders(_ context.Context) ([]board.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []board.Task{}
	for _, t := range s.doc.Tasks {
		if t.ReminderSent || t.DueDate == nil || t.RemindMeInMinutes == nil {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out, nil
}

// MarkReminderSent latches the reminder flag.
func (s *Store) MarkReminderSent(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.mutateTask(taskID, func(t *board.Task) error {
		t.ReminderSent = true
		return nil
	})
	return err
}

// RecordActivity appends to the bot activity log.
func (s *Store) RecordActivity(_ context.Context, a board.Activity) error {
	if a.ID == "" || a.Timestamp.IsZero() {
		return errors.New("activity requires id and timestamp")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Activity = append(s.doc.Activity, a)
	if err := s.flush(); err != nil {
		s.doc.Activity = s.doc.Activity[:len(s.doc.Activity)-1]
		return err
	}
	return nil
}

// ListActivity returns a newest-first page of the activity log.
func (s *Store) ListActivity(_ context.Context, limit, offset int) (board.ActivityPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append([]board.Activity{}, s.doc.Activity...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	page := board.ActivityPage{Activities: []board.Activity{}, Total: len(all)}
	if offset < len(all) {
		end := len(all)
		if limit >= 0 && offset+limit < end {
			end = offset + limit
		}
		page.Activities = all[offset:end]
	}
	page.HasMore = offset+len(page.Activities) < len(all)
	return page, nil
}
