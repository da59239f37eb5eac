// Package sqlstore persists the board in SQLite.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go, the
// default) and "sqlite3" (github.com/mattn/go-sqlite3, requires cgo).
// Timestamps are stored as RFC 3339 text in UTC so both drivers read them back
// identically.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/logging"
)

const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// Store is a board.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
	log *slog.Logger
}

var _ board.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and runs migrations.
func Open(driver, path string) (*Store, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCgo {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite free of SQLITE_BUSY and makes :memory: usable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	s := &Store{db: db, now: time.Now, log: logging.WithComponent("store.sql")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS stages (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			ord INTEGER NOT NULL DEFAULT 0,
			color TEXT NOT NULL DEFAULT '#6B7280'
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			client TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'medium',
			stage_id TEXT NOT NULL,
			due_date TEXT,
			ord INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checklist_items (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS bot_activity (
			id TEXT PRIMARY KEY,
			user_request TEXT NOT NULL,
			bot_action TEXT NOT NULL,
			success BOOLEAN NOT NULL DEFAULT TRUE,
			error TEXT,
			timestamp TEXT NOT NULL
		)`,
		// Reminder columns
		`ALTER TABLE tasks ADD COLUMN remind_me_in_minutes INTEGER`,
		`ALTER TABLE tasks ADD COLUMN reminder_sent BOOLEAN NOT NULL DEFAULT FALSE`,
		`ALTER TABLE tasks ADD COLUMN reminder_generation INTEGER NOT NULL DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_stage ON tasks(stage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_reminder ON tasks(reminder_sent, remind_me_in_minutes)`,
		`CREATE INDEX IF NOT EXISTS idx_checklist_task ON checklist_items(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON bot_activity(timestamp)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			// ALTER TABLE is not idempotent in SQLite
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const taskColumns = `id, title, client, priority, stage_id, due_date, remind_me_in_minutes, reminder_sent, reminder_generation, ord, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx. The pool holds a single
// connection, so reads inside a transaction must go through the Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanTask(row rowScanner) (board.Task, error) {
	var (
		t         board.Task
		priority  string
		due       sql.NullString
		lead      sql.NullInt64
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Client, &priority, &t.StageID, &due, &lead, &t.ReminderSent, &t.ReminderGeneration, &t.Order, &createdAt); err != nil {
		return board.Task{}, err
	}
	t.Priority = board.Priority(priority)
	if due.Valid && due.String != "" {
		d, err := time.Parse(time.RFC3339Nano, due.String)
		if err != nil {
			return board.Task{}, fmt.Errorf("task %s: bad due_date: %w", t.ID, err)
		}
		t.DueDate = &d
	}
	if lead.Valid {
		m := int(lead.Int64)
		t.RemindMeInMinutes = &m
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return board.Task{}, fmt.Errorf("task %s: bad created_at: %w", t.ID, err)
	}
	t.CreatedAt = created
	t.Checklist = []board.ChecklistItem{}
	return t, nil
}

// timeLayout keeps a fixed-width fraction so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// queryTasks runs a task query and attaches checklists.
func (s *Store) queryTasks(ctx context.Context, q querier, query string, args ...any) ([]board.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []board.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachChecklists(ctx, q, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func attachChecklists(ctx context.Context, q querier, tasks []board.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	index := make(map[string]int, len(tasks))
	placeholders := make([]string, len(tasks))
	args := make([]any, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
		placeholders[i] = "?"
		args[i] = t.ID
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, task_id, text, completed FROM checklist_items
		 WHERE task_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY task_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to query checklist: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			item   board.ChecklistItem
			taskID string
		)
		if err := rows.Scan(&item.ID, &taskID, &item.Text, &item.Completed); err != nil {
			return err
		}
		if i, ok := index[taskID]; ok {
			tasks[i].Checklist = append(tasks[i].Checklist, item)
		}
	}
	return rows.Err()
}

// ListTasks returns tasks matching the filter in board order.
func (s *Store) ListTasks(ctx context.Context, filter board.Filter) ([]board.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.StageID != "" {
		where = append(where, "stage_id = ?")
		args = append(args, filter.StageID)
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.Client != "" {
		where = append(where, "client = ? COLLATE NOCASE")
		args = append(args, filter.Client)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ord, created_at, id"

	tasks, err := s.queryTasks(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}

	// Search spans checklist text, which is simpler to match after loading.
	out := make([]board.Task, 0, len(tasks))
	for i := range tasks {
		if filter.Match(&tasks[i]) {
			out = append(out, tasks[i])
		}
	}
	return out, nil
}

// GetTask returns a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (board.Task, error) {
	return s.getTask(ctx, s.db, id)
}

func (s *Store) getTask(ctx context.Context, q querier, id string) (board.Task, error) {
	tasks, err := s.queryTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return board.Task{}, err
	}
	if len(tasks) == 0 {
		return board.Task{}, fmt.Errorf("task %s: %w", id, board.ErrNotFound)
	}
	return tasks[0], nil
}

// CreateTask inserts a task at the end of its stage.
func (s *Store) CreateTask(ctx context.Context, draft board.TaskDraft) (board.Task, error) {
	if err := board.ValidateDraft(draft); err != nil {
		return board.Task{}, err
	}
	if err := s.seedStages(ctx); err != nil {
		return board.Task{}, err
	}
	task := board.NewTask(draft, s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return board.Task{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stages WHERE id = ?`, task.StageID).Scan(&exists); err != nil {
		return board.Task{}, err
	}
	if exists == 0 {
		return board.Task{}, fmt.Errorf("%w: unknown stage %q", board.ErrInvalid, task.StageID)
	}

	var maxOrder sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(ord) FROM tasks WHERE stage_id = ?`, task.StageID).Scan(&maxOrder); err != nil {
		return board.Task{}, err
	}
	task.Order = 0
	if maxOrder.Valid {
		task.Order = int(maxOrder.Int64) + 1
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Client, string(task.Priority), task.StageID,
		nullTime(task.DueDate), nullInt(task.RemindMeInMinutes), task.ReminderSent, task.ReminderGeneration,
		task.Order, formatTime(task.CreatedAt))
	if err != nil {
		return board.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	if err := insertChecklist(ctx, tx, task.ID, task.Checklist); err != nil {
		return board.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return board.Task{}, fmt.Errorf("failed to commit: %w", err)
	}

	s.log.Debug("task created", slog.String("task_id", task.ID), slog.String("stage_id", task.StageID))
	return task, nil
}

func insertChecklist(ctx context.Context, tx *sql.Tx, taskID string, items []board.ChecklistItem) error {
	for i, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checklist_items (id, task_id, position, text, completed) VALUES (?, ?, ?, ?, ?)`,
			item.ID, taskID, i, item.Text, item.Completed); err != nil {
			return fmt.Errorf("failed to insert checklist item: %w", err)
		}
	}
	return nil
}

// UpdateTask reads, patches and writes a task in one transaction, so a
// concurrent MarkReminderSent is either seen or applied afterwards.
func (s *Store) UpdateTask(ctx context.Context, id string, patch board.TaskPatch) (board.Task, error) {
	if err := patch.Validate(); err != nil {
		return board.Task{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return board.Task{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	task, err := s.getTask(ctx, tx, id)
	if err != nil {
		return board.Task{}, err
	}
	task.Apply(patch)

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, client = ?, priority = ?, stage_id = ?, due_date = ?,
		 remind_me_in_minutes = ?, reminder_sent = ?, reminder_generation = ?, ord = ? WHERE id = ?`,
		task.Title, task.Client, string(task.Priority), task.StageID, nullTime(task.DueDate),
		nullInt(task.RemindMeInMinutes), task.ReminderSent, task.ReminderGeneration, task.Order, id)
	if err != nil {
		return board.Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	if patch.Checklist != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE task_id = ?`, id); err != nil {
			return board.Task{}, fmt.Errorf("failed to replace checklist: %w", err)
		}
		if err := insertChecklist(ctx, tx, id, task.Checklist); err != nil {
			return board.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return board.Task{}, fmt.Errorf("failed to commit: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task and its checklist.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, board.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete checklist: %w", err)
	}
	return tx.Commit()
}

// UpdateChecklistItem patches one checklist item of a task.
func (s *Store) UpdateChecklistItem(ctx context.Context, taskID, itemID string, patch board.ChecklistItemPatch) (board.ChecklistItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return board.ChecklistItem{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	task, err := s.getTask(ctx, tx, taskID)
	if err != nil {
		return board.ChecklistItem{}, err
	}
	for _, item := range task.Checklist {
		if item.ID != itemID {
			continue
		}
		item.Apply(patch)
		if _, err := tx.ExecContext(ctx,
			`UPDATE checklist_items SET text = ?, completed = ? WHERE id = ? AND task_id = ?`,
			item.Text, item.Completed, itemID, taskID); err != nil {
			return board.ChecklistItem{}, fmt.Errorf("failed to update checklist item: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return board.ChecklistItem{}, fmt.Errorf("failed to commit: %w", err)
		}
		return item, nil
	}
	return board.ChecklistItem{}, fmt.Errorf("checklist item %s: %w", itemID, board.ErrNotFound)
}

// DeleteChecklistItem removes one checklist item of a task.
func (s *Store) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	if _, err := s.GetTask(ctx, taskID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM checklist_items WHERE id = ? AND task_id = ?`, itemID, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete checklist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("checklist item %s: %w", itemID, board.ErrNotFound)
	}
	return nil
}

// ListClientNames returns distinct non-empty client names, ascending.
func (s *Store) ListClientNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT client FROM tasks WHERE client != '' ORDER BY client`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	clients := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ListTasksNeedingReminders pre-filters on the reminder columns. The threshold
// itself is evaluated by the caller against its own clock.
func (s *Store) ListTasksNeedingReminders(ctx context.Context) ([]board.Task, error) {
	return s.queryTasks(ctx, s.db, `SELECT `+taskColumns+` FROM tasks
		WHERE remind_me_in_minutes IS NOT NULL AND reminder_sent = FALSE AND due_date IS NOT NULL
		ORDER BY due_date, id`)
}

// MarkReminderSent latches the reminder flag.
func (s *Store) MarkReminderSent(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET reminder_sent = TRUE WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", taskID, board.ErrNotFound)
	}
	return nil
}

// RecordActivity appends to the bot activity log.
func (s *Store) RecordActivity(ctx context.Context, a board.Activity) error {
	if a.ID == "" || a.Timestamp.IsZero() {
		return errors.New("activity requires id and timestamp")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_activity (id, user_request, bot_action, success, error, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserRequest, a.BotAction, a.Success, a.Error, formatTime(a.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListActivity returns a newest-first page of the activity log.
func (s *Store) ListActivity(ctx context.Context, limit, offset int) (board.ActivityPage, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_activity`).Scan(&total); err != nil {
		return board.ActivityPage{}, fmt.Errorf("failed to count activity: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_request, bot_action, success, COALESCE(error, ''), timestamp
		 FROM bot_activity ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return board.ActivityPage{}, fmt.Errorf("failed to query activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := board.ActivityPage{Activities: []board.Activity{}, Total: total}
	for rows.Next() {
		var (
			a  board.Activity
			ts string
		)
		if err := rows.Scan(&a.ID, &a.UserRequest, &a.BotAction, &a.Success, &a.Error, &ts); err != nil {
			return board.ActivityPage{}, err
		}
		if a.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return board.ActivityPage{}, fmt.Errorf("activity %s: bad timestamp: %w", a.ID, err)
		}
		page.Activities = append(page.Activities, a)
	}
	if err := rows.Err(); err != nil {
		return board.ActivityPage{}, err
	}
	page.HasMore = offset+len(page.Activities) < total
	return page, nil
}
