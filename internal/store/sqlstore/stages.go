package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alekspetrov/taskboard/internal/board"
)

// seedStages inserts the default columns into an empty board.
func (s *Store) seedStages(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stages`).Scan(&n); err != nil {
		return fmt.Errorf("failed to count stages: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, st := range board.DefaultStages() {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO stages (id, name, ord, color) VALUES (?, ?, ?, ?)`,
			st.ID, st.Name, st.Order, st.Color); err != nil {
			return fmt.Errorf("failed to seed stages: %w", err)
		}
	}
	s.log.Info("seeded default stages")
	return nil
}

// ListStages returns all stages by order, seeding defaults when none exist.
func (s *Store) ListStages(ctx context.Context) ([]board.Stage, error) {
	if err := s.seedStages(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ord, color FROM stages ORDER BY ord, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stages := []board.Stage{}
	for rows.Next() {
		var st board.Stage
		if err := rows.Scan(&st.ID, &st.Name, &st.Order, &st.Color); err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// GetStage returns a stage by ID.
func (s *Store) GetStage(ctx context.Context, id string) (board.Stage, error) {
	var st board.Stage
	err := s.db.QueryRowContext(ctx, `SELECT id, name, ord, color FROM stages WHERE id = ?`, id).
		Scan(&st.ID, &st.Name, &st.Order, &st.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Stage{}, fmt.Errorf("stage %s: %w", id, board.ErrNotFound)
	}
	if err != nil {
		return board.Stage{}, fmt.Errorf("failed to get stage: %w", err)
	}
	return st, nil
}

// CreateStage appends a stage after the existing ones.
func (s *Store) CreateStage(ctx context.Context, name, color string) (board.Stage, error) {
	var maxOrder sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(ord) FROM stages`).Scan(&maxOrder); err != nil {
		return board.Stage{}, err
	}
	order := 0
	if maxOrder.Valid {
		order = int(maxOrder.Int64) + 1
	}
	st := board.NewStage(name, color, order)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (id, name, ord, color) VALUES (?, ?, ?, ?)`,
		st.ID, st.Name, st.Order, st.Color); err != nil {
		return board.Stage{}, fmt.Errorf("failed to insert stage: %w", err)
	}
	return st, nil
}

// UpdateStage applies a patch to a stage.
func (s *Store) UpdateStage(ctx context.Context, id string, patch board.StagePatch) (board.Stage, error) {
	st, err := s.GetStage(ctx, id)
	if err != nil {
		return board.Stage{}, err
	}
	st.Apply(patch)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE stages SET name = ?, ord = ?, color = ? WHERE id = ?`,
		st.Name, st.Order, st.Color, id); err != nil {
		return board.Stage{}, fmt.Errorf("failed to update stage: %w", err)
	}
	return st, nil
}

// ReorderStages sets each listed stage's order to its index in ids.
func (s *Store) ReorderStages(ctx context.Context, ids []string) ([]board.Stage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, id := range ids {
		res, err := tx.ExecContext(ctx, `UPDATE stages SET ord = ? WHERE id = ?`, i, id)
		if err != nil {
			return nil, fmt.Errorf("failed to reorder stages: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("stage %s: %w", id, board.ErrNotFound)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return s.ListStages(ctx)
}

// DeleteStage removes an empty stage.
func (s *Store) DeleteStage(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE stage_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return board.ErrStageNotEmpty
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stage %s: %w", id, board.ErrNotFound)
	}
	return tx.Commit()
}
