package filestore

import (
	"context"
	"fmt"

	"github.com/alekspetrov/taskboard/internal/board"
)

// ListStages returns stages by order, re-seeding defaults on an empty board.
func (s *Store) ListStages(_ context.Context) ([]board.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.doc.Stages) == 0 {
		s.doc.Stages = board.DefaultStages()
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	out := append([]board.Stage{}, s.doc.Stages...)
	board.SortStages(out)
	return out, nil
}

// GetStage returns a stage by ID.
func (s *Store) GetStage(_ context.Context, id string) (board.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.stageIndex(id)
	if i < 0 {
		return board.Stage{}, fmt.Errorf("stage %s: %w", id, board.ErrNotFound)
	}
	return s.doc.Stages[i], nil
}

// CreateStage appends a stage after the existing ones.
func (s *Store) CreateStage(_ context.Context, name, color string) (board.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := 0
	for _, st := range s.doc.Stages {
		if st.Order >= order {
			order = st.Order + 1
		}
	}
	st := board.NewStage(name, color, order)
	s.doc.Stages = append(s.doc.Stages, st)
	if err := s.flush(); err != nil {
		s.doc.Stages = s.doc.Stages[:len(s.doc.Stages)-1]
		return board.Stage{}, err
	}
	return st, nil
}

// UpdateStage applies a patch to a stage.
func (s *Store) UpdateStage(_ context.Context, id string, patch board.StagePatch) (board.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.stageIndex(id)
	if i < 0 {
		return board.Stage{}, fmt.Errorf("stage %s: %w", id, board.ErrNotFound)
	}
	prev := s.doc.Stages[i]
	s.doc.Stages[i].Apply(patch)
	if err := s.flush(); err != nil {
		s.doc.Stages[i] = prev
		return board.Stage{}, err
	}
	return s.doc.Stages[i], nil
}

// ReorderStages sets each listed stage's order to its index in ids.
func (s *Store) ReorderStages(ctx context.Context, ids []string) ([]board.Stage, error) {
	s.mu.Lock()
	prev := append([]board.Stage{}, s.doc.Stages...)
	for order, id := range ids {
		i := s.stageIndex(id)
		if i < 0 {
			s.doc.Stages = prev
			s.mu.Unlock()
			return nil, fmt.Errorf("stage %s: %w", id, board.ErrNotFound)
		}
		s.doc.Stages[i].Order = order
	}
	if err := s.flush(); err != nil {
		s.doc.Stages = prev
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	return s.ListStages(ctx)
}

// DeleteStage removes an empty stage.
func (s *Store) DeleteStage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.stageIndex(id)
	if i < 0 {
		return fmt.Errorf("stage %s: %w", id, board.ErrNotFound)
	}
	for _, t := range s.doc.Tasks {
		if t.StageID == id {
			return board.ErrStageNotEmpty
		}
	}
	prev := s.doc.Stages
	s.doc.Stages = append(append([]board.Stage{}, prev[:i]...), prev[i+1:]...)
	if err := s.flush(); err != nil {
		s.doc.Stages = prev
		return err
	}
	return nil
}
