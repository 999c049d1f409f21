package state

import (
	"context"
	"strings"
)

// Goal mutations are local-only: the backend exposes no goal endpoints,
// so they mutate and persist but enqueue nothing.

// AddGoal creates a goal with zero progress.
func (s *Store) AddGoal(ctx context.Context, workspaceID, title string, target int, category string) (Goal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Goal{}, ErrBlankName
	}
	if target <= 0 {
		return Goal{}, ErrInvalidTarget
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(workspaceID)
	if i < 0 {
		return Goal{}, ErrWorkspaceNotFound
	}
	goal := Goal{
		ID:       tempID("goal", s.now()),
		Title:    title,
		Target:   target,
		Category: category,
	}
	ws.Goals = append(ws.Goals, goal)
	s.commit(ctx, Change{Action: "goal.added", WorkspaceID: workspaceID})
	return goal, nil
}

// UpdateGoal edits a goal. Progress is clamped when the target shrinks.
func (s *Store) UpdateGoal(ctx context.Context, workspaceID, id, title string, target int, category string) (Goal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Goal{}, ErrBlankName
	}
	if target <= 0 {
		return Goal{}, ErrInvalidTarget
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, err := s.findGoal(workspaceID, id)
	if err != nil {
		return Goal{}, err
	}
	goal.Title = title
	goal.Target = target
	goal.Category = category
	if goal.Progress > target {
		goal.Progress = target
	}
	s.commit(ctx, Change{Action: "goal.updated", WorkspaceID: workspaceID})
	return *goal, nil
}

// DeleteGoal removes a goal.
func (s *Store) DeleteGoal(ctx context.Context, workspaceID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(workspaceID)
	if i < 0 {
		return ErrWorkspaceNotFound
	}
	for j := range ws.Goals {
		if ws.Goals[j].ID == id {
			ws.Goals = append(ws.Goals[:j], ws.Goals[j+1:]...)
			s.commit(ctx, Change{Action: "goal.deleted", WorkspaceID: workspaceID})
			return nil
		}
	}
	return ErrGoalNotFound
}

// IncrementGoal raises progress by one, capped at the target.
func (s *Store) IncrementGoal(ctx context.Context, workspaceID, id string) (Goal, error) {
	return s.stepGoal(ctx, workspaceID, id, 1)
}

// DecrementGoal lowers progress by one, floored at zero.
func (s *Store) DecrementGoal(ctx context.Context, workspaceID, id string) (Goal, error) {
	return s.stepGoal(ctx, workspaceID, id, -1)
}

// ToggleGoalCompleted jumps progress to the target, or back to zero when
// already complete.
func (s *Store) ToggleGoalCompleted(ctx context.Context, workspaceID, id string) (Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, err := s.findGoal(workspaceID, id)
	if err != nil {
		return Goal{}, err
	}
	if goal.Progress >= goal.Target {
		goal.Progress = 0
	} else {
		goal.Progress = goal.Target
	}
	s.commit(ctx, Change{Action: "goal.toggled", WorkspaceID: workspaceID})
	return *goal, nil
}

func (s *Store) stepGoal(ctx context.Context, workspaceID, id string, delta int) (Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, err := s.findGoal(workspaceID, id)
	if err != nil {
		return Goal{}, err
	}
	next := goal.Progress + delta
	if next < 0 {
		next = 0
	}
	if next > goal.Target {
		next = goal.Target
	}
	goal.Progress = next
	s.commit(ctx, Change{Action: "goal.progress", WorkspaceID: workspaceID})
	return *goal, nil
}

// findGoal requires the lock.
func (s *Store) findGoal(workspaceID, id string) (*Goal, error) {
	ws, i := s.find(workspaceID)
	if i < 0 {
		return nil, ErrWorkspaceNotFound
	}
	for j := range ws.Goals {
		if ws.Goals[j].ID == id {
			return &ws.Goals[j], nil
		}
	}
	return nil, ErrGoalNotFound
}
