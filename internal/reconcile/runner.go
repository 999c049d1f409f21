// Package reconcile replays the pending-operation log against the backend
// and folds authoritative results back into local state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fastodo/internal/api"
	"fastodo/internal/oplog"
	"fastodo/internal/state"
)

// Backend is the remote API surface the runner drains against.
// *api.Client satisfies it; tests substitute stubs.
type Backend interface {
	CreateWorkspace(ctx context.Context, workspaceName, userID string) (api.CreateWorkspaceResponse, error)
	UpdateWorkspace(ctx context.Context, workspaceName, updatedWorkspaceName, userID string) (api.StringResponse, error)
	DeleteWorkspace(ctx context.Context, workspaceName, userID string) (api.StringResponse, error)
	CreateTodo(ctx context.Context, userID, workspaceID, task, priority string, done bool) (api.CreateTodoResponse, error)
	UpdateTodo(ctx context.Context, id, task, priority string) (api.UpdateTodoResponse, error)
	DeleteTodo(ctx context.Context, id string) error
	ToggleTodo(ctx context.Context, id string, toggle bool, userID string) (api.ToggleTodoResponse, error)
}

// DefaultRetryLimit is the retry ceiling after which an operation is
// abandoned and its entity marked FAILED.
const DefaultRetryLimit = 3

// ErrDrainInProgress is returned when a drain overlaps a running one.
// Overlapping drains would double-send create operations, so they are
// rejected rather than serialized.
var ErrDrainInProgress = errors.New("drain already in progress")

type Runner struct {
	State      *state.Store
	Log        *oplog.Log
	Backend    Backend
	RetryLimit int
	Logger     *slog.Logger

	draining atomic.Bool
}

func New(st *state.Store, log *oplog.Log, backend Backend, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		State:      st,
		Log:        log,
		Backend:    backend,
		RetryLimit: DefaultRetryLimit,
		Logger:     logger,
	}
}

// Stats summarizes one drain.
type Stats struct {
	Processed int
	Succeeded int
	Retried   int
	Abandoned int
}

// Drain reads the pending log once and processes each operation to
// completion in order. One operation's failure never stops the rest. A
// new operation enqueued mid-drain is picked up by the next drain.
func (r *Runner) Drain(ctx context.Context) (Stats, error) {
	if !r.draining.CompareAndSwap(false, true) {
		return Stats{}, ErrDrainInProgress
	}
	defer r.draining.Store(false)

	runID := uuid.New().String()
	ops := r.Log.List(ctx)
	r.Logger.Info("drain started", "run", runID, "pending", len(ops))

	var stats Stats
	for _, op := range ops {
		if op.Status != oplog.StatusPending {
			continue
		}
		stats.Processed++
		if err := r.process(ctx, op); err != nil {
			r.Logger.Warn("operation failed", "run", runID, "op", op.ID, "attempt", op.RetryCount+1, "err", err)
			if r.fail(ctx, op) {
				stats.Abandoned++
			} else {
				stats.Retried++
			}
			continue
		}
		r.Log.Remove(ctx, op.ID)
		stats.Succeeded++
	}
	r.Logger.Info("drain finished", "run", runID,
		"succeeded", stats.Succeeded, "retried", stats.Retried, "abandoned", stats.Abandoned)
	return stats, nil
}

// RunEvery drains on a ticker until the context is cancelled.
func (r *Runner) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) {
				r.Logger.Error("background drain", "err", err)
			}
		}
	}
}

// process performs the remote call for one operation and, on success,
// applies its state patch. The success predicates are the backend's
// contracts and are matched exactly, never coerced.
func (r *Runner) process(ctx context.Context, op oplog.Operation) error {
	switch p := op.Payload.(type) {
	case oplog.CreateWorkspacePayload:
		resp, err := r.Backend.CreateWorkspace(ctx, p.WorkspaceName, p.UserID)
		if err != nil {
			return err
		}
		if resp.Response.Success != "true" {
			return fmt.Errorf("create workspace rejected: success=%q", resp.Response.Success)
		}
		r.State.ConfirmWorkspace(ctx, p.TempID, resp.Response.WorkspaceID)
		return nil

	case oplog.UpdateWorkspacePayload:
		resp, err := r.Backend.UpdateWorkspace(ctx, p.OldName, p.NewName, p.UserID)
		if err != nil {
			return err
		}
		if resp.Response != "Success" {
			return fmt.Errorf("update workspace rejected: response=%q", resp.Response)
		}
		r.State.ConfirmWorkspaceRename(ctx, p.WorkspaceID, p.NewName)
		return nil

	case oplog.DeleteWorkspacePayload:
		resp, err := r.Backend.DeleteWorkspace(ctx, p.WorkspaceName, p.UserID)
		if err != nil {
			return err
		}
		if resp.Response != "Success" {
			return fmt.Errorf("delete workspace rejected: response=%q", resp.Response)
		}
		// the workspace is already gone locally; nothing to patch
		return nil

	case oplog.CreateTodoPayload:
		resp, err := r.Backend.CreateTodo(ctx, p.UserID, p.WorkspaceID, p.Text, p.Priority, p.Done)
		if err != nil {
			return err
		}
		if resp.Success != "true" {
			return fmt.Errorf("create todo rejected: success=%q", resp.Success)
		}
		serverID := resp.Response.ID
		if serverID == "" {
			serverID = p.TempID
		}
		r.State.ConfirmTodo(ctx, p.WorkspaceID, p.TempID, serverID)
		return nil

	case oplog.UpdateTodoPayload:
		resp, err := r.Backend.UpdateTodo(ctx, p.ID, p.Text, p.Priority)
		if err != nil {
			return err
		}
		if resp.Success != "true" {
			return fmt.Errorf("update todo rejected: success=%q", resp.Success)
		}
		r.State.MarkTodoSyncStatus(ctx, p.WorkspaceID, p.ID, state.SyncSuccess)
		return nil

	case oplog.DeleteTodoPayload:
		// success is the HTTP status alone for this endpoint
		return r.Backend.DeleteTodo(ctx, p.ID)

	case oplog.ToggleTodoPayload:
		resp, err := r.Backend.ToggleTodo(ctx, p.ID, p.Toggle, p.UserID)
		if err != nil {
			return err
		}
		if resp.Response != "true" {
			return fmt.Errorf("toggle todo rejected: response=%q", resp.Response)
		}
		r.State.MarkTodoSyncStatus(ctx, p.WorkspaceID, p.ID, state.SyncSuccess)
		return nil

	default:
		return fmt.Errorf("unhandled operation type %s", op.Type)
	}
}

// fail bumps the retry counter and either re-persists the operation or,
// at the ceiling, abandons it and marks the affected entity FAILED.
// Reports whether the operation was abandoned.
func (r *Runner) fail(ctx context.Context, op oplog.Operation) bool {
	op.RetryCount++
	if op.RetryCount < r.retryLimit() {
		r.Log.Append(ctx, op)
		return false
	}
	r.abandon(ctx, op)
	r.Log.Remove(ctx, op.ID)
	return true
}

func (r *Runner) retryLimit() int {
	if r.RetryLimit > 0 {
		return r.RetryLimit
	}
	return DefaultRetryLimit
}

func (r *Runner) abandon(ctx context.Context, op oplog.Operation) {
	r.Logger.Error("retry ceiling reached, abandoning operation", "op", op.ID)
	switch p := op.Payload.(type) {
	case oplog.CreateWorkspacePayload:
		r.State.MarkWorkspaceStatus(ctx, p.TempID, state.SyncFailed)
	case oplog.UpdateWorkspacePayload:
		r.State.MarkRenameFailed(ctx, p.WorkspaceID, p.OldName, p.NewName)
	case oplog.DeleteWorkspacePayload:
		if len(p.Removed) > 0 {
			r.State.RestoreWorkspace(ctx, p.Removed)
		}
	case oplog.CreateTodoPayload:
		r.State.MarkTodoSyncStatus(ctx, p.WorkspaceID, p.TempID, state.SyncFailed)
	case oplog.UpdateTodoPayload:
		r.State.MarkTodoSyncStatus(ctx, p.WorkspaceID, p.ID, state.SyncFailed)
	case oplog.ToggleTodoPayload:
		r.State.MarkTodoSyncStatus(ctx, p.WorkspaceID, p.ID, state.SyncFailed)
	case oplog.DeleteTodoPayload:
		// the todo is already gone locally; nothing left to mark
	}
}
