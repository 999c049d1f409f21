// Package state holds the in-memory model of workspaces, todos, and
// goals. Mutations apply optimistically, persist a snapshot, and enqueue
// exactly one pending operation for anything the backend must confirm;
// they never perform network calls themselves.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fastodo/internal/kv"
	"fastodo/internal/oplog"
)

var (
	ErrBlankName         = errors.New("name must not be blank")
	ErrDuplicateName     = errors.New("workspace name already exists")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrTodoNotFound      = errors.New("todo not found")
	ErrGoalNotFound      = errors.New("goal not found")
	ErrDefaultWorkspace  = errors.New("default workspace cannot be deleted")
	ErrInvalidPriority   = errors.New("priority must be low, medium or high")
	ErrInvalidTarget     = errors.New("target must be a positive integer")
)

// Store owns the workspace collection and the current-workspace pointer.
// The pointer is tracked by id so the two can never disagree; every
// accessor materializes the aliased element from the collection.
type Store struct {
	mu         sync.Mutex
	workspaces []Workspace
	currentID  string

	ops       *oplog.Log
	snapshots kv.Table
	log       *slog.Logger
	subs      map[chan Change]struct{}

	// Now is the clock used for created-at stamps and temporary ids.
	// Tests override it.
	Now func() time.Time
}

// New builds a store persisting snapshots into the given kv store and
// enqueueing operations into ops. Any previously persisted snapshot is
// loaded; a corrupt or absent snapshot starts empty.
func New(store *kv.Store, ops *oplog.Log, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		ops:       ops,
		snapshots: store.Table(SnapshotTable),
		log:       logger,
		subs:      make(map[chan Change]struct{}),
		Now:       time.Now,
	}
	s.load(context.Background())
	return s
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func tempID(kind string, now time.Time) string {
	return fmt.Sprintf("%s_%d", kind, now.UnixMilli())
}

// Workspaces returns a copy of the workspace collection.
func (s *Store) Workspaces() []Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		out = append(out, clone(ws))
	}
	return out
}

// CurrentWorkspace returns the current workspace, materialized from the
// collection, and false when none is selected.
func (s *Store) CurrentWorkspace() (Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(s.currentID)
	if i < 0 {
		return Workspace{}, false
	}
	return clone(*ws), true
}

// Workspace returns one workspace by id.
func (s *Store) Workspace(id string) (Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(id)
	if i < 0 {
		return Workspace{}, ErrWorkspaceNotFound
	}
	return clone(*ws), nil
}

func (s *Store) find(id string) (*Workspace, int) {
	for i := range s.workspaces {
		if s.workspaces[i].ID == id {
			return &s.workspaces[i], i
		}
	}
	return nil, -1
}

func (s *Store) findDefault() (*Workspace, int) {
	for i := range s.workspaces {
		if s.workspaces[i].IsDefault {
			return &s.workspaces[i], i
		}
	}
	return nil, -1
}

// InitializeDefaultWorkspace seeds the default workspace when missing and
// makes it current when nothing is selected. Idempotent.
func (s *Store) InitializeDefaultWorkspace(ctx context.Context) Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, i := s.findDefault()
	if i < 0 {
		ws := Workspace{
			ID:        DefaultWorkspaceID,
			Name:      DefaultWorkspaceName,
			CreatedAt: s.now(),
			IsDefault: true,
			Status:    SyncSuccess,
		}
		s.workspaces = append(s.workspaces, ws)
		s.currentID = ws.ID
		s.commit(ctx, Change{Action: "workspace.initialized", WorkspaceID: ws.ID})
		return ws
	}
	if _, cur := s.find(s.currentID); cur < 0 {
		s.currentID = def.ID
		s.commit(ctx, Change{Action: "workspace.selected", WorkspaceID: def.ID})
	}
	return clone(*def)
}

// AddWorkspace creates a workspace optimistically under a temporary id and
// queues its creation against the backend.
func (s *Store) AddWorkspace(ctx context.Context, name, userID string) (Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Workspace{}, ErrBlankName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.workspaces {
		if s.workspaces[i].Name == name {
			return Workspace{}, ErrDuplicateName
		}
	}
	now := s.now()
	ws := Workspace{
		ID:        tempID("workspace", now),
		Name:      name,
		CreatedAt: now,
		Status:    SyncPending,
	}
	s.workspaces = append(s.workspaces, ws)
	s.ops.Append(ctx, oplog.New(oplog.CreateWorkspacePayload{
		WorkspaceName: name,
		UserID:        userID,
		TempID:        ws.ID,
	}, ws.ID, now))
	s.commit(ctx, Change{Action: "workspace.added", WorkspaceID: ws.ID})
	return ws, nil
}

// EditWorkspace renames a workspace in place and queues the rename.
func (s *Store) EditWorkspace(ctx context.Context, id, name, userID string) (Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Workspace{}, ErrBlankName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(id)
	if i < 0 {
		return Workspace{}, ErrWorkspaceNotFound
	}
	oldName := ws.Name
	ws.Name = name
	ws.Status = SyncPending
	s.ops.Append(ctx, oplog.New(oplog.UpdateWorkspacePayload{
		WorkspaceID: id,
		OldName:     oldName,
		NewName:     name,
		UserID:      userID,
	}, id, s.now()))
	s.commit(ctx, Change{Action: "workspace.edited", WorkspaceID: id})
	return clone(*ws), nil
}

// DeleteWorkspace removes a workspace. The default workspace is protected;
// deleting the current workspace switches selection to the default. The
// removed workspace rides along in the payload so a definitive backend
// failure can restore it.
func (s *Store) DeleteWorkspace(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(id)
	if i < 0 {
		return ErrWorkspaceNotFound
	}
	if ws.IsDefault {
		return ErrDefaultWorkspace
	}
	removed := clone(*ws)
	s.workspaces = append(s.workspaces[:i], s.workspaces[i+1:]...)
	if s.currentID == id {
		if def, j := s.findDefault(); j >= 0 {
			s.currentID = def.ID
		} else {
			s.currentID = ""
		}
	}
	snapshot, err := json.Marshal(removed)
	if err != nil {
		s.log.Error("encode removed workspace", "workspace", id, "err", err)
		snapshot = nil
	}
	s.ops.Append(ctx, oplog.New(oplog.DeleteWorkspacePayload{
		WorkspaceName: removed.Name,
		UserID:        userID,
		Removed:       snapshot,
	}, id, s.now()))
	s.commit(ctx, Change{Action: "workspace.deleted", WorkspaceID: id})
	return nil
}

// SetCurrentWorkspace selects a workspace by id.
func (s *Store) SetCurrentWorkspace(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, i := s.find(id); i < 0 {
		return ErrWorkspaceNotFound
	}
	s.currentID = id
	s.commit(ctx, Change{Action: "workspace.selected", WorkspaceID: id})
	return nil
}

// AddTodo appends a todo to a workspace under a temporary id and queues
// its creation.
func (s *Store) AddTodo(ctx context.Context, workspaceID, text string, priority Priority, userID string) (Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Todo{}, ErrBlankName
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Todo{}, ErrInvalidPriority
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(workspaceID)
	if i < 0 {
		return Todo{}, ErrWorkspaceNotFound
	}
	now := s.now()
	todo := Todo{
		ID:          tempID("todo", now),
		Text:        text,
		Priority:    priority,
		Status:      TodoStatusTodo,
		SyncStatus:  SyncPending,
		CreatedAt:   now,
		WorkspaceID: workspaceID,
	}
	ws.Todos = append(ws.Todos, todo)
	s.ops.Append(ctx, oplog.New(oplog.CreateTodoPayload{
		TempID:      todo.ID,
		Text:        text,
		Priority:    string(priority),
		Done:        false,
		UserID:      userID,
		WorkspaceID: workspaceID,
	}, todo.ID, now))
	s.commit(ctx, Change{Action: "todo.added", WorkspaceID: workspaceID})
	return todo, nil
}

// UpdateTodo patches a todo's text and priority in place.
func (s *Store) UpdateTodo(ctx context.Context, workspaceID, id, text string, priority Priority) (Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Todo{}, ErrBlankName
	}
	if !priority.Valid() {
		return Todo{}, ErrInvalidPriority
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(workspaceID)
	if i < 0 {
		return Todo{}, ErrWorkspaceNotFound
	}
	todo := findTodo(ws, id)
	if todo == nil {
		return Todo{}, ErrTodoNotFound
	}
	todo.Text = text
	todo.Priority = priority
	todo.SyncStatus = SyncPending
	s.ops.Append(ctx, oplog.New(oplog.UpdateTodoPayload{
		ID:          id,
		Text:        text,
		Priority:    string(priority),
		WorkspaceID: workspaceID,
	}, id, s.now()))
	s.commit(ctx, Change{Action: "todo.updated", WorkspaceID: workspaceID})
	return *todo, nil
}

// DeleteTodo removes a todo and queues the deletion.
func (s *Store) DeleteTodo(ctx context.Context, workspaceID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(workspaceID)
	if i < 0 {
		return ErrWorkspaceNotFound
	}
	idx := -1
	for j := range ws.Todos {
		if ws.Todos[j].ID == id {
			idx = j
			break
		}
	}
	if idx < 0 {
		return ErrTodoNotFound
	}
	ws.Todos = append(ws.Todos[:idx], ws.Todos[idx+1:]...)
	s.ops.Append(ctx, oplog.New(oplog.DeleteTodoPayload{
		ID:          id,
		WorkspaceID: workspaceID,
	}, id, s.now()))
	s.commit(ctx, Change{Action: "todo.deleted", WorkspaceID: workspaceID})
	return nil
}

// ToggleTodo flips a todo's completion wherever it lives and queues the
// toggle against the backend.
func (s *Store) ToggleTodo(ctx context.Context, id, userID string) (Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.workspaces {
		ws := &s.workspaces[i]
		todo := findTodo(ws, id)
		if todo == nil {
			continue
		}
		todo.Completed = !todo.Completed
		if todo.Completed {
			todo.Status = TodoStatusCompleted
		} else {
			todo.Status = TodoStatusTodo
		}
		todo.SyncStatus = SyncPending
		s.ops.Append(ctx, oplog.New(oplog.ToggleTodoPayload{
			ID:          id,
			Toggle:      todo.Completed,
			UserID:      userID,
			WorkspaceID: ws.ID,
		}, id, s.now()))
		s.commit(ctx, Change{Action: "todo.toggled", WorkspaceID: ws.ID})
		return *todo, nil
	}
	return Todo{}, ErrTodoNotFound
}

func findTodo(ws *Workspace, id string) *Todo {
	for i := range ws.Todos {
		if ws.Todos[i].ID == id {
			return &ws.Todos[i]
		}
	}
	return nil
}
