package state

import (
	"context"
	"encoding/json"
)

// Patches applied by the reconciler once the backend answers. Each one
// targets the collection; the current-workspace view follows automatically
// because it is materialized by id, so collection and pointer cannot
// desync. All patches are idempotent: re-applying against an
// already-patched or already-removed entity is a no-op.

// ConfirmWorkspace rewrites a temporary workspace id to the server id and
// marks it SUCCESS. Selection tracks the rewrite when it aliases the
// workspace.
func (s *Store) ConfirmWorkspace(ctx context.Context, tempID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(tempID)
	if i < 0 {
		return
	}
	ws.ID = serverID
	ws.Status = SyncSuccess
	for j := range ws.Todos {
		ws.Todos[j].WorkspaceID = serverID
	}
	if s.currentID == tempID {
		s.currentID = serverID
	}
	s.commit(ctx, Change{Action: "workspace.confirmed", WorkspaceID: serverID})
}

// ConfirmWorkspaceRename applies the server-acknowledged name and marks
// the workspace SUCCESS. The id in a queued rename can be stale when the
// workspace's own creation was confirmed mid-drain, so lookup falls back
// to the name the optimistic rename already applied.
func (s *Store) ConfirmWorkspaceRename(ctx context.Context, id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(id)
	if i < 0 {
		ws, i = s.findByName(name)
	}
	if i < 0 {
		return
	}
	ws.Name = name
	ws.Status = SyncSuccess
	s.commit(ctx, Change{Action: "workspace.confirmed", WorkspaceID: ws.ID})
}

// MarkRenameFailed marks a workspace FAILED after a definitively rejected
// rename. Like ConfirmWorkspaceRename it tolerates a stale id, falling
// back to the names the rename moved between.
func (s *Store) MarkRenameFailed(ctx context.Context, id, oldName, newName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(id)
	if i < 0 {
		ws, i = s.findByName(newName)
	}
	if i < 0 {
		ws, i = s.findByName(oldName)
	}
	if i < 0 {
		return
	}
	ws.Status = SyncFailed
	s.commit(ctx, Change{Action: "workspace.status", WorkspaceID: ws.ID})
}

// MarkWorkspaceStatus sets a workspace's sync status, typically FAILED on
// exhausted retries.
func (s *Store) MarkWorkspaceStatus(ctx context.Context, id string, status SyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(id)
	if i < 0 {
		return
	}
	ws.Status = status
	s.commit(ctx, Change{Action: "workspace.status", WorkspaceID: id})
}

// RestoreWorkspace re-inserts a workspace whose deletion the backend
// definitively rejected. No-op when the id is already present.
func (s *Store) RestoreWorkspace(ctx context.Context, raw json.RawMessage) {
	var ws Workspace
	if err := json.Unmarshal(raw, &ws); err != nil {
		s.log.Error("decode workspace for restore", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, i := s.find(ws.ID); i >= 0 {
		return
	}
	ws.Status = SyncFailed
	s.workspaces = append(s.workspaces, ws)
	s.commit(ctx, Change{Action: "workspace.restored", WorkspaceID: ws.ID})
}

// ConfirmTodo rewrites a temporary todo id to the server id, marks it
// SUCCESS, and drops any duplicate already carrying the server id. The
// workspace id in a queued todo operation can be stale when the
// workspace's own confirmation rewrote it mid-drain, so lookup falls back
// to scanning for the todo.
func (s *Store) ConfirmTodo(ctx context.Context, workspaceID, tempID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(workspaceID)
	if i < 0 {
		ws, i = s.findByTodo(tempID)
	}
	if i < 0 {
		return
	}
	workspaceID = ws.ID
	seen := false
	todos := ws.Todos[:0]
	for _, t := range ws.Todos {
		if t.ID == tempID {
			t.ID = serverID
			t.SyncStatus = SyncSuccess
		}
		if t.ID == serverID {
			if seen {
				continue
			}
			seen = true
		}
		todos = append(todos, t)
	}
	ws.Todos = todos
	s.commit(ctx, Change{Action: "todo.confirmed", WorkspaceID: workspaceID})
}

// MarkTodoSyncStatus sets a todo's sync status. Like ConfirmTodo it
// tolerates a stale workspace id in the operation payload.
func (s *Store) MarkTodoSyncStatus(ctx context.Context, workspaceID, id string, status SyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, i := s.find(workspaceID)
	if i < 0 {
		ws, i = s.findByTodo(id)
	}
	if i < 0 {
		return
	}
	todo := findTodo(ws, id)
	if todo == nil {
		return
	}
	todo.SyncStatus = status
	s.commit(ctx, Change{Action: "todo.status", WorkspaceID: ws.ID})
}

// findByName locates a workspace by its current name. Callers hold the
// lock.
func (s *Store) findByName(name string) (*Workspace, int) {
	for i := range s.workspaces {
		if s.workspaces[i].Name == name {
			return &s.workspaces[i], i
		}
	}
	return nil, -1
}

// findByTodo locates the workspace containing a todo id. Callers hold the
// lock.
func (s *Store) findByTodo(id string) (*Workspace, int) {
	for i := range s.workspaces {
		if findTodo(&s.workspaces[i], id) != nil {
			return &s.workspaces[i], i
		}
	}
	return nil, -1
}
