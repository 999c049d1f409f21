package state

import (
	"encoding/json"
	"time"
)

// SyncStatus tracks an entity's reconciliation outcome against the backend.
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncSuccess SyncStatus = "SUCCESS"
	SyncFailed  SyncStatus = "FAILED"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Todo workflow statuses.
const (
	TodoStatusNotStarted = "not-started"
	TodoStatusTodo       = "todo"
	TodoStatusInProgress = "in-progress"
	TodoStatusCompleted  = "completed"
)

type Todo struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"completed"`
	Status      string     `json:"status"`
	SyncStatus  SyncStatus `json:"syncStatus"`
	CreatedAt   time.Time  `json:"createdAt"`
	WorkspaceID string     `json:"workspaceId"`
}

type Goal struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Progress int    `json:"progress"`
	Target   int    `json:"target"`
	Category string `json:"category"`
}

// Workspace is a named container of todos and goals. Nodes and Edges are
// the graph editor's layout payloads; they are persisted opaquely and
// never interpreted here.
type Workspace struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"createdAt"`
	IsDefault bool            `json:"isDefault"`
	Status    SyncStatus      `json:"status"`
	Todos     []Todo          `json:"todos"`
	Goals     []Goal          `json:"goals"`
	Nodes     json.RawMessage `json:"initialNodes,omitempty"`
	Edges     json.RawMessage `json:"initialEdges,omitempty"`
}

// The default workspace always exists, is created locally, and can never
// be deleted.
const (
	DefaultWorkspaceID   = "workspace_default"
	DefaultWorkspaceName = "Personal"
)

func clone(ws Workspace) Workspace {
	out := ws
	out.Todos = append([]Todo(nil), ws.Todos...)
	out.Goals = append([]Goal(nil), ws.Goals...)
	return out
}
