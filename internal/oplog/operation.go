// Package oplog holds the durable log of pending operations: replayable
// descriptions of mutations that have been applied optimistically but not
// yet confirmed by the backend.
package oplog

import (
	"encoding/json"
	"fmt"
	"time"
)

type Type string

const (
	TypeCreateWorkspace Type = "CREATE_WORKSPACE"
	TypeUpdateWorkspace Type = "UPDATE_WORKSPACE"
	TypeDeleteWorkspace Type = "DELETE_WORKSPACE"
	TypeCreateTodo      Type = "CREATE_TODO"
	TypeUpdateTodo      Type = "UPDATE_TODO"
	TypeDeleteTodo      Type = "DELETE_TODO"
	TypeToggleTodo      Type = "TOGGLE_TODO"
)

// StatusPending is the only live status; resolved operations are removed
// from the log rather than mutated in place.
const StatusPending = "PENDING"

// Payload is the tagged union of per-type operation payloads. Each
// operation type has exactly one concrete payload shape so dispatch in the
// reconciler is exhaustive at compile time.
type Payload interface {
	payloadType() Type
}

type CreateWorkspacePayload struct {
	WorkspaceName string `json:"workspaceName"`
	UserID        string `json:"userId"`
	TempID        string `json:"tempId"`
}

type UpdateWorkspacePayload struct {
	WorkspaceID string `json:"workspaceId"`
	OldName     string `json:"oldName"`
	NewName     string `json:"newName"`
	UserID      string `json:"userId"`
}

type DeleteWorkspacePayload struct {
	WorkspaceName string `json:"workspaceName"`
	UserID        string `json:"userId"`
	// Removed carries the serialized workspace so a definitive delete
	// failure can restore it locally.
	Removed json.RawMessage `json:"removed,omitempty"`
}

type CreateTodoPayload struct {
	TempID      string `json:"id"`
	Text        string `json:"task"`
	Priority    string `json:"priority"`
	Done        bool   `json:"done"`
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
}

type UpdateTodoPayload struct {
	ID          string `json:"id"`
	Text        string `json:"task"`
	Priority    string `json:"priority"`
	WorkspaceID string `json:"workspaceId"`
}

type DeleteTodoPayload struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
}

type ToggleTodoPayload struct {
	ID          string `json:"id"`
	Toggle      bool   `json:"toggle"`
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
}

func (CreateWorkspacePayload) payloadType() Type { return TypeCreateWorkspace }
func (UpdateWorkspacePayload) payloadType() Type { return TypeUpdateWorkspace }
func (DeleteWorkspacePayload) payloadType() Type { return TypeDeleteWorkspace }
func (CreateTodoPayload) payloadType() Type      { return TypeCreateTodo }
func (UpdateTodoPayload) payloadType() Type      { return TypeUpdateTodo }
func (DeleteTodoPayload) payloadType() Type      { return TypeDeleteTodo }
func (ToggleTodoPayload) payloadType() Type      { return TypeToggleTodo }

// Operation is one durably queued mutation. Its ID keys the log and is
// always distinct from the entity id: "<TYPE>_<entityTempId-or-timestamp>".
type Operation struct {
	ID         string
	Type       Type
	Status     string
	Payload    Payload
	Timestamp  time.Time
	RetryCount int
}

// New builds a pending operation for the given payload. entityRef is the
// temporary entity id when one exists, otherwise a millisecond timestamp.
func New(payload Payload, entityRef string, now time.Time) Operation {
	t := payload.payloadType()
	if entityRef == "" {
		entityRef = fmt.Sprintf("%d", now.UnixMilli())
	}
	return Operation{
		ID:        fmt.Sprintf("%s_%s", t, entityRef),
		Type:      t,
		Status:    StatusPending,
		Payload:   payload,
		Timestamp: now,
	}
}

type envelope struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

func (o Operation) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", o.Type, err)
	}
	return json.Marshal(envelope{
		ID:         o.ID,
		Type:       o.Type,
		Status:     o.Status,
		Payload:    payload,
		Timestamp:  o.Timestamp,
		RetryCount: o.RetryCount,
	})
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return err
	}
	*o = Operation{
		ID:         env.ID,
		Type:       env.Type,
		Status:     env.Status,
		Payload:    payload,
		Timestamp:  env.Timestamp,
		RetryCount: env.RetryCount,
	}
	return nil
}

func decodeAs[P Payload](t Type, raw json.RawMessage) (Payload, error) {
	var v P
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return v, nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeCreateWorkspace:
		return decodeAs[CreateWorkspacePayload](t, raw)
	case TypeUpdateWorkspace:
		return decodeAs[UpdateWorkspacePayload](t, raw)
	case TypeDeleteWorkspace:
		return decodeAs[DeleteWorkspacePayload](t, raw)
	case TypeCreateTodo:
		return decodeAs[CreateTodoPayload](t, raw)
	case TypeUpdateTodo:
		return decodeAs[UpdateTodoPayload](t, raw)
	case TypeDeleteTodo:
		return decodeAs[DeleteTodoPayload](t, raw)
	case TypeToggleTodo:
		return decodeAs[ToggleTodoPayload](t, raw)
	default:
		return nil, fmt.Errorf("unknown operation type %q", t)
	}
}
