package oplog_test

import (
	"context"
	"testing"
	"time"

	"fastodo/internal/db"
	"fastodo/internal/kv"
	"fastodo/internal/migrate"
	"fastodo/internal/oplog"
)

func newTestLog(t *testing.T) *oplog.Log {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return oplog.NewLog(kv.New(conn, nil), nil)
}

func TestOperationIDDistinctFromEntityID(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	op := oplog.New(oplog.CreateWorkspacePayload{
		WorkspaceName: "Work",
		UserID:        "user-1",
		TempID:        "workspace_1714564800000",
	}, "workspace_1714564800000", now)

	if op.ID != "CREATE_WORKSPACE_workspace_1714564800000" {
		t.Fatalf("unexpected op id %q", op.ID)
	}
	if op.ID == "workspace_1714564800000" {
		t.Fatalf("op id must not equal entity id")
	}
	if op.Status != oplog.StatusPending || op.RetryCount != 0 {
		t.Fatalf("unexpected initial op %+v", op)
	}
}

func TestOperationIDFallsBackToTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	op := oplog.New(oplog.DeleteTodoPayload{ID: "srv_9"}, "", now)
	want := "DELETE_TODO_1714564800000"
	if op.ID != want {
		t.Fatalf("got %q want %q", op.ID, want)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	log.Append(ctx, oplog.New(oplog.CreateTodoPayload{
		TempID:      "todo_1",
		Text:        "write report",
		Priority:    "high",
		UserID:      "user-1",
		WorkspaceID: "ws-1",
	}, "todo_1", now))
	log.Append(ctx, oplog.New(oplog.ToggleTodoPayload{
		ID: "srv_2", Toggle: true, UserID: "user-1", WorkspaceID: "ws-1",
	}, "srv_2", now))

	ops := log.List(ctx)
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
	create, ok := ops[0].Payload.(oplog.CreateTodoPayload)
	if !ok {
		t.Fatalf("expected CreateTodoPayload, got %T", ops[0].Payload)
	}
	if create.Text != "write report" || create.TempID != "todo_1" {
		t.Fatalf("payload fields lost: %+v", create)
	}
	toggle, ok := ops[1].Payload.(oplog.ToggleTodoPayload)
	if !ok {
		t.Fatalf("expected ToggleTodoPayload, got %T", ops[1].Payload)
	}
	if !toggle.Toggle || toggle.ID != "srv_2" {
		t.Fatalf("payload fields lost: %+v", toggle)
	}
	if !ops[0].Timestamp.Equal(now) {
		t.Fatalf("timestamp lost: %v", ops[0].Timestamp)
	}
}

func TestAppendUpsertsByID(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	op := oplog.New(oplog.UpdateWorkspacePayload{
		WorkspaceID: "ws-1", OldName: "Old", NewName: "New", UserID: "u",
	}, "ws-1", time.Now())

	log.Append(ctx, op)
	op.RetryCount = 2
	log.Append(ctx, op)

	ops := log.List(ctx)
	if len(ops) != 1 {
		t.Fatalf("expected upsert to keep one record, got %d", len(ops))
	}
	if ops[0].RetryCount != 2 {
		t.Fatalf("retry count not persisted: %+v", ops[0])
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	op := oplog.New(oplog.DeleteWorkspacePayload{WorkspaceName: "Work", UserID: "u"}, "", time.Now())
	log.Append(ctx, op)

	log.Remove(ctx, op.ID)
	if got := log.List(ctx); len(got) != 0 {
		t.Fatalf("expected empty log, got %d", len(got))
	}
	// second remove of the same id must not error or change anything
	log.Remove(ctx, op.ID)
	if got := log.List(ctx); len(got) != 0 {
		t.Fatalf("expected empty log after double remove, got %d", len(got))
	}
}
