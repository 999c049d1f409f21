package reconcile_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fastodo/internal/api"
	"fastodo/internal/db"
	"fastodo/internal/kv"
	"fastodo/internal/migrate"
	"fastodo/internal/oplog"
	"fastodo/internal/reconcile"
	"fastodo/internal/state"
	"fastodo/internal/stub"
)

// fakeBackend scripts per-endpoint behavior; unset hooks succeed with
// canned responses.
type fakeBackend struct {
	createWorkspace func(name, userID string) (api.CreateWorkspaceResponse, error)
	updateWorkspace func(oldName, newName, userID string) (api.StringResponse, error)
	deleteWorkspace func(name, userID string) (api.StringResponse, error)
	createTodo      func(userID, workspaceID, task, priority string, done bool) (api.CreateTodoResponse, error)
	updateTodo      func(id, task, priority string) (api.UpdateTodoResponse, error)
	deleteTodo      func(id string) error
	toggleTodo      func(id string, toggle bool, userID string) (api.ToggleTodoResponse, error)
}

func okCreateWorkspace(id string) api.CreateWorkspaceResponse {
	var r api.CreateWorkspaceResponse
	r.Response.Success = "true"
	r.Response.WorkspaceID = id
	return r
}

func okCreateTodo(id string) api.CreateTodoResponse {
	var r api.CreateTodoResponse
	r.Success = "true"
	r.Response.ID = id
	return r
}

func (f *fakeBackend) CreateWorkspace(_ context.Context, name, userID string) (api.CreateWorkspaceResponse, error) {
	if f.createWorkspace != nil {
		return f.createWorkspace(name, userID)
	}
	return okCreateWorkspace("srv_ws"), nil
}

func (f *fakeBackend) UpdateWorkspace(_ context.Context, oldName, newName, userID string) (api.StringResponse, error) {
	if f.updateWorkspace != nil {
		return f.updateWorkspace(oldName, newName, userID)
	}
	return api.StringResponse{Response: "Success"}, nil
}

func (f *fakeBackend) DeleteWorkspace(_ context.Context, name, userID string) (api.StringResponse, error) {
	if f.deleteWorkspace != nil {
		return f.deleteWorkspace(name, userID)
	}
	return api.StringResponse{Response: "Success"}, nil
}

func (f *fakeBackend) CreateTodo(_ context.Context, userID, workspaceID, task, priority string, done bool) (api.CreateTodoResponse, error) {
	if f.createTodo != nil {
		return f.createTodo(userID, workspaceID, task, priority, done)
	}
	return okCreateTodo("srv_todo"), nil
}

func (f *fakeBackend) UpdateTodo(_ context.Context, id, task, priority string) (api.UpdateTodoResponse, error) {
	if f.updateTodo != nil {
		return f.updateTodo(id, task, priority)
	}
	return api.UpdateTodoResponse{Success: "true"}, nil
}

func (f *fakeBackend) DeleteTodo(_ context.Context, id string) error {
	if f.deleteTodo != nil {
		return f.deleteTodo(id)
	}
	return nil
}

func (f *fakeBackend) ToggleTodo(_ context.Context, id string, toggle bool, userID string) (api.ToggleTodoResponse, error) {
	if f.toggleTodo != nil {
		return f.toggleTodo(id, toggle, userID)
	}
	return api.ToggleTodoResponse{Response: "true"}, nil
}

type testEnv struct {
	state  *state.Store
	ops    *oplog.Log
	fake   *fakeBackend
	runner *reconcile.Runner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	store := kv.New(conn, nil)
	ops := oplog.NewLog(store, nil)
	st := state.New(store, ops, nil)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st.Now = func() time.Time {
		base = base.Add(time.Millisecond)
		return base
	}
	st.InitializeDefaultWorkspace(context.Background())
	fake := &fakeBackend{}
	return &testEnv{
		state:  st,
		ops:    ops,
		fake:   fake,
		runner: reconcile.New(st, ops, fake, nil),
	}
}

func TestDrainConfirmsWorkspace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.createWorkspace = func(name, userID string) (api.CreateWorkspaceResponse, error) {
		require.Equal(t, "Work", name)
		require.Equal(t, "u1", userID)
		return okCreateWorkspace("srv_1"), nil
	}

	ws, err := env.state.AddWorkspace(ctx, "Work", "u1")
	require.NoError(t, err)

	stats, err := env.runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, reconcile.Stats{Processed: 1, Succeeded: 1}, stats)

	// the temp id is gone, the server id carries SUCCESS
	_, err = env.state.Workspace(ws.ID)
	require.ErrorIs(t, err, state.ErrWorkspaceNotFound)
	got, err := env.state.Workspace("srv_1")
	require.NoError(t, err)
	require.Equal(t, state.SyncSuccess, got.Status)
	require.Empty(t, env.ops.List(ctx))
}

func TestDrainConfirmsTodo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.createTodo = func(userID, workspaceID, task, priority string, done bool) (api.CreateTodoResponse, error) {
		require.Equal(t, "buy milk", task)
		require.False(t, done)
		return okCreateTodo("srv_5"), nil
	}

	todo, err := env.state.AddTodo(ctx, state.DefaultWorkspaceID, "buy milk", state.PriorityLow, "u1")
	require.NoError(t, err)

	_, err = env.runner.Drain(ctx)
	require.NoError(t, err)

	ws, err := env.state.Workspace(state.DefaultWorkspaceID)
	require.NoError(t, err)
	require.Len(t, ws.Todos, 1)
	require.Equal(t, "srv_5", ws.Todos[0].ID)
	require.Equal(t, state.SyncSuccess, ws.Todos[0].SyncStatus)
	require.NotEqual(t, todo.ID, ws.Todos[0].ID)
	require.Empty(t, env.ops.List(ctx))
}

func TestRetryThenSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	calls := 0
	env.fake.createWorkspace = func(name, userID string) (api.CreateWorkspaceResponse, error) {
		calls++
		if calls < 3 {
			return api.CreateWorkspaceResponse{}, errors.New("connection refused")
		}
		return okCreateWorkspace("srv_1"), nil
	}

	_, err := env.state.AddWorkspace(ctx, "Work", "u1")
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		stats, err := env.runner.Drain(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Retried)
		ops := env.ops.List(ctx)
		require.Len(t, ops, 1)
		require.Equal(t, attempt, ops[0].RetryCount)
	}

	stats, err := env.runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Succeeded)
	require.Empty(t, env.ops.List(ctx))
	got, err := env.state.Workspace("srv_1")
	require.NoError(t, err)
	require.Equal(t, state.SyncSuccess, got.Status)
}

func TestRetryCeilingMarksWorkspaceFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.createWorkspace = func(name, userID string) (api.CreateWorkspaceResponse, error) {
		return api.CreateWorkspaceResponse{}, errors.New("connection refused")
	}

	ws, err := env.state.AddWorkspace(ctx, "Work", "u1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		stats, err := env.runner.Drain(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Retried)
	}
	stats, err := env.runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Abandoned)

	// the op is dropped and the optimistic entity survives, flagged
	require.Empty(t, env.ops.List(ctx))
	got, err := env.state.Workspace(ws.ID)
	require.NoError(t, err)
	require.Equal(t, state.SyncFailed, got.Status)

	// once abandoned, further drains see nothing
	stats, err = env.runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, reconcile.Stats{}, stats)
}

func TestRenameQueuedBehindCreateConfirms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.createWorkspace = func(name, userID string) (api.CreateWorkspaceResponse, error) {
		return okCreateWorkspace("srv_1"), nil
	}

	// both ops queued offline: the create's confirmation rewrites the
	// temp id before the rename op is processed
	ws, err := env.state.AddWorkspace(ctx, "Work", "u1")
	require.NoError(t, err)
	_, err = env.state.EditWorkspace(ctx, ws.ID, "Werk", "u1")
	require.NoError(t, err)

	stats, err := env.runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, reconcile.Stats{Processed: 2, Succeeded: 2}, stats)

	got, err := env.state.Workspace("srv_1")
	require.NoError(t, err)
	require.Equal(t, "Werk", got.Name)
	require.Equal(t, state.SyncSuccess, got.Status)
	require.Empty(t, env.ops.List(ctx))
}

func TestAbandonedRenameMarksWorkspaceFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.createWorkspace = func(name, userID string) (api.CreateWorkspaceResponse, error) {
		return okCreateWorkspace("srv_1"), nil
	}
	env.fake.updateWorkspace = func(oldName, newName, userID string) (api.StringResponse, error) {
		return api.StringResponse{}, errors.New("connection refused")
	}

	ws, err := env.state.AddWorkspace(ctx, "Work", "u1")
	require.NoError(t, err)
	_, err = env.state.EditWorkspace(ctx, ws.ID, "Werk", "u1")
	require.NoError(t, err)

	// first drain confirms the create and rewrites the temp id; the
	// rename keeps failing until abandoned
	for i := 0; i < 3; i++ {
		_, err = env.runner.Drain(ctx)
		require.NoError(t, err)
	}

	require.Empty(t, env.ops.List(ctx))
	got, err := env.state.Workspace("srv_1")
	require.NoError(t, err)
	require.Equal(t, state.SyncFailed, got.Status)
}

func TestAbandonedDeleteRestoresWorkspace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.deleteWorkspace = func(name, userID string) (api.StringResponse, error) {
		return api.StringResponse{Response: "Workspace Not Found"}, nil
	}

	ws, err := env.state.AddWorkspace(ctx, "Work", "u1")
	require.NoError(t, err)
	// drop the create op so only the delete remains pending
	_, err = env.runner.Drain(ctx)
	require.NoError(t, err)
	ws, err = env.state.Workspace("srv_ws")
	require.NoError(t, err)
	require.NoError(t, env.state.DeleteWorkspace(ctx, ws.ID, "u1"))
	_, err = env.state.Workspace(ws.ID)
	require.ErrorIs(t, err, state.ErrWorkspaceNotFound)

	for i := 0; i < 3; i++ {
		_, err = env.runner.Drain(ctx)
		require.NoError(t, err)
	}

	restored, err := env.state.Workspace(ws.ID)
	require.NoError(t, err)
	require.Equal(t, "Work", restored.Name)
	require.Equal(t, state.SyncFailed, restored.Status)
	require.Empty(t, env.ops.List(ctx))
}

func TestOneFailureDoesNotStopTheDrain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.createWorkspace = func(name, userID string) (api.CreateWorkspaceResponse, error) {
		if name == "Bad" {
			return api.CreateWorkspaceResponse{}, errors.New("connection refused")
		}
		return okCreateWorkspace("srv_" + name), nil
	}

	_, err := env.state.AddWorkspace(ctx, "Bad", "u1")
	require.NoError(t, err)
	_, err = env.state.AddWorkspace(ctx, "Good", "u1")
	require.NoError(t, err)

	stats, err := env.runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, reconcile.Stats{Processed: 2, Succeeded: 1, Retried: 1}, stats)

	_, err = env.state.Workspace("srv_Good")
	require.NoError(t, err)
	ops := env.ops.List(ctx)
	require.Len(t, ops, 1)
	require.Equal(t, oplog.TypeCreateWorkspace, ops[0].Type)
}

func TestOverlappingDrainIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	env.fake.createWorkspace = func(name, userID string) (api.CreateWorkspaceResponse, error) {
		close(entered)
		<-release
		return okCreateWorkspace("srv_1"), nil
	}

	_, err := env.state.AddWorkspace(ctx, "Work", "u1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := env.runner.Drain(ctx)
		done <- err
	}()
	<-entered

	_, err = env.runner.Drain(ctx)
	require.ErrorIs(t, err, reconcile.ErrDrainInProgress)

	close(release)
	require.NoError(t, <-done)

	// the guard clears once the first drain finishes
	_, err = env.runner.Drain(ctx)
	require.NoError(t, err)
}

func TestDrainAgainstStubServer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(stub.NewServer("test-secret", slog.Default()).Handler())
	t.Cleanup(srv.Close)

	client := api.New(srv.URL)
	session, err := client.SignUp(ctx, "dev@example.com", "hunter2", "Dev")
	require.NoError(t, err)
	require.NotEmpty(t, session.UserID)
	require.NotEmpty(t, session.AccessToken)
	client.Token = session.AccessToken

	runner := reconcile.New(env.state, env.ops, client, nil)

	ws, err := env.state.AddWorkspace(ctx, "Work", session.UserID)
	require.NoError(t, err)
	_, err = env.state.AddTodo(ctx, ws.ID, "ship it", state.PriorityHigh, session.UserID)
	require.NoError(t, err)

	stats, err := runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Succeeded)
	require.Empty(t, env.ops.List(ctx))

	// the workspace now carries a server-issued id
	_, err = env.state.Workspace(ws.ID)
	require.ErrorIs(t, err, state.ErrWorkspaceNotFound)
	var confirmed *state.Workspace
	for _, w := range env.state.Workspaces() {
		if w.Name == "Work" {
			w := w
			confirmed = &w
		}
	}
	require.NotNil(t, confirmed)
	require.False(t, strings.HasPrefix(confirmed.ID, "workspace_"))
	require.Equal(t, state.SyncSuccess, confirmed.Status)
	require.Len(t, confirmed.Todos, 1)
	require.Equal(t, state.SyncSuccess, confirmed.Todos[0].SyncStatus)

	listing, err := client.UserWorkspaces(ctx, session.UserID)
	require.NoError(t, err)
	require.NotEqual(t, "false", listing.Success)
	require.Len(t, listing.Response, 1)
	require.Equal(t, confirmed.ID, listing.Response[0].ID)
}
