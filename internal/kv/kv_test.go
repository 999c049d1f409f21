package kv_test

import (
	"context"
	"testing"

	"fastodo/internal/db"
	"fastodo/internal/kv"
	"fastodo/internal/migrate"
)

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return kv.New(conn, nil)
}

func TestTableRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tbl := store.Table("workspace-storage")

	if _, ok := tbl.Get(ctx, "missing"); ok {
		t.Fatalf("expected absent value")
	}
	tbl.Set(ctx, "snapshot", []byte(`{"a":1}`))
	got, ok := tbl.Get(ctx, "snapshot")
	if !ok || string(got) != `{"a":1}` {
		t.Fatalf("unexpected value %q ok=%v", got, ok)
	}
	tbl.Set(ctx, "snapshot", []byte(`{"a":2}`))
	got, _ = tbl.Get(ctx, "snapshot")
	if string(got) != `{"a":2}` {
		t.Fatalf("expected overwrite, got %q", got)
	}
	tbl.Delete(ctx, "snapshot")
	if _, ok := tbl.Get(ctx, "snapshot"); ok {
		t.Fatalf("expected deleted value to be absent")
	}
	// absent delete is a no-op
	tbl.Delete(ctx, "snapshot")
}

func TestTablesAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	snaps := store.Table("workspace-storage")
	ops := store.Table("pendingOperationsStore")

	snaps.Set(ctx, "k", []byte("snapshot"))
	ops.Set(ctx, "k", []byte("operation"))

	got, _ := snaps.Get(ctx, "k")
	if string(got) != "snapshot" {
		t.Fatalf("snapshot table clobbered: %q", got)
	}
	got, _ = ops.Get(ctx, "k")
	if string(got) != "operation" {
		t.Fatalf("ops table clobbered: %q", got)
	}
	ops.Delete(ctx, "k")
	if _, ok := snaps.Get(ctx, "k"); !ok {
		t.Fatalf("delete leaked across tables")
	}
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tbl := store.Table("pendingOperationsStore")

	tbl.Set(ctx, "b", []byte("1"))
	tbl.Set(ctx, "a", []byte("2"))
	tbl.Set(ctx, "c", []byte("3"))
	// upsert must not move b to the back
	tbl.Set(ctx, "b", []byte("1x"))

	var got []string
	for _, v := range tbl.All(ctx) {
		got = append(got, string(v))
	}
	want := []string{"1x", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v", i, got)
		}
	}
}

func TestStorageFaultsAreAbsorbed(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tbl := kv.New(conn, nil).Table("workspace-storage")
	tbl.Set(ctx, "k", []byte("v"))
	// every operation below hits a dead handle; none may panic or
	// surface an error, they report absence instead
	conn.Close()

	if v, ok := tbl.Get(ctx, "k"); ok || v != nil {
		t.Fatalf("expected absent value on broken store, got %q ok=%v", v, ok)
	}
	tbl.Set(ctx, "k", []byte("v2"))
	tbl.Delete(ctx, "k")
	if got := tbl.All(ctx); got != nil {
		t.Fatalf("expected nil scan on broken store, got %v", got)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	kv.New(conn, nil).Table("workspace-storage").Set(ctx, "k", []byte("v"))
	conn.Close()

	conn2, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer conn2.Close()
	if err := migrate.Migrate(conn2); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	got, ok := kv.New(conn2, nil).Table("workspace-storage").Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Fatalf("value lost across reopen: %q ok=%v", got, ok)
	}
}
