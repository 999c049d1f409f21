// Package kv provides the durable local key-value store backing both the
// state snapshot table and the pending-operation log. Storage faults are
// absorbed at this boundary: a failed read reports an absent value and a
// failed write is a logged no-op, so in-memory state stays authoritative
// for the session.
package kv

import (
	"context"
	"database/sql"
	"log/slog"
)

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New wraps an open database. The kv schema must already be migrated.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}
}

// Table returns a handle scoped to one logical table. Handles for
// different names never collide even though they share the database.
func (s *Store) Table(name string) Table {
	return Table{store: s, name: name}
}

type Table struct {
	store *Store
	name  string
}

// Name returns the logical table name.
func (t Table) Name() string { return t.name }

// Get returns the stored bytes for key, or ok=false when the key is
// absent or the read fails.
func (t Table) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := t.store.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE store=? AND key=?`, t.name, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		t.store.log.Error("kv get failed", "store", t.name, "key", key, "err", err)
		return nil, false
	}
	return value, true
}

// Set upserts key. Write failures are logged and swallowed.
func (t Table) Set(ctx context.Context, key string, value []byte) {
	_, err := t.store.db.ExecContext(ctx,
		`INSERT INTO kv(store,key,value) VALUES (?,?,?)
ON CONFLICT(store,key) DO UPDATE SET value=excluded.value`, t.name, key, value)
	if err != nil {
		t.store.log.Error("kv set failed", "store", t.name, "key", key, "err", err)
	}
}

// Delete removes key. Deleting an absent key is a no-op.
func (t Table) Delete(ctx context.Context, key string) {
	_, err := t.store.db.ExecContext(ctx,
		`DELETE FROM kv WHERE store=? AND key=?`, t.name, key)
	if err != nil {
		t.store.log.Error("kv delete failed", "store", t.name, "key", key, "err", err)
	}
}

// All returns every value in the table in insertion order. Re-setting an
// existing key keeps its original position.
func (t Table) All(ctx context.Context) [][]byte {
	rows, err := t.store.db.QueryContext(ctx,
		`SELECT value FROM kv WHERE store=? ORDER BY seq`, t.name)
	if err != nil {
		t.store.log.Error("kv scan failed", "store", t.name, "err", err)
		return nil
	}
	defer rows.Close()
	var values [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			t.store.log.Error("kv scan failed", "store", t.name, "err", err)
			return values
		}
		values = append(values, v)
	}
	return values
}
