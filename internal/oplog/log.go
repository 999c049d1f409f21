package oplog

import (
	"context"
	"encoding/json"
	"log/slog"

	"fastodo/internal/kv"
)

// TableName is the logical kv table holding one record per operation,
// keyed by operation id.
const TableName = "pendingOperationsStore"

// Log persists pending operations independently of the state snapshot so
// they survive restarts. All methods are best-effort at the storage
// boundary; a lost write costs at most one replay.
type Log struct {
	table kv.Table
	log   *slog.Logger
}

func NewLog(store *kv.Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{table: store.Table(TableName), log: logger}
}

// Append upserts the operation by id. Re-appending an existing id (retry
// count bumps) replaces the record without moving it in the log.
func (l *Log) Append(ctx context.Context, op Operation) {
	data, err := json.Marshal(op)
	if err != nil {
		l.log.Error("encode pending operation", "op", op.ID, "err", err)
		return
	}
	l.table.Set(ctx, op.ID, data)
}

// List returns all pending operations in insertion order. Order across
// mutation types does not reflect causal user order; drains tolerate that.
func (l *Log) List(ctx context.Context) []Operation {
	var ops []Operation
	for _, data := range l.table.All(ctx) {
		var op Operation
		if err := json.Unmarshal(data, &op); err != nil {
			l.log.Error("decode pending operation, skipping", "err", err)
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// Remove deletes by id; removing an absent id is a no-op.
func (l *Log) Remove(ctx context.Context, id string) {
	l.table.Delete(ctx, id)
}
