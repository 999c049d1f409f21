package state

import (
	"context"
	"encoding/json"
)

// SnapshotTable is the logical kv table holding the serialized state.
const SnapshotTable = "workspace-storage"

const snapshotKey = "state"

// snapshot is the persisted layout: the workspace collection plus the
// materialized current workspace. Date fields travel as RFC 3339 strings
// and come back as time values.
type snapshot struct {
	Workspaces       []Workspace `json:"workspaces"`
	CurrentWorkspace *Workspace  `json:"currentWorkspace"`
}

// Change describes one completed mutation for observers.
type Change struct {
	Action      string
	WorkspaceID string
}

// Subscribe returns a buffered channel receiving a Change per mutation.
// Slow subscribers drop changes rather than blocking mutations.
func (s *Store) Subscribe() chan Change {
	ch := make(chan Change, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(ch chan Change) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
	close(ch)
}

// commit persists a snapshot and fans the change out. Callers hold the
// lock. Persistence is best-effort: a lost write costs durability of this
// session, not correctness of the in-memory state.
func (s *Store) commit(ctx context.Context, change Change) {
	snap := snapshot{Workspaces: s.workspaces}
	if ws, i := s.find(s.currentID); i >= 0 {
		cur := clone(*ws)
		snap.CurrentWorkspace = &cur
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("encode state snapshot", "err", err)
	} else {
		s.snapshots.Set(ctx, snapshotKey, data)
	}
	for ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (s *Store) load(ctx context.Context) {
	data, ok := s.snapshots.Get(ctx, snapshotKey)
	if !ok {
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Error("decode state snapshot, starting empty", "err", err)
		return
	}
	s.workspaces = snap.Workspaces
	if snap.CurrentWorkspace != nil {
		s.currentID = snap.CurrentWorkspace.ID
		if _, i := s.find(s.currentID); i < 0 {
			// stale pointer; fall back to the default workspace
			if def, j := s.findDefault(); j >= 0 {
				s.currentID = def.ID
			} else {
				s.currentID = ""
			}
		}
	}
}
