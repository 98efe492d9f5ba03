package world

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"riftminer.ai/internal/observerproto"
	"riftminer.ai/internal/protocol"
	"riftminer.ai/internal/sim/access"
	"riftminer.ai/internal/sim/catalogs"
	"riftminer.ai/internal/sim/item"
)

func loadTestCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "TEST"
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	w, err := New(cfg, loadTestCatalogs(t))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func mustPlace(t *testing.T, w *World, pos Vec3i) string {
	t.Helper()
	id, err := w.placeNode("test", pos)
	if err != nil {
		t.Fatalf("place %v: %v", pos, err)
	}
	return id
}

func insertShard(t *testing.T, w *World, pos Vec3i, id string) {
	t.Helper()
	res := w.applyAccess(AccessRequest{
		Actor: "test",
		Pos:   pos,
		Side:  access.Up,
		Op:    protocol.OpInsert,
		Stack: w.catalogs.Items.NewStack(id, 1),
	})
	if res.Code != "" || res.Moved.Count != 1 {
		t.Fatalf("insert %s: code=%s err=%v moved=%+v", id, res.Code, res.Err, res.Moved)
	}
}

func stepN(w *World, n int) {
	for i := 0; i < n; i++ {
		w.StepOnce()
	}
}

func sumCounts(stacks []item.Stack) int {
	total := 0
	for _, s := range stacks {
		if !s.IsEmpty() {
			total += s.Count
		}
	}
	return total
}

func drainSync(t *testing.T, ch chan []byte) []observerproto.NodeSyncMsg {
	t.Helper()
	var out []observerproto.NodeSyncMsg
	for {
		select {
		case b := <-ch:
			var base struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(b, &base); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if base.Type != observerproto.TypeNodeSync {
				continue
			}
			var m observerproto.NodeSyncMsg
			if err := json.Unmarshal(b, &m); err != nil {
				t.Fatalf("unmarshal sync: %v", err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

type memTickLogger struct{ entries []TickLogEntry }

func (l *memTickLogger) WriteTick(e TickLogEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

type memAuditLogger struct{ entries []AuditEntry }

func (l *memAuditLogger) WriteAudit(e AuditEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

type memMirror struct {
	syncs   map[string]NodeMirror
	removed []string
}

func (m *memMirror) PublishSync(tick uint64, nodes []NodeMirror) {
	if m.syncs == nil {
		m.syncs = map[string]NodeMirror{}
	}
	for _, n := range nodes {
		m.syncs[n.ID] = n
	}
}

func (m *memMirror) PublishRemoved(tick uint64, id string) {
	m.removed = append(m.removed, id)
	delete(m.syncs, id)
}
