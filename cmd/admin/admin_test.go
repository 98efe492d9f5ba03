package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"riftminer.ai/internal/persistence/indexdb"
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/world"
)

func seedIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 0, Digest: "d0", Cycles: []world.CycleRecord{
		{NodeID: "RIFT_MINER@0,0,0", Phase: "STARTED", Input: "IRON_SHARD", Duration: 400},
		{NodeID: "RIFT_MINER@1,0,0", Phase: "STARTED", Input: "VOID_SHARD", Duration: 200},
	}})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 400, Digest: "d400", Cycles: []world.CycleRecord{
		{NodeID: "RIFT_MINER@0,0,0", Phase: "COMPLETED", Input: "IRON_SHARD", Rewards: []item.Stack{{Item: "STONE", Count: 4}}, Inserts: 1},
	}})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 0, Actor: "hopper", Action: "INSERT", NodeID: "RIFT_MINER@0,0,0", Side: "UP", Item: "IRON_SHARD", Count: 1})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "admin", Action: "PLACE", NodeID: "RIFT_MINER@1,0,0", Pos: [3]int{1, 0, 0}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestRunQuery(t *testing.T) {
	db, err := sql.Open("sqlite", seedIndex(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	rows, err := runQuery(db, dbQuery{Name: "cycles", NodeID: "RIFT_MINER@0,0,0"})
	if err != nil {
		t.Fatalf("cycles: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("cycles=%d want 2", len(rows))
	}
	latest := rows[0].(cycleRow)
	if latest.Tick != 400 || latest.Phase != "COMPLETED" || len(latest.Rewards) == 0 {
		t.Fatalf("latest=%+v", latest)
	}
	if first := rows[1].(cycleRow); first.Duration != 400 || first.Rewards != nil {
		t.Fatalf("first=%+v", first)
	}

	rows, err = runQuery(db, dbQuery{Name: "accesses", Actor: "admin"})
	if err != nil || len(rows) != 1 || rows[0].(accessRow).Action != "PLACE" {
		t.Fatalf("accesses=%+v err=%v", rows, err)
	}

	rows, err = runQuery(db, dbQuery{Name: "snapshots"})
	if err != nil || len(rows) != 0 {
		t.Fatalf("snapshots=%+v err=%v", rows, err)
	}

	if _, err := runQuery(db, dbQuery{Name: "agents"}); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestParseVec3(t *testing.T) {
	v, err := parseVec3(" -3, 64 ,12")
	if err != nil || v != [3]int{-3, 64, 12} {
		t.Fatalf("v=%v err=%v", v, err)
	}
	for _, bad := range []string{"", "1,2", "a,b,c"} {
		if _, err := parseVec3(bad); err == nil {
			t.Fatalf("parseVec3(%q) should fail", bad)
		}
	}
}
