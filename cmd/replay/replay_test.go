package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	persistlog "riftminer.ai/internal/persistence/log"
	"riftminer.ai/internal/protocol"
	"riftminer.ai/internal/sim/access"
	"riftminer.ai/internal/sim/catalogs"
	"riftminer.ai/internal/sim/world"
)

func newReplayWorld(t *testing.T, cats *catalogs.Catalogs) *world.World {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "REPLAY", TickRateHz: 1000, Seed: 21}, cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func TestReplayDir_LiveRunVerifies(t *testing.T) {
	cats, err := catalogs.Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	worldDir := t.TempDir()

	live := newReplayWorld(t, cats)
	tickLog := persistlog.NewTickLogger(worldDir, persistlog.Options{})
	auditLog := persistlog.NewAuditLogger(worldDir, persistlog.Options{})
	live.SetTickLogger(tickLog)
	live.SetAuditLogger(auditLog)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- live.Run(ctx) }()

	pos := world.Vec3i{X: 3, Y: 64}
	if _, err := live.Place(ctx, "test", pos); err != nil {
		t.Fatalf("place: %v", err)
	}
	res := live.Access(ctx, world.AccessRequest{
		Actor: "test",
		Pos:   pos,
		Side:  access.Up,
		Op:    protocol.OpInsert,
		Stack: cats.Items.NewStack("VOID_SHARD", 1),
	})
	if res.Code != "" {
		t.Fatalf("insert=%+v", res)
	}

	// VOID_SHARD cycles take 200 ticks; wait for at least one completion and restart.
	deadline := time.Now().Add(15 * time.Second)
	for live.CurrentTick() < res.Tick+260 {
		if time.Now().After(deadline) {
			t.Fatalf("world too slow: tick=%d", live.CurrentTick())
		}
		time.Sleep(10 * time.Millisecond)
	}
	ext := live.Access(ctx, world.AccessRequest{Actor: "test", Pos: pos, Side: access.East, Op: protocol.OpExtract, Count: 1})
	if ext.Code != "" {
		t.Fatalf("extract=%+v", ext)
	}
	live.Stop()
	<-done
	_ = tickLog.Close()
	_ = auditLog.Close()

	replayed := newReplayWorld(t, cats)
	out, err := replayDir(replayed, worldDir, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if out.Checked < 2 || out.Applied < 2 {
		t.Fatalf("replay result=%+v", out)
	}
}

func TestListLogFiles(t *testing.T) {
	files, err := listLogFiles(filepath.Join(t.TempDir(), "missing"), "audit")
	if err != nil || len(files) != 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
}
