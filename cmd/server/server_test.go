package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"riftminer.ai/internal/persistence/snapshot"
	"riftminer.ai/internal/sim/catalogs"
	"riftminer.ai/internal/sim/tuning"
	"riftminer.ai/internal/sim/world"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func newRunningWorld(t *testing.T) *world.World {
	t.Helper()
	root := findRepoRootForServerTests(t)
	cats, err := catalogs.Load(filepath.Join(root, "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(filepath.Join(root, "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	w, err := world.New(worldConfig("SERVER_TEST", 7, tune), cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		w.Stop()
		<-done
		cancel()
	})
	return w
}

func postJSON(h http.HandlerFunc, remote string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestWorldConfigFromTuning(t *testing.T) {
	tune := tuning.Defaults()
	tune.Miner.RestrictInputs = true
	tune.Miner.OutputSlots = 4
	cfg := worldConfig("W", 99, tune)
	if cfg.ID != "W" || cfg.Seed != 99 || cfg.TickRateHz != 20 || cfg.SnapshotEveryTicks != 1200 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Miner.DefaultCycleTicks != 400 || cfg.Miner.OutputSlots != 4 || !cfg.RestrictInputs || cfg.DefaultMaxStack != 64 {
		t.Fatalf("miner cfg=%+v", cfg)
	}
}

func TestPlaceRemoveHandlers(t *testing.T) {
	w := newRunningWorld(t)
	place := placeHandler(w)
	remove := removeHandler(w)

	rec := postJSON(place, "127.0.0.1:4000", `{"pos":[1,2,3]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("place status=%d body=%s", rec.Code, rec.Body.String())
	}
	var placed struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &placed); err != nil || !placed.OK || placed.ID != "RIFT_MINER@1,2,3" {
		t.Fatalf("placed=%+v err=%v", placed, err)
	}

	if rec := postJSON(place, "127.0.0.1:4000", `{"pos":[1,2,3]}`); rec.Code != http.StatusConflict {
		t.Fatalf("second place status=%d", rec.Code)
	}
	if rec := postJSON(place, "10.1.1.1:4000", `{"pos":[0,0,0]}`); rec.Code != http.StatusForbidden {
		t.Fatalf("remote place status=%d", rec.Code)
	}
	if rec := postJSON(place, "127.0.0.1:4000", `{"pos":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", rec.Code)
	}

	rec = postJSON(remove, "127.0.0.1:4000", `{"pos":[1,2,3],"actor":"ops"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := postJSON(remove, "127.0.0.1:4000", `{"pos":[1,2,3]}`); rec.Code != http.StatusNotFound {
		t.Fatalf("second remove status=%d", rec.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "/", nil)
	get.RemoteAddr = "127.0.0.1:4000"
	getRec := httptest.NewRecorder()
	place(getRec, get)
	if getRec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("get status=%d", getRec.Code)
	}
}

func TestWriteMetrics(t *testing.T) {
	w := newRunningWorld(t)
	if _, err := w.Place(context.Background(), "test", world.Vec3i{}); err != nil {
		t.Fatalf("place: %v", err)
	}
	var buf bytes.Buffer
	writeMetrics(&buf, "SERVER_TEST", w, nil, nil)
	out := buf.String()
	for _, want := range []string{
		`riftminer_world_tick{world="SERVER_TEST"}`,
		`riftminer_world_queue_depth{world="SERVER_TEST",queue="access"}`,
		"# TYPE riftminer_nodes_running gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "riftminer_index_") || strings.Contains(out, "riftminer_node_cache_") {
		t.Fatalf("disabled backends should not be reported:\n%s", out)
	}
}

func TestLatestSnapshotAndWriter(t *testing.T) {
	worldDir := t.TempDir()
	if got := latestSnapshot(worldDir); got != "" {
		t.Fatalf("empty dir latest=%q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	snapCh := make(chan snapshot.SnapshotV1, 2)
	done := make(chan struct{})
	go func() {
		runSnapshotWriter(ctx, worldDir, snapCh, nil, log.New(io.Discard, "", 0))
		close(done)
	}()
	for _, tick := range []uint64{90, 1200} {
		snapCh <- snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, WorldID: "W", Tick: tick}, Seed: 1}
	}

	want := snapshotPath(worldDir, 1200)
	deadline := time.Now().Add(3 * time.Second)
	for latestSnapshot(worldDir) != want {
		if time.Now().After(deadline) {
			t.Fatalf("latest=%q want %q", latestSnapshot(worldDir), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	// Non-snapshot files are ignored.
	if err := os.WriteFile(filepath.Join(worldDir, "snapshots", "9999.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := latestSnapshot(worldDir); got != want {
		t.Fatalf("latest=%q want %q", got, want)
	}
	snap, err := snapshot.ReadSnapshot(want)
	if err != nil || snap.Header.Tick != 1200 {
		t.Fatalf("read=%+v err=%v", snap.Header, err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RIFTMINER_TEST_BOOL", "false")
	if envBool("RIFTMINER_TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("RIFTMINER_TEST_BOOL", "nope")
	if !envBool("RIFTMINER_TEST_BOOL", true) {
		t.Fatalf("invalid value should fall back to default")
	}
	if got := firstNonEmpty("", "  ", "redis:6379"); got != "redis:6379" {
		t.Fatalf("firstNonEmpty=%q", got)
	}
}
