package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"riftminer.ai/internal/observerproto"
	"riftminer.ai/internal/sim/catalogs"
	"riftminer.ai/internal/sim/world"
)

func startWorld(t *testing.T) (*world.World, context.Context) {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "OBS_TEST", TickRateHz: 50, Seed: 9}, cats)
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
	return w, ctx
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func TestBootstrapHandler(t *testing.T) {
	w, ctx := startWorld(t)
	pos := world.Vec3i{X: 1, Y: 2, Z: 3}
	if _, err := w.Place(ctx, "test", pos); err != nil {
		t.Fatalf("place: %v", err)
	}

	srv := httptest.NewServer(NewServer(w, nil).BootstrapHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.WorldID != "OBS_TEST" || boot.WorldParams.DefaultCycleTicks != 400 || boot.WorldParams.OutputSlots != 9 {
		t.Fatalf("bootstrap=%+v", boot)
	}
	if len(boot.Nodes) != 1 || boot.Nodes[0].ID != world.NodeID(pos) || boot.Nodes[0].Pos != pos.Array() {
		t.Fatalf("nodes=%+v", boot.Nodes)
	}

	post, err := http.Post(srv.URL, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status=%d", post.StatusCode)
	}
}

func TestWSHandler_SyncAndRemoved(t *testing.T) {
	w, ctx := startWorld(t)
	pos := world.Vec3i{X: -4, Y: 10}
	id, err := w.Place(ctx, "test", pos)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var sync observerproto.NodeSyncMsg
	readJSON(t, conn, &sync)
	if sync.Type != observerproto.TypeNodeSync || len(sync.Nodes) != 1 || sync.Nodes[0].ID != id {
		t.Fatalf("sync=%+v", sync)
	}
	if sync.Nodes[0].CycleTimeRemaining != 0 || sync.Nodes[0].CycleDuration != 0 {
		t.Fatalf("idle node should mirror zero timers: %+v", sync.Nodes[0])
	}

	if _, err := w.Remove(ctx, "test", pos); err != nil {
		t.Fatalf("remove: %v", err)
	}
	var removed observerproto.NodeRemovedMsg
	readJSON(t, conn, &removed)
	if removed.Type != observerproto.TypeNodeRemoved || removed.ID != id || removed.Pos != pos.Array() {
		t.Fatalf("removed=%+v", removed)
	}
}

func TestWSHandler_RejectsNonSubscribe(t *testing.T) {
	w, _ := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "HELLO", "protocol_version": observerproto.Version}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.7:5000":  false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
