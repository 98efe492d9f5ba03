package world

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoSnapshotSink = errors.New("snapshot sink not configured")
	ErrSnapshotFull   = errors.New("snapshot sink full")
)

// SnapshotReceipt describes a snapshot handed to the sink.
type SnapshotReceipt struct {
	Tick  uint64 `json:"tick"`
	Nodes int    `json:"nodes"`
}

type snapshotReq struct {
	Resp chan snapshotResp
}

type snapshotResp struct {
	Receipt SnapshotReceipt
	Err     error
}

// RequestSnapshot forces a snapshot of every node after the current tick, even when no
// node changed since the last one.
func (w *World) RequestSnapshot(ctx context.Context) (SnapshotReceipt, error) {
	if w == nil || w.snapshotReqs == nil {
		return SnapshotReceipt{}, ErrNoSnapshotSink
	}
	resp := make(chan snapshotResp, 1)
	select {
	case w.snapshotReqs <- snapshotReq{Resp: resp}:
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Receipt, r.Err
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}
}

// pushSnapshot exports the world as of tick and offers it to the sink without blocking.
func (w *World) pushSnapshot(tick uint64) (SnapshotReceipt, error) {
	if w.snapshotSink == nil {
		return SnapshotReceipt{Tick: tick}, ErrNoSnapshotSink
	}
	snap := w.ExportSnapshot(tick)
	rc := SnapshotReceipt{Tick: tick, Nodes: len(snap.Nodes)}
	select {
	case w.snapshotSink <- snap:
		w.changedSinceSnapshot = false
		return rc, nil
	default:
		return rc, fmt.Errorf("tick %d: %w", tick, ErrSnapshotFull)
	}
}

// answerSnapshotRequests runs after a step; all pending requests share one snapshot of the
// tick that just completed.
func (w *World) answerSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	var done uint64
	if cur := w.tick.Load(); cur > 0 {
		done = cur - 1
	}
	rc, err := w.pushSnapshot(done)
	if err == nil {
		w.logf("snapshot of %d nodes at tick %d on request", rc.Nodes, rc.Tick)
	}
	for _, r := range reqs {
		select {
		case r.Resp <- snapshotResp{Receipt: rc, Err: err}:
		default:
		}
	}
}
