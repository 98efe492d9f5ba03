package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingSnaps []snapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.place:
			w.handlePlace(req)
		case req := <-w.remove:
			w.handleRemove(req)
		case req := <-w.access:
			w.handleAccess(req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.snapshotReqs:
			pendingSnaps = append(pendingSnaps, req)
		case <-ticker.C:
			w.stepInternal()
			w.answerSnapshotRequests(pendingSnaps)
			pendingSnaps = pendingSnaps[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.tick.Load()
	w.stepInternal()
	return tick, w.stateDigest(tick)
}
