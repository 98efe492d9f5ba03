package world

import (
	"time"

	"riftminer.ai/internal/sim/node"
)

func (w *World) stepInternal() {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	var cycles []CycleRecord
	var syncs []NodeMirror
	running := 0

	// Nodes tick in position order so rng draws are reproducible.
	for _, pos := range w.order {
		n := w.nodes[pos]
		res := n.Tick()
		if rec, ok := cycleRecord(pos, n, res); ok {
			cycles = append(cycles, rec)
		}
		if n.State().Running() {
			running++
		}
		if n.Changed() {
			w.changedSinceSnapshot = true
			n.ClearChanged()
		}
		if _, ok := n.TakeSync(); ok {
			syncs = append(syncs, w.mirrorOf(pos, n))
		}
	}

	w.broadcastSync(nowTick, syncs)
	if len(syncs) > 0 {
		if w.mirror != nil {
			w.mirror.PublishSync(nowTick, syncs)
		}
	}
	w.publishNodeStates()

	if w.tickLogger != nil && len(cycles) > 0 {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Cycles: cycles, Digest: w.stateDigest(nowTick)})
	}

	// Snapshot every N ticks, starting after tick 0, only when durable state moved.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		every := uint64(w.cfg.SnapshotEveryTicks)
		if nowTick%every == 0 && w.changedSinceSnapshot {
			// A full sink leaves changedSinceSnapshot set; the next interval retries.
			_, _ = w.pushSnapshot(nowTick)
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	w.metrics.Store(WorldMetrics{
		Tick:         nextTick,
		Nodes:        len(w.nodes),
		RunningNodes: running,
		Observers:    len(w.observers),
		QueueDepths: QueueDepths{
			Place:  len(w.place),
			Remove: len(w.remove),
			Access: len(w.access),
		},
		StepMS:         stepMS,
		CyclesThisTick: len(cycles),
	})
}

func cycleRecord(pos Vec3i, n *node.Node, res node.TickResult) (CycleRecord, bool) {
	switch res.Phase {
	case node.PhaseStarted, node.PhaseCancelled, node.PhaseCompleted:
	default:
		return CycleRecord{}, false
	}
	rec := CycleRecord{
		NodeID:   n.ID(),
		Pos:      pos.Array(),
		Phase:    res.Phase.String(),
		Input:    res.Input,
		Rewards:  res.Rewards,
		Inserts:  res.Inserts,
		Dropped:  res.Dropped,
		NoRecipe: res.NoRecipe,
	}
	if res.Phase == node.PhaseStarted {
		rec.Duration = n.State().CycleDuration
	}
	return rec, true
}
