package world

import (
	"fmt"
	"math/rand"

	"riftminer.ai/internal/persistence/snapshot"
	"riftminer.ai/internal/sim/node"
)

// ExportSnapshot captures every node's durable state, ordered by position.
// It must be called from the world loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	nodes := make([]snapshot.NodeV1, 0, len(w.order))
	for _, pos := range w.order {
		v := w.nodes[pos].Durable()
		v.Pos = pos.Array()
		nodes = append(nodes, v)
	}
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:               w.cfg.Seed,
		RngDraws:           w.src.draws,
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Miner: snapshot.MinerConfigV1{
			DefaultCycleTicks: w.cfg.Miner.DefaultCycleTicks,
			DefaultRolls:      w.cfg.Miner.DefaultRolls,
			SyncEveryTicks:    w.cfg.Miner.SyncEveryTicks,
			OutputSlots:       w.cfg.Miner.OutputSlots,
		},
		Nodes: nodes,
	}
}

// ImportSnapshot replaces the current nodes with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate) and fast-forwards the
// rng to the position recorded in the snapshot.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if w.cfg.Seed != s.Seed {
		return fmt.Errorf("snapshot seed mismatch: cfg=%d snap=%d", w.cfg.Seed, s.Seed)
	}

	// Operational parameters: snapshot is authoritative when present.
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	if s.Miner.DefaultCycleTicks > 0 {
		w.cfg.Miner.DefaultCycleTicks = s.Miner.DefaultCycleTicks
	}
	if s.Miner.DefaultRolls > 0 {
		w.cfg.Miner.DefaultRolls = s.Miner.DefaultRolls
	}
	if s.Miner.SyncEveryTicks > 0 {
		w.cfg.Miner.SyncEveryTicks = s.Miner.SyncEveryTicks
	}
	if s.Miner.OutputSlots > 0 {
		w.cfg.Miner.OutputSlots = s.Miner.OutputSlots
	}

	next := s.Header.Tick + 1
	src := newCountingSource(w.cfg.Seed, s.RngDraws)
	rng := rand.New(src)

	nodes := map[Vec3i]*node.Node{}
	for _, v := range s.Nodes {
		pos := FromArray(v.Pos)
		if _, dup := nodes[pos]; dup {
			return fmt.Errorf("snapshot: duplicate node at %v", v.Pos)
		}
		if v.ID == "" {
			v.ID = NodeID(pos)
		}
		n, err := node.Restore(v, w.cfg.Miner, w.provider, rng, w.nodeOptions()...)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		nodes[pos] = n
	}

	for _, old := range w.nodes {
		old.Remove()
	}
	w.src, w.rng = src, rng
	w.nodes = map[Vec3i]*node.Node{}
	w.order = w.order[:0]
	for pos, n := range nodes {
		w.addNode(pos, n)
	}
	w.changedSinceSnapshot = false
	w.tick.Store(next)
	w.publishNodeStates()
	return nil
}
