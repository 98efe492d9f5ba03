package node

import (
	"fmt"

	"riftminer.ai/internal/persistence/snapshot"
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/rewards"
)

// Mirror is the slice of state pushed to observers. It never carries bin contents.
type Mirror struct {
	CycleTimeRemaining int `json:"cycle_time_remaining"`
	CycleDuration      int `json:"cycle_duration"`
}

func (n *Node) Mirror() Mirror {
	return Mirror{CycleTimeRemaining: n.st.CycleTimeRemaining, CycleDuration: n.st.CycleDuration}
}

// MarkDirty forces the next TakeSync to emit, e.g. after an observer joins.
func (n *Node) MarkDirty() { n.dirty = true }

// TakeSync returns the mirrored slice if it is dirty and clears the flag.
func (n *Node) TakeSync() (Mirror, bool) {
	if !n.dirty {
		return Mirror{}, false
	}
	n.dirty = false
	return n.Mirror(), true
}

// Durable exports the full persisted state. Pos is left for the caller to fill in.
func (n *Node) Durable() snapshot.NodeV1 {
	v := snapshot.NodeV1{
		ID:                 n.id,
		CycleTimeRemaining: n.st.CycleTimeRemaining,
		CycleDuration:      n.st.CycleDuration,
		RollsPerCycle:      n.st.RollsPerCycle,
		CurrentInput:       n.st.CurrentInput,
		InputHandler:       snapshot.BinV1{Size: 1},
		OutputHandler:      snapshot.BinV1{Size: n.out.Slots()},
	}
	if n.st.Cache != nil {
		v.CacheValid = true
		for _, c := range n.st.Cache.Candidates() {
			v.CachedCandidates = append(v.CachedCandidates, snapshot.CandidateV1{Stack: stackToV1(c.Template), Weight: c.Weight})
		}
	}
	if s, ok := n.in.Peek(); ok {
		v.InputHandler.Items = []snapshot.SlotV1{{Slot: 0, Stack: stackToV1(s)}}
	}
	for i, s := range n.out.Contents() {
		if s.IsEmpty() {
			continue
		}
		v.OutputHandler.Items = append(v.OutputHandler.Items, snapshot.SlotV1{Slot: i, Stack: stackToV1(s)})
	}
	return v
}

// Restore rebuilds a node from its persisted state. The restored node starts dirty so
// observers receive its timer on the next sync.
func Restore(v snapshot.NodeV1, cfg Config, provider RewardProvider, rng rewards.Rand, opts ...Option) (*Node, error) {
	if v.CycleTimeRemaining < 0 || v.CycleDuration < 0 || v.RollsPerCycle < 0 {
		return nil, fmt.Errorf("node %s: negative timer state", v.ID)
	}
	if v.CycleTimeRemaining > v.CycleDuration {
		return nil, fmt.Errorf("node %s: remaining %d exceeds duration %d", v.ID, v.CycleTimeRemaining, v.CycleDuration)
	}
	if v.CycleTimeRemaining > 0 && v.CurrentInput == "" {
		return nil, fmt.Errorf("node %s: running cycle has no input", v.ID)
	}
	if v.OutputHandler.Size > 0 {
		cfg.OutputSlots = v.OutputHandler.Size
	}
	n := New(v.ID, cfg, provider, rng, opts...)

	for _, sl := range v.InputHandler.Items {
		if sl.Slot != 0 {
			return nil, fmt.Errorf("node %s: input slot %d out of range", v.ID, sl.Slot)
		}
		n.in.Set(stackFromV1(sl.Stack))
	}
	for _, sl := range v.OutputHandler.Items {
		if err := n.out.Set(sl.Slot, stackFromV1(sl.Stack)); err != nil {
			return nil, fmt.Errorf("node %s: output slot %d: %w", v.ID, sl.Slot, err)
		}
	}

	n.st = State{
		CycleTimeRemaining: v.CycleTimeRemaining,
		CycleDuration:      v.CycleDuration,
		RollsPerCycle:      v.RollsPerCycle,
		CurrentInput:       v.CurrentInput,
	}
	if v.CacheValid && v.CurrentInput != "" {
		cands := make([]rewards.Candidate, 0, len(v.CachedCandidates))
		for _, c := range v.CachedCandidates {
			cands = append(cands, rewards.Candidate{Template: stackFromV1(c.Stack), Weight: c.Weight})
		}
		tbl, err := rewards.NewTable(cands)
		if err != nil {
			return nil, fmt.Errorf("node %s: cached candidates: %w", v.ID, err)
		}
		n.st.Cache = tbl
	}

	n.ClearChanged()
	n.dirty = true
	return n, nil
}

func stackToV1(s item.Stack) snapshot.StackV1 {
	s = s.Clone()
	return snapshot.StackV1{
		Item:          s.Item,
		Count:         s.Count,
		Durability:    s.Durability,
		MaxDurability: s.MaxDurability,
		Meta:          s.Meta,
	}
}

func stackFromV1(v snapshot.StackV1) item.Stack {
	return item.Stack{
		Item:          v.Item,
		Count:         v.Count,
		Durability:    v.Durability,
		MaxDurability: v.MaxDurability,
		Meta:          v.Meta,
	}.Clone()
}
