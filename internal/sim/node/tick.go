package node

import (
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/rewards"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarted
	PhaseRunning
	PhaseCancelled
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseStarted:
		return "STARTED"
	case PhaseRunning:
		return "RUNNING"
	case PhaseCancelled:
		return "CANCELLED"
	case PhaseCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// TickResult describes what one Tick did.
type TickResult struct {
	Phase Phase
	Input string

	// Completion only.
	Rewards  []item.Stack
	Inserts  int
	Dropped  int
	NoRecipe bool
}

// Tick advances the node by one world tick.
func (n *Node) Tick() TickResult {
	if n.removed {
		return TickResult{Phase: PhaseIdle}
	}
	input := n.in.Identity()

	if n.st.CycleTimeRemaining > 0 {
		n.st.CycleTimeRemaining--
		n.stateChanged = true

		if input != n.st.CurrentInput {
			// Removed, swapped or used up: cancel without a reward.
			cancelled := n.st.CurrentInput
			n.st.CycleTimeRemaining = 0
			n.st.Cache = nil
			n.dirty = true
			return TickResult{Phase: PhaseCancelled, Input: cancelled}
		}
		if n.st.CycleTimeRemaining == 0 {
			res := n.complete()
			n.dirty = true
			return res
		}
		if n.st.CycleTimeRemaining%n.cfg.SyncEveryTicks == 0 {
			n.dirty = true
		}
		return TickResult{Phase: PhaseRunning, Input: input}
	}

	if input != n.st.CurrentInput && n.st.Cache != nil {
		n.st.Cache = nil
		n.stateChanged = true
	}
	if input == "" {
		return TickResult{Phase: PhaseIdle}
	}
	n.start(input)
	return TickResult{Phase: PhaseStarted, Input: input}
}

func (n *Node) start(input string) {
	stack, _ := n.in.Peek()
	if len(stack.Meta) == 0 && n.metaDefaults != nil {
		if meta := n.metaDefaults(input); len(meta) > 0 {
			stack.Meta = meta
			n.in.Set(stack)
		}
	}

	duration := stack.MetaInt(item.MetaMaxCycleTicks)
	if duration <= 0 {
		duration = n.cfg.DefaultCycleTicks
	}
	rolls := stack.MetaInt(item.MetaRollsPerCycle)
	if rolls <= 0 {
		rolls = n.cfg.DefaultRolls
	}

	if input != n.st.CurrentInput {
		n.st.Cache = nil
	}
	n.st.CurrentInput = input
	n.st.CycleDuration = duration
	n.st.CycleTimeRemaining = duration
	n.st.RollsPerCycle = rolls
	n.stateChanged = true
	n.dirty = true
}

func (n *Node) complete() TickResult {
	res := TickResult{Phase: PhaseCompleted, Input: n.st.CurrentInput}

	tbl := n.candidates()
	if tbl.Len() == 0 {
		res.NoRecipe = true
		return res
	}

	for i := 0; i < n.st.RollsPerCycle; i++ {
		c, err := tbl.Draw(n.rng)
		if err != nil {
			n.logf("draw: %v", err)
			break
		}
		reward := c.Template.Clone()
		ins := n.out.TryInsert(reward)
		res.Inserts++
		res.Rewards = append(res.Rewards, reward)
		// A full output bin loses the overflow; the node keeps cycling.
		res.Dropped += ins.Remainder
	}

	n.in.TakeDamageOrShrink(1)
	if n.in.Identity() != n.st.CurrentInput {
		n.st.Cache = nil
	}
	return res
}

// candidates returns the cached table, building it from the provider on first use.
func (n *Node) candidates() *rewards.Table {
	if n.st.Cache != nil {
		return n.st.Cache
	}
	var raw []rewards.Candidate
	if n.provider != nil {
		raw = n.provider.Lookup(n.st.CurrentInput)
	}
	valid := make([]rewards.Candidate, 0, len(raw))
	for _, c := range raw {
		if c.Weight <= 0 || c.Template.IsEmpty() {
			n.logf("skip candidate %q weight=%d for %s", c.Template.Item, c.Weight, n.st.CurrentInput)
			continue
		}
		valid = append(valid, c)
	}
	tbl, err := rewards.NewTable(valid)
	if err != nil {
		n.logf("build reward table for %s: %v", n.st.CurrentInput, err)
		tbl, _ = rewards.NewTable(nil)
	}
	n.st.Cache = tbl
	n.stateChanged = true
	return tbl
}
