package node

import (
	"errors"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"

	"riftminer.ai/internal/persistence/snapshot"
	"riftminer.ai/internal/sim/access"
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/rewards"
)

type countingProvider struct {
	calls map[string]int
	table map[string][]rewards.Candidate
}

func newCountingProvider() *countingProvider {
	return &countingProvider{
		calls: map[string]int{},
		table: map[string][]rewards.Candidate{
			"IRON_SHARD": {
				{Template: item.New("IRON_ORE", 1, 0), Weight: 3},
				{Template: item.New("STONE", 2, 0), Weight: 1},
			},
			"GOLD_SHARD": {
				{Template: item.New("GOLD_ORE", 1, 0), Weight: 1},
			},
		},
	}
}

func (p *countingProvider) Lookup(input string) []rewards.Candidate {
	p.calls[input]++
	return p.table[input]
}

func shard(id string, duration, rolls int) item.Stack {
	s := item.New(id, 1, 10)
	s.Meta = map[string]int{}
	if duration > 0 {
		s.Meta[item.MetaMaxCycleTicks] = duration
	}
	if rolls > 0 {
		s.Meta[item.MetaRollsPerCycle] = rolls
	}
	return s
}

func newTestNode(p RewardProvider) *Node {
	return New("RIFT_MINER@0,0,0", DefaultConfig(), p, rand.New(rand.NewSource(1)))
}

func outputCount(n *Node) int {
	total := 0
	for _, s := range n.Output() {
		total += s.Count
	}
	return total
}

func TestTick_IdleWithoutInput(t *testing.T) {
	n := newTestNode(newCountingProvider())
	for i := 0; i < 5; i++ {
		if res := n.Tick(); res.Phase != PhaseIdle {
			t.Fatalf("expected idle, got %s", res.Phase)
		}
	}
	if n.Dirty() || n.Changed() {
		t.Fatalf("idle node should not be dirty or changed")
	}
}

func TestTick_FullCycleProducesOneReward(t *testing.T) {
	p := newCountingProvider()
	n := newTestNode(p)
	n.InputBin().Set(shard("IRON_SHARD", 400, 1))

	if res := n.Tick(); res.Phase != PhaseStarted {
		t.Fatalf("expected start, got %s", res.Phase)
	}
	st := n.State()
	if st.CycleDuration != 400 || st.CycleTimeRemaining != 400 || st.RollsPerCycle != 1 || st.CurrentInput != "IRON_SHARD" {
		t.Fatalf("unexpected start state %+v", st)
	}

	var last TickResult
	inserts := 0
	for i := 0; i < 400; i++ {
		last = n.Tick()
		inserts += last.Inserts
		if i < 399 && last.Phase != PhaseRunning {
			t.Fatalf("tick %d: expected running, got %s", i, last.Phase)
		}
	}
	if last.Phase != PhaseCompleted {
		t.Fatalf("expected completion on tick 400, got %s", last.Phase)
	}
	if n.State().CycleTimeRemaining != 0 {
		t.Fatalf("expected remaining 0, got %d", n.State().CycleTimeRemaining)
	}
	if inserts != 1 || len(last.Rewards) != 1 {
		t.Fatalf("expected exactly one insert, got %d (%d rewards)", inserts, len(last.Rewards))
	}
	if got := n.Input(); got.Durability != 9 || got.Count != 1 {
		t.Fatalf("expected one damage unit, input=%+v", got)
	}
	if outputCount(n) == 0 {
		t.Fatalf("expected reward in output")
	}
	if p.calls["IRON_SHARD"] != 1 {
		t.Fatalf("expected one provider lookup, got %d", p.calls["IRON_SHARD"])
	}
}

func TestTick_InputSwapCancelsCycle(t *testing.T) {
	p := newCountingProvider()
	n := newTestNode(p)
	n.InputBin().Set(shard("IRON_SHARD", 400, 1))
	n.Tick()

	for i := 0; i < 199; i++ {
		n.Tick()
	}
	if got := n.State().CycleTimeRemaining; got != 201 {
		t.Fatalf("expected 201 remaining before swap, got %d", got)
	}

	n.InputBin().Set(shard("GOLD_SHARD", 400, 1))
	res := n.Tick()
	if res.Phase != PhaseCancelled {
		t.Fatalf("expected cancellation, got %s", res.Phase)
	}
	st := n.State()
	if st.CycleTimeRemaining != 0 {
		t.Fatalf("expected remaining forced to 0, got %d", st.CycleTimeRemaining)
	}
	if st.Cache != nil {
		t.Fatalf("expected cache cleared")
	}
	if outputCount(n) != 0 || len(res.Rewards) != 0 {
		t.Fatalf("cancellation must not produce rewards")
	}
	if p.calls["IRON_SHARD"] != 0 {
		t.Fatalf("cancelled cycle must not query the provider")
	}

	if res := n.Tick(); res.Phase != PhaseStarted || n.State().CurrentInput != "GOLD_SHARD" {
		t.Fatalf("expected new cycle for GOLD_SHARD, got %s %+v", res.Phase, n.State())
	}
}

func TestTick_SwapDropsPopulatedCache(t *testing.T) {
	p := newCountingProvider()
	n := newTestNode(p)
	n.InputBin().Set(shard("IRON_SHARD", 5, 1))

	// First cycle: start plus five running ticks resolves the cache.
	for i := 0; i < 6; i++ {
		n.Tick()
	}
	if p.calls["IRON_SHARD"] != 1 || n.State().Cache == nil {
		t.Fatalf("expected a cached table after the first cycle, calls=%d", p.calls["IRON_SHARD"])
	}

	// Second cycle of the same identity keeps the cache while counting down.
	if res := n.Tick(); res.Phase != PhaseStarted {
		t.Fatalf("expected second cycle to start, got %s", res.Phase)
	}
	n.Tick()
	n.Tick()
	if st := n.State(); st.CycleTimeRemaining != 3 || st.Cache == nil {
		t.Fatalf("expected running cycle with cache, got %+v", st)
	}

	iron := n.Input()
	n.InputBin().Set(shard("GOLD_SHARD", 5, 1))
	if res := n.Tick(); res.Phase != PhaseCancelled || len(res.Rewards) != 0 {
		t.Fatalf("expected cancellation, got %s", res.Phase)
	}
	if n.State().Cache != nil {
		t.Fatalf("cancellation must drop the populated cache")
	}
	if p.calls["IRON_SHARD"] != 1 || p.calls["GOLD_SHARD"] != 0 {
		t.Fatalf("cancelled cycle must not query the provider, calls=%v", p.calls)
	}

	// Putting the original input back resolves the table again on completion.
	n.InputBin().Set(iron)
	for i := 0; i < 6; i++ {
		n.Tick()
	}
	if p.calls["IRON_SHARD"] != 2 {
		t.Fatalf("expected a fresh lookup after the cache was dropped, calls=%d", p.calls["IRON_SHARD"])
	}
}

func TestTick_CacheReusedUntilIdentityChanges(t *testing.T) {
	p := newCountingProvider()
	n := newTestNode(p)
	in := shard("IRON_SHARD", 3, 1)
	in.Durability = 100
	in.MaxDurability = 100
	n.InputBin().Set(in)

	for i := 0; i < 4*3; i++ {
		n.Tick()
	}
	if p.calls["IRON_SHARD"] != 1 {
		t.Fatalf("expected a single lookup across cycles, got %d", p.calls["IRON_SHARD"])
	}
	if n.State().Cache == nil {
		t.Fatalf("expected cache to be held")
	}

	// Wait out the running cycle, then swap while idle.
	for n.State().Running() {
		n.Tick()
	}
	n.InputBin().Set(shard("GOLD_SHARD", 3, 1))
	n.Tick()
	if n.State().CurrentInput != "GOLD_SHARD" {
		t.Fatalf("expected GOLD_SHARD cycle, got %+v", n.State())
	}
	if n.State().Cache != nil {
		t.Fatalf("stale cache survived identity change")
	}
	for n.State().Running() {
		n.Tick()
	}
	if p.calls["GOLD_SHARD"] != 1 {
		t.Fatalf("expected GOLD_SHARD lookup, got %d", p.calls["GOLD_SHARD"])
	}
}

func TestTick_CacheDroppedWhenInputConsumed(t *testing.T) {
	p := newCountingProvider()
	n := newTestNode(p)
	in := item.Stack{Item: "IRON_SHARD", Count: 1, Durability: 1, MaxDurability: 1, Meta: map[string]int{item.MetaMaxCycleTicks: 2}}
	n.InputBin().Set(in)

	n.Tick()
	n.Tick()
	res := n.Tick()
	if res.Phase != PhaseCompleted {
		t.Fatalf("expected completion, got %s", res.Phase)
	}
	if _, ok := n.InputBin().Peek(); ok {
		t.Fatalf("expected input consumed")
	}
	if n.State().Cache != nil {
		t.Fatalf("expected cache dropped once input is gone")
	}
	if res := n.Tick(); res.Phase != PhaseIdle {
		t.Fatalf("expected idle, got %s", res.Phase)
	}
}

func TestTick_FullOutputDropsRewardsButCompletes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputSlots = 1
	n := New("N", cfg, newCountingProvider(), rand.New(rand.NewSource(3)))
	_ = n.OutputBin().Set(0, item.New("DIRT", 64, 0))
	n.InputBin().Set(shard("IRON_SHARD", 5, 2))

	n.Tick()
	var res TickResult
	for i := 0; i < 5; i++ {
		res = n.Tick()
	}
	if res.Phase != PhaseCompleted {
		t.Fatalf("expected completion, got %s", res.Phase)
	}
	if res.Inserts != 2 || res.Dropped == 0 {
		t.Fatalf("expected 2 inserts with drops, got %+v", res)
	}
	if n.State().Running() {
		t.Fatalf("expected idle after completion")
	}
	if s, _ := n.OutputBin().Slot(0); s.Item != "DIRT" || s.Count != 64 {
		t.Fatalf("output changed: %+v", s)
	}
	if got := n.Input().Durability; got != 9 {
		t.Fatalf("input should still be damaged, durability=%d", got)
	}
	if res := n.Tick(); res.Phase != PhaseStarted {
		t.Fatalf("expected next cycle to start, got %s", res.Phase)
	}
}

func TestTick_NoRecipeShortCircuits(t *testing.T) {
	p := ProviderFunc(func(string) []rewards.Candidate {
		return []rewards.Candidate{{Template: item.New("STONE", 1, 0), Weight: 0}}
	})
	n := newTestNode(p)
	n.InputBin().Set(shard("ODD_SHARD", 2, 1))

	n.Tick()
	n.Tick()
	res := n.Tick()
	if res.Phase != PhaseCompleted || !res.NoRecipe {
		t.Fatalf("expected no-recipe completion, got %+v", res)
	}
	if outputCount(n) != 0 {
		t.Fatalf("expected no output")
	}
	if got := n.Input().Durability; got != 10 {
		t.Fatalf("no-recipe cycle must not damage input, durability=%d", got)
	}
	if c := n.State().Cache; c == nil || c.Len() != 0 {
		t.Fatalf("expected empty table cached")
	}
}

func TestTick_MixedWeightsKeepPositiveCandidates(t *testing.T) {
	p := ProviderFunc(func(string) []rewards.Candidate {
		return []rewards.Candidate{
			{Template: item.New("STONE", 1, 0), Weight: -1},
			{Template: item.New("IRON_ORE", 1, 0), Weight: 4},
		}
	})
	n := newTestNode(p)
	n.InputBin().Set(shard("IRON_SHARD", 1, 1))
	n.Tick()
	res := n.Tick()
	if res.Phase != PhaseCompleted || len(res.Rewards) != 1 || res.Rewards[0].Item != "IRON_ORE" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTick_MetadataDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultCycleTicks = 50
	cfg.DefaultRolls = 3

	n := New("N", cfg, newCountingProvider(), rand.New(rand.NewSource(1)))
	in := item.New("IRON_SHARD", 1, 10)
	in.Meta = map[string]int{item.MetaMaxCycleTicks: -4, item.MetaRollsPerCycle: 0}
	n.InputBin().Set(in)
	n.Tick()
	if st := n.State(); st.CycleDuration != 50 || st.RollsPerCycle != 3 {
		t.Fatalf("expected config defaults, got %+v", st)
	}

	m := New("M", cfg, newCountingProvider(), rand.New(rand.NewSource(1)),
		WithMetaDefaults(func(id string) map[string]int {
			return map[string]int{item.MetaMaxCycleTicks: 120, item.MetaRollsPerCycle: 2}
		}))
	m.InputBin().Set(item.New("IRON_SHARD", 1, 10))
	m.Tick()
	if st := m.State(); st.CycleDuration != 120 || st.RollsPerCycle != 2 {
		t.Fatalf("expected initialised metadata, got %+v", st)
	}
	if m.Input().MetaInt(item.MetaMaxCycleTicks) != 120 {
		t.Fatalf("expected metadata written to the input")
	}
}

func TestTakeSync_PhaseAndPeriodicEmissions(t *testing.T) {
	n := newTestNode(newCountingProvider())
	n.InputBin().Set(shard("IRON_SHARD", 25, 1))

	n.Tick()
	m, ok := n.TakeSync()
	if !ok || m.CycleTimeRemaining != 25 || m.CycleDuration != 25 {
		t.Fatalf("expected start emission, got %+v ok=%v", m, ok)
	}
	if _, ok := n.TakeSync(); ok {
		t.Fatalf("dirty flag must clear after emission")
	}

	var emitted []int
	for i := 0; i < 25; i++ {
		n.Tick()
		if m, ok := n.TakeSync(); ok {
			emitted = append(emitted, m.CycleTimeRemaining)
		}
	}
	if want := []int{20, 10, 0}; !reflect.DeepEqual(emitted, want) {
		t.Fatalf("expected emissions at %v, got %v", want, emitted)
	}
}

func TestTakeSync_CancellationEmitsImmediately(t *testing.T) {
	n := newTestNode(newCountingProvider())
	n.InputBin().Set(shard("IRON_SHARD", 25, 1))
	n.Tick()
	n.TakeSync()
	n.Tick()
	n.TakeSync()

	n.InputBin().Set(item.Stack{})
	n.Tick()
	m, ok := n.TakeSync()
	if !ok || m.CycleTimeRemaining != 0 {
		t.Fatalf("expected cancellation emission, got %+v ok=%v", m, ok)
	}
}

func TestDurableRestore_RoundTrip(t *testing.T) {
	p := newCountingProvider()
	n := newTestNode(p)
	in := shard("IRON_SHARD", 6, 2)
	in.Count = 3
	n.InputBin().Set(in)
	for i := 0; i < 10; i++ {
		n.Tick()
	}
	if n.State().Cache == nil || !n.State().Running() {
		t.Fatalf("setup: expected running node with cache, got %+v", n.State())
	}

	v := n.Durable()
	v.Pos = [3]int{4, 5, 6}
	path := filepath.Join(t.TempDir(), "n.snap.zst")
	if err := snapshot.WriteSnapshot(path, snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version}, Nodes: []snapshot.NodeV1{v}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	r, err := Restore(snap.Nodes[0], DefaultConfig(), p, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	a, b := n.State(), r.State()
	if a.CycleTimeRemaining != b.CycleTimeRemaining || a.CycleDuration != b.CycleDuration ||
		a.RollsPerCycle != b.RollsPerCycle || a.CurrentInput != b.CurrentInput {
		t.Fatalf("timer mismatch: %+v vs %+v", a, b)
	}
	if !reflect.DeepEqual(a.Cache.Candidates(), b.Cache.Candidates()) {
		t.Fatalf("cache mismatch")
	}
	if !reflect.DeepEqual(n.Input(), r.Input()) {
		t.Fatalf("input mismatch: %+v vs %+v", n.Input(), r.Input())
	}
	if !reflect.DeepEqual(n.Output(), r.Output()) {
		t.Fatalf("output mismatch: %+v vs %+v", n.Output(), r.Output())
	}
	if !reflect.DeepEqual(r.Durable(), n.Durable()) {
		t.Fatalf("durable export is not idempotent")
	}
}

func TestDurableRestore_EmptyCacheIsPreserved(t *testing.T) {
	n := newTestNode(ProviderFunc(func(string) []rewards.Candidate { return nil }))
	n.InputBin().Set(shard("ODD_SHARD", 1, 1))
	n.Tick()
	n.Tick()

	r, err := Restore(n.Durable(), DefaultConfig(), nil, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if c := r.State().Cache; c == nil || c.Len() != 0 {
		t.Fatalf("expected cached empty table after restore")
	}
}

func TestRestore_RejectsBadState(t *testing.T) {
	_, err := Restore(snapshot.NodeV1{ID: "X", CycleTimeRemaining: 5, CycleDuration: 4}, DefaultConfig(), nil, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatalf("expected error for remaining > duration")
	}
	_, err = Restore(snapshot.NodeV1{ID: "X", CycleTimeRemaining: 3, CycleDuration: 4}, DefaultConfig(), nil, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatalf("expected error for a running cycle without an input")
	}
	_, err = Restore(snapshot.NodeV1{ID: "X", OutputHandler: snapshot.BinV1{Size: 2, Items: []snapshot.SlotV1{{Slot: 5, Stack: snapshot.StackV1{Item: "A", Count: 1}}}}}, DefaultConfig(), nil, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatalf("expected error for bad slot")
	}
}

func TestRemove_RevokesViewsAndStopsTicking(t *testing.T) {
	n := newTestNode(newCountingProvider())
	n.InputBin().Set(shard("IRON_SHARD", 5, 1))
	n.Tick()
	view := n.Access(access.Up)

	n.Remove()

	if _, err := view.Stack(0); !errors.Is(err, access.ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
	if _, err := n.Access(access.East).Stack(0); !errors.Is(err, access.ErrRevoked) {
		t.Fatalf("expected ErrRevoked for a fresh view, got %v", err)
	}
	before := n.State()
	if res := n.Tick(); res.Phase != PhaseIdle || n.State() != before {
		t.Fatalf("removed node must not tick")
	}
	if n.Input().Item != "IRON_SHARD" {
		t.Fatalf("removal must keep bin contents")
	}
}

func TestChanged_TracksDurableMutations(t *testing.T) {
	n := newTestNode(newCountingProvider())
	if n.Changed() {
		t.Fatalf("fresh node should be clean")
	}
	if _, err := n.Access(access.North).Insert(0, item.New("STONE", 1, 0), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !n.Changed() {
		t.Fatalf("expected changed after output insert")
	}
	n.ClearChanged()
	if n.Changed() {
		t.Fatalf("expected clean after ClearChanged")
	}
}
