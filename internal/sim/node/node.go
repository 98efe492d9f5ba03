// Package node implements the rift miner: a world-placed node that turns one input item into a
// stream of weighted-random rewards over a configurable number of ticks.
//
// A Node is not safe for concurrent use. The hosting world calls Tick once per world tick and
// serialises every access through the views returned by Access.
package node

import (
	"log"

	"riftminer.ai/internal/sim/access"
	"riftminer.ai/internal/sim/bins"
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/rewards"
)

const (
	DefaultCycleTicks     = 400
	DefaultRollsPerCycle  = 1
	DefaultSyncEveryTicks = 10
	DefaultOutputSlots    = 9
)

type Config struct {
	DefaultCycleTicks int
	DefaultRolls      int
	// SyncEveryTicks is the periodic progress sync interval while running.
	SyncEveryTicks int
	OutputSlots    int

	StackLimit  bins.StackLimit
	InputFilter func(id string) bool
}

func DefaultConfig() Config {
	return Config{
		DefaultCycleTicks: DefaultCycleTicks,
		DefaultRolls:      DefaultRollsPerCycle,
		SyncEveryTicks:    DefaultSyncEveryTicks,
		OutputSlots:       DefaultOutputSlots,
	}
}

// Normalized replaces non-positive fields with package defaults.
func (c Config) Normalized() Config {
	if c.DefaultCycleTicks <= 0 {
		c.DefaultCycleTicks = DefaultCycleTicks
	}
	if c.DefaultRolls <= 0 {
		c.DefaultRolls = DefaultRollsPerCycle
	}
	if c.SyncEveryTicks <= 0 {
		c.SyncEveryTicks = DefaultSyncEveryTicks
	}
	if c.OutputSlots <= 0 {
		c.OutputSlots = DefaultOutputSlots
	}
	return c
}

// RewardProvider returns the weighted outputs for an input identity. It may return nil.
type RewardProvider interface {
	Lookup(input string) []rewards.Candidate
}

type ProviderFunc func(input string) []rewards.Candidate

func (f ProviderFunc) Lookup(input string) []rewards.Candidate { return f(input) }

// MetaDefaults returns the metadata an input item should carry when it has none.
type MetaDefaults func(id string) map[string]int

type Option func(*Node)

func WithLogger(l *log.Logger) Option { return func(n *Node) { n.log = l } }

func WithMetaDefaults(f MetaDefaults) Option { return func(n *Node) { n.metaDefaults = f } }

// State is the timer state of a node. Cache is nil when no candidates are cached;
// a non-nil empty table means the input has no recipe.
type State struct {
	CycleTimeRemaining int
	CycleDuration      int
	RollsPerCycle      int
	CurrentInput       string
	Cache              *rewards.Table
}

func (s State) Running() bool { return s.CycleTimeRemaining > 0 }

type Node struct {
	id  string
	cfg Config

	provider     RewardProvider
	rng          rewards.Rand
	log          *log.Logger
	metaDefaults MetaDefaults

	in    *bins.InputBin
	out   *bins.OutputBin
	lease *access.Lease

	st State

	dirty        bool
	stateChanged bool
	removed      bool
}

// New places a node with idle state and empty bins.
func New(id string, cfg Config, provider RewardProvider, rng rewards.Rand, opts ...Option) *Node {
	cfg = cfg.Normalized()
	n := &Node{
		id:       id,
		cfg:      cfg,
		provider: provider,
		rng:      rng,
		in:       bins.NewInputBin(cfg.InputFilter, cfg.StackLimit),
		out:      bins.NewOutputBin(cfg.OutputSlots, cfg.StackLimit),
		lease:    access.NewLease(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Node) ID() string        { return n.id }
func (n *Node) Config() Config    { return n.cfg }
func (n *Node) State() State      { return n.st }
func (n *Node) Removed() bool     { return n.removed }
func (n *Node) Dirty() bool       { return n.dirty }
func (n *Node) Input() item.Stack { s, _ := n.in.Peek(); return s }

// Output returns a copy of every output slot.
func (n *Node) Output() []item.Stack { return n.out.Contents() }

func (n *Node) InputBin() *bins.InputBin   { return n.in }
func (n *Node) OutputBin() *bins.OutputBin { return n.out }
func (n *Node) Lease() *access.Lease       { return n.lease }

// Access returns a fresh view for a caller approaching from side.
func (n *Node) Access(side access.Side) access.View { return access.Route(side, n) }

// Remove revokes every outstanding view. Bin contents are kept for the caller to export.
func (n *Node) Remove() {
	if n.removed {
		return
	}
	n.removed = true
	n.lease.Revoke()
}

// Changed reports whether durable state changed since the last ClearChanged.
func (n *Node) Changed() bool {
	return n.stateChanged || n.in.ContentsChanged() || n.out.ContentsChanged()
}

func (n *Node) ClearChanged() {
	n.stateChanged = false
	n.in.ClearChanged()
	n.out.ClearChanged()
}

func (n *Node) logf(format string, args ...any) {
	if n.log == nil {
		return
	}
	n.log.Printf("node %s: "+format, append([]any{n.id}, args...)...)
}
