package world

import (
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync/atomic"

	"riftminer.ai/internal/persistence/snapshot"
	"riftminer.ai/internal/sim/catalogs"
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/node"
)

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) Array() [3]int { return [3]int{v.X, v.Y, v.Z} }

func FromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

func less(a, b Vec3i) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// NodeID is the stable id of the rift miner placed at pos.
func NodeID(pos Vec3i) string {
	return fmt.Sprintf("RIFT_MINER@%d,%d,%d", pos.X, pos.Y, pos.Z)
}

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	Seed               int64
	SnapshotEveryTicks int

	Miner           node.Config
	DefaultMaxStack int
	RestrictInputs  bool
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "OVERWORLD"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// MirrorSink receives the observer slice of nodes. Implementations must not block the caller.
type MirrorSink interface {
	PublishSync(tick uint64, nodes []NodeMirror)
	PublishRemoved(tick uint64, id string)
}

type NodeMirror struct {
	ID  string `json:"id"`
	Pos [3]int `json:"pos"`

	CycleTimeRemaining int `json:"cycle_time_remaining"`
	CycleDuration      int `json:"cycle_duration"`
}

type TickLogEntry struct {
	Tick   uint64        `json:"tick"`
	Cycles []CycleRecord `json:"cycles,omitempty"`
	Digest string        `json:"digest"`
}

// CycleRecord is one node's cycle event (start, cancel or completion) on a tick.
type CycleRecord struct {
	NodeID   string       `json:"node_id"`
	Pos      [3]int       `json:"pos"`
	Phase    string       `json:"phase"`
	Input    string       `json:"input,omitempty"`
	Duration int          `json:"duration,omitempty"`
	Rewards  []item.Stack `json:"rewards,omitempty"`
	Inserts  int          `json:"inserts,omitempty"`
	Dropped  int          `json:"dropped,omitempty"`
	NoRecipe bool         `json:"no_recipe,omitempty"`
}

type AuditEntry struct {
	Tick     uint64 `json:"tick"`
	Actor    string `json:"actor"`
	Action   string `json:"action"` // PLACE, REMOVE, PEEK, INSERT, EXTRACT, INSERT_ANY
	NodeID   string `json:"node_id"`
	Pos      [3]int `json:"pos"`
	Side     string `json:"side,omitempty"`
	Slot     int    `json:"slot,omitempty"`
	Item     string `json:"item,omitempty"`
	Count    int    `json:"count,omitempty"`
	Simulate bool   `json:"simulate,omitempty"`
	Code     string `json:"code,omitempty"`

	// Request fields let ReplayAudit re-apply an access: the offered stack of an insert and
	// the requested count of an extract.
	Stack     *item.Stack `json:"stack,omitempty"`
	Requested int         `json:"requested,omitempty"`
}

// World hosts rift miners keyed by position.
// All node state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	provider node.RewardProvider
	log      *log.Logger

	tick atomic.Uint64
	rng  *rand.Rand
	src  *countingSource

	nodes map[Vec3i]*node.Node
	order []Vec3i

	observers map[string]*observerClient

	place         chan placeReq
	remove        chan removeReq
	access        chan accessReq
	snapshotReqs  chan snapshotReq
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	stop          chan struct{}

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	auditLogger  AuditLogger
	mirror       MirrorSink
	snapshotSink chan<- snapshot.SnapshotV1

	// changedSinceSnapshot accumulates node Changed() flags between periodic snapshots.
	changedSinceSnapshot bool

	nodeStates atomic.Value // []NodeMirror
	metrics    atomic.Value // WorldMetrics
}

type Option func(*World)

func WithLogger(l *log.Logger) Option { return func(w *World) { w.log = l } }

// WithProvider overrides the recipe catalog as the reward source.
func WithProvider(p node.RewardProvider) Option { return func(w *World) { w.provider = p } }

func New(cfg WorldConfig, cats *catalogs.Catalogs, opts ...Option) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	cfg.applyDefaults()
	cfg.Miner.StackLimit = cats.Items.StackLimit(cfg.DefaultMaxStack)
	if cfg.RestrictInputs {
		cfg.Miner.InputFilter = cats.MinerRecipes.Accepts
	}

	w := &World{
		cfg:           cfg,
		catalogs:      cats,
		provider:      &cats.MinerRecipes,
		nodes:         map[Vec3i]*node.Node{},
		observers:     map[string]*observerClient{},
		place:         make(chan placeReq, 64),
		remove:        make(chan removeReq, 64),
		access:        make(chan accessReq, 1024),
		snapshotReqs:  make(chan snapshotReq, 16),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 64),
		stop:          make(chan struct{}),
	}
	w.src = newCountingSource(cfg.Seed, 0)
	w.rng = rand.New(w.src)
	for _, o := range opts {
		o(w)
	}
	w.cfg.Miner = w.cfg.Miner.Normalized()
	w.publishNodeStates()
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetMirrorSink(m MirrorSink)                    { w.mirror = m }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig {
	if w == nil {
		return WorldConfig{}
	}
	return w.cfg
}

func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}

func (w *World) nodeOptions() []node.Option {
	return []node.Option{
		node.WithLogger(w.log),
		node.WithMetaDefaults(w.catalogs.Items.MetaDefaults),
	}
}

func (w *World) newNode(pos Vec3i) *node.Node {
	return node.New(NodeID(pos), w.cfg.Miner, w.provider, w.rng, w.nodeOptions()...)
}

func (w *World) addNode(pos Vec3i, n *node.Node) {
	w.nodes[pos] = n
	i := sort.Search(len(w.order), func(i int) bool { return !less(w.order[i], pos) })
	w.order = append(w.order, Vec3i{})
	copy(w.order[i+1:], w.order[i:])
	w.order[i] = pos
}

func (w *World) dropNode(pos Vec3i) {
	delete(w.nodes, pos)
	for i, p := range w.order {
		if p == pos {
			w.order = append(w.order[:i], w.order[i+1:]...)
			return
		}
	}
}

func (w *World) mirrorOf(pos Vec3i, n *node.Node) NodeMirror {
	m := n.Mirror()
	return NodeMirror{
		ID:                 n.ID(),
		Pos:                pos.Array(),
		CycleTimeRemaining: m.CycleTimeRemaining,
		CycleDuration:      m.CycleDuration,
	}
}

// NodeStates returns the mirrored slice of every node as of the last completed tick.
// It is safe to call from any goroutine.
func (w *World) NodeStates() []NodeMirror {
	v, _ := w.nodeStates.Load().([]NodeMirror)
	out := make([]NodeMirror, len(v))
	copy(out, v)
	return out
}

func (w *World) publishNodeStates() {
	out := make([]NodeMirror, 0, len(w.order))
	for _, pos := range w.order {
		out = append(out, w.mirrorOf(pos, w.nodes[pos]))
	}
	w.nodeStates.Store(out)
}
