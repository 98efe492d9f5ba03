// Package nodecache mirrors the observer slice of every node into Redis: one hash per node
// plus a pub/sub channel carrying the same NODE_SYNC / NODE_REMOVED messages observers get.
package nodecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"riftminer.ai/internal/observerproto"
	"riftminer.ai/internal/sim/world"
)

type Options struct {
	// Prefix namespaces every key; defaults to "riftminer".
	Prefix string
	Logger *log.Logger
	// WriteTimeout bounds each pipeline round trip.
	WriteTimeout time.Duration
}

type Store struct {
	rdb    *redis.Client
	prefix string
	log    *log.Logger
	wto    time.Duration

	// ch is never closed; Close stops the loop through quit and discards what is left.
	ch     chan update
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

type update struct {
	tick    uint64
	nodes   []world.NodeMirror
	removed string
	done    chan struct{}
}

func New(rdb *redis.Client, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "riftminer"
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		rdb:    rdb,
		prefix: opts.Prefix,
		log:    opts.Logger,
		wto:    opts.WriteTimeout,
		ch:     make(chan update, 4096),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s
}

func (s *Store) NodeKey(id string) string { return s.prefix + ":node:" + id }
func (s *Store) IndexKey() string         { return s.prefix + ":nodes" }
func (s *Store) Channel() string          { return s.prefix + ":sync" }

// Close stops the writer without flushing: an in-flight write is cancelled and queued updates
// are counted as dropped. Call Sync first to flush. Publishing after Close is a no-op.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		close(s.quit)
		s.wg.Wait()
		for {
			select {
			case u := <-s.ch:
				if u.done != nil {
					close(u.done)
					continue
				}
				s.dropped.Add(1)
			default:
				return
			}
		}
	})
	return nil
}

// Dropped reports updates lost to a full queue; Failed reports updates Redis rejected.
func (s *Store) Dropped() uint64 { return s.dropped.Load() }
func (s *Store) Failed() uint64  { return s.failed.Load() }

func (s *Store) enqueue(u update) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- u:
	default:
		s.dropped.Add(1)
	}
}

func (s *Store) PublishSync(tick uint64, nodes []world.NodeMirror) {
	cp := make([]world.NodeMirror, len(nodes))
	copy(cp, nodes)
	s.enqueue(update{tick: tick, nodes: cp})
}

func (s *Store) PublishRemoved(tick uint64, id string) {
	s.enqueue(update{tick: tick, removed: id})
}

// Sync blocks until every update queued before it has been written.
func (s *Store) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- update{done: done}:
	case <-s.quit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.quit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) loop() {
	for {
		select {
		case <-s.quit:
			return
		case u := <-s.ch:
			if u.done != nil {
				close(u.done)
				continue
			}
			ctx, cancel := context.WithTimeout(s.ctx, s.wto)
			err := s.write(ctx, u)
			cancel()
			switch {
			case err == nil:
			case s.ctx.Err() != nil:
				// Abandoned by Close.
				s.dropped.Add(1)
			default:
				s.failed.Add(1)
				if s.log != nil {
					s.log.Printf("nodecache: tick %d: %v", u.tick, err)
				}
			}
		}
	}
}

func (s *Store) write(ctx context.Context, u update) error {
	pipe := s.rdb.TxPipeline()
	var msg any
	if u.removed != "" {
		pipe.Del(ctx, s.NodeKey(u.removed))
		pipe.SRem(ctx, s.IndexKey(), u.removed)
		msg = observerproto.NodeRemovedMsg{
			Type:            observerproto.TypeNodeRemoved,
			ProtocolVersion: observerproto.Version,
			Tick:            u.tick,
			ID:              u.removed,
		}
	} else {
		states := make([]observerproto.NodeState, 0, len(u.nodes))
		for _, n := range u.nodes {
			pipe.HSet(ctx, s.NodeKey(n.ID), hashFields(u.tick, n))
			pipe.SAdd(ctx, s.IndexKey(), n.ID)
			states = append(states, observerproto.NodeState(n))
		}
		msg = observerproto.NodeSyncMsg{
			Type:            observerproto.TypeNodeSync,
			ProtocolVersion: observerproto.Version,
			Tick:            u.tick,
			Nodes:           states,
		}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe.Publish(ctx, s.Channel(), b)
	_, err = pipe.Exec(ctx)
	return err
}

func hashFields(tick uint64, n world.NodeMirror) map[string]any {
	return map[string]any{
		"id":                   n.ID,
		"x":                    n.Pos[0],
		"y":                    n.Pos[1],
		"z":                    n.Pos[2],
		"tick":                 tick,
		"cycle_time_remaining": n.CycleTimeRemaining,
		"cycle_duration":       n.CycleDuration,
	}
}

func mirrorFromHash(h map[string]string) (world.NodeMirror, uint64, error) {
	var m world.NodeMirror
	m.ID = h["id"]
	if m.ID == "" {
		return m, 0, fmt.Errorf("missing id")
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"x", &m.Pos[0]},
		{"y", &m.Pos[1]},
		{"z", &m.Pos[2]},
		{"cycle_time_remaining", &m.CycleTimeRemaining},
		{"cycle_duration", &m.CycleDuration},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(h[f.key])
		if err != nil {
			return m, 0, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}
	tick, err := strconv.ParseUint(h["tick"], 10, 64)
	if err != nil {
		return m, 0, fmt.Errorf("tick: %w", err)
	}
	return m, tick, nil
}

// Get reads one node's mirrored slice. ok is false when the node is not cached.
func (s *Store) Get(ctx context.Context, id string) (m world.NodeMirror, tick uint64, ok bool, err error) {
	h, err := s.rdb.HGetAll(ctx, s.NodeKey(id)).Result()
	if err != nil {
		return m, 0, false, err
	}
	if len(h) == 0 {
		return m, 0, false, nil
	}
	m, tick, err = mirrorFromHash(h)
	if err != nil {
		return m, 0, false, fmt.Errorf("nodecache %s: %w", id, err)
	}
	return m, tick, true, nil
}

func (s *Store) NodeIDs(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, s.IndexKey()).Result()
}

// Reset deletes every cached node, e.g. before seeding from a freshly loaded world.
func (s *Store) Reset(ctx context.Context) error {
	ids, err := s.NodeIDs(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.NodeKey(id))
	}
	keys = append(keys, s.IndexKey())
	return s.rdb.Del(ctx, keys...).Err()
}
