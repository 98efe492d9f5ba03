package world

import (
	"encoding/json"

	"riftminer.ai/internal/observerproto"
)

// ObserverJoinRequest registers a read-only observer session that receives NODE_SYNC and
// NODE_REMOVED messages on Out. All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte

	// Optional node id filter; empty means every node.
	NodeIDs []string
}

// ObserverSubscribeRequest replaces the node filter of an existing session.
type ObserverSubscribeRequest struct {
	SessionID string
	NodeIDs   []string
}

type observerClient struct {
	id     string
	out    chan []byte
	filter map[string]bool

	// needsFull is set when a message could not be queued. Deltas are withheld until a
	// full NODE_SYNC gets through.
	needsFull bool
}

func (c *observerClient) wants(id string) bool { return len(c.filter) == 0 || c.filter[id] }

func filterSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = true
		}
	}
	return m
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if w == nil || req.SessionID == "" || req.Out == nil {
		return
	}
	// Replace existing session id if any.
	if old := w.observers[req.SessionID]; old != nil {
		close(old.out)
	}
	c := &observerClient{id: req.SessionID, out: req.Out, filter: filterSet(req.NodeIDs)}
	w.observers[req.SessionID] = c

	// Late joiners get the current timers of every node they watch.
	w.sendFull(c, w.tick.Load())
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.filter = filterSet(req.NodeIDs)
	// Newly watched nodes may be idle and never sync on their own.
	c.needsFull = true
}

func (w *World) handleObserverLeave(sessionID string) {
	if sessionID == "" {
		return
	}
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.out)
}

// broadcastSync runs once per tick. Observers that missed a message get a full resync
// instead of this tick's delta.
func (w *World) broadcastSync(tick uint64, nodes []NodeMirror) {
	for _, c := range w.observers {
		if c.needsFull {
			w.sendFull(c, tick)
			continue
		}
		if len(nodes) > 0 {
			w.sendSync(c, tick, nodes, false)
		}
	}
}

func (w *World) sendFull(c *observerClient, tick uint64) {
	all := make([]NodeMirror, 0, len(w.order))
	for _, pos := range w.order {
		all = append(all, w.mirrorOf(pos, w.nodes[pos]))
	}
	w.sendSync(c, tick, all, true)
}

func (w *World) sendSync(c *observerClient, tick uint64, nodes []NodeMirror, full bool) {
	msg := observerproto.NodeSyncMsg{
		Type:            observerproto.TypeNodeSync,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Full:            full,
		Nodes:           make([]observerproto.NodeState, 0, len(nodes)),
	}
	for _, m := range nodes {
		if !c.wants(m.ID) {
			continue
		}
		msg.Nodes = append(msg.Nodes, observerproto.NodeState(m))
	}
	if len(msg.Nodes) == 0 && !full {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if trySend(c.out, b) {
		if full {
			c.needsFull = false
		}
		return
	}
	c.needsFull = true
}

func (w *World) broadcastRemoved(tick uint64, id string, pos Vec3i) {
	if len(w.observers) == 0 {
		return
	}
	b, err := json.Marshal(removedMsg(tick, id, pos))
	if err != nil {
		return
	}
	for _, c := range w.observers {
		// A pending full resync already omits the node.
		if c.needsFull || !c.wants(id) {
			continue
		}
		if !trySend(c.out, b) {
			c.needsFull = true
		}
	}
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
