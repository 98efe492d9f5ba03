package world

import (
	"context"
	"errors"
	"fmt"

	"riftminer.ai/internal/observerproto"
	"riftminer.ai/internal/protocol"
	"riftminer.ai/internal/sim/item"
)

var (
	ErrNoNode   = errors.New("no node at position")
	ErrOccupied = errors.New("position already has a node")
	ErrBusy     = errors.New("world busy")
)

// RemovedNode carries the contents of a node that left the world.
type RemovedNode struct {
	ID     string       `json:"id"`
	Pos    Vec3i        `json:"pos"`
	Input  item.Stack   `json:"input"`
	Output []item.Stack `json:"output"`
}

type placeReq struct {
	Actor string
	Pos   Vec3i
	Resp  chan placeResp
}

type placeResp struct {
	ID  string
	Err error
}

type removeReq struct {
	Actor string
	Pos   Vec3i
	Resp  chan removeResp
}

type removeResp struct {
	Node RemovedNode
	Err  error
}

// Place asks the world loop to create an idle node at pos.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) Place(ctx context.Context, actor string, pos Vec3i) (string, error) {
	resp := make(chan placeResp, 1)
	select {
	case w.place <- placeReq{Actor: actor, Pos: pos, Resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", ErrBusy
	}
	select {
	case r := <-resp:
		return r.ID, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Remove asks the world loop to take the node at pos out of the world. Views obtained before
// removal fail with access.ErrRevoked; the node's contents are returned to the caller.
func (w *World) Remove(ctx context.Context, actor string, pos Vec3i) (RemovedNode, error) {
	resp := make(chan removeResp, 1)
	select {
	case w.remove <- removeReq{Actor: actor, Pos: pos, Resp: resp}:
	case <-ctx.Done():
		return RemovedNode{}, ctx.Err()
	default:
		return RemovedNode{}, ErrBusy
	}
	select {
	case r := <-resp:
		return r.Node, r.Err
	case <-ctx.Done():
		return RemovedNode{}, ctx.Err()
	}
}

func (w *World) handlePlace(req placeReq) {
	id, err := w.placeNode(req.Actor, req.Pos)
	if req.Resp != nil {
		req.Resp <- placeResp{ID: id, Err: err}
	}
}

func (w *World) handleRemove(req removeReq) {
	rn, err := w.removeNode(req.Actor, req.Pos)
	if req.Resp != nil {
		req.Resp <- removeResp{Node: rn, Err: err}
	}
}

func (w *World) placeNode(actor string, pos Vec3i) (string, error) {
	nowTick := w.tick.Load()
	id := NodeID(pos)
	if _, ok := w.nodes[pos]; ok {
		w.audit(AuditEntry{Tick: nowTick, Actor: actor, Action: "PLACE", NodeID: id, Pos: pos.Array(), Code: protocol.ErrConflict})
		return "", fmt.Errorf("%s: %w", id, ErrOccupied)
	}
	n := w.newNode(pos)
	w.addNode(pos, n)
	w.changedSinceSnapshot = true
	w.audit(AuditEntry{Tick: nowTick, Actor: actor, Action: "PLACE", NodeID: id, Pos: pos.Array()})
	w.publishNodeStates()
	w.logf("placed %s", id)
	return id, nil
}

func (w *World) removeNode(actor string, pos Vec3i) (RemovedNode, error) {
	nowTick := w.tick.Load()
	n := w.nodes[pos]
	if n == nil {
		w.audit(AuditEntry{Tick: nowTick, Actor: actor, Action: "REMOVE", NodeID: NodeID(pos), Pos: pos.Array(), Code: protocol.ErrNoNode})
		return RemovedNode{}, fmt.Errorf("%s: %w", NodeID(pos), ErrNoNode)
	}
	n.Remove()
	w.dropNode(pos)
	w.changedSinceSnapshot = true

	rn := RemovedNode{ID: n.ID(), Pos: pos, Input: n.Input(), Output: n.Output()}
	w.audit(AuditEntry{Tick: nowTick, Actor: actor, Action: "REMOVE", NodeID: n.ID(), Pos: pos.Array()})
	w.broadcastRemoved(nowTick, n.ID(), pos)
	if w.mirror != nil {
		w.mirror.PublishRemoved(nowTick, n.ID())
	}
	w.publishNodeStates()
	w.logf("removed %s", n.ID())
	return rn, nil
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger != nil {
		_ = w.auditLogger.WriteAudit(e)
	}
}

func removedMsg(tick uint64, id string, pos Vec3i) observerproto.NodeRemovedMsg {
	return observerproto.NodeRemovedMsg{
		Type:            observerproto.TypeNodeRemoved,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		ID:              id,
		Pos:             pos.Array(),
	}
}
