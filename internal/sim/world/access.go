package world

import (
	"context"
	"errors"
	"fmt"

	"riftminer.ai/internal/protocol"
	"riftminer.ai/internal/sim/access"
	"riftminer.ai/internal/sim/bins"
	"riftminer.ai/internal/sim/item"
)

// AccessRequest is one automation access against the node at Pos, approaching from Side.
// Op is one of protocol.OpPeek, OpInsert, OpExtract, OpInsertAny.
type AccessRequest struct {
	Actor    string
	Pos      Vec3i
	Side     access.Side
	Op       string
	Slot     int
	Count    int
	Stack    item.Stack
	Simulate bool
}

type AccessResult struct {
	Tick   uint64
	NodeID string
	View   string

	Slots     []item.Stack
	Moved     item.Stack
	Remainder item.Stack

	// Code is a protocol error code; empty on success.
	Code string
	Err  error
}

type accessReq struct {
	Req  AccessRequest
	Resp chan AccessResult
}

// Access runs req on the world loop goroutine and waits for the result.
func (w *World) Access(ctx context.Context, req AccessRequest) AccessResult {
	resp := make(chan AccessResult, 1)
	select {
	case w.access <- accessReq{Req: req, Resp: resp}:
	case <-ctx.Done():
		return AccessResult{Code: protocol.ErrWorldBusy, Err: ctx.Err()}
	default:
		return AccessResult{Code: protocol.ErrWorldBusy, Err: ErrBusy}
	}
	select {
	case r := <-resp:
		return r
	case <-ctx.Done():
		return AccessResult{Code: protocol.ErrWorldBusy, Err: ctx.Err()}
	}
}

func (w *World) handleAccess(req accessReq) {
	res := w.applyAccess(req.Req)
	if req.Resp != nil {
		req.Resp <- res
	}
}

// applyAccess routes a fresh view for every request; views never outlive the call.
func (w *World) applyAccess(req AccessRequest) (res AccessResult) {
	res = AccessResult{Tick: w.tick.Load(), NodeID: NodeID(req.Pos)}
	defer func() {
		e := AuditEntry{
			Tick:     res.Tick,
			Actor:    req.Actor,
			Action:   req.Op,
			NodeID:   res.NodeID,
			Pos:      req.Pos.Array(),
			Side:     req.Side.String(),
			Slot:     req.Slot,
			Item:     res.Moved.Item,
			Count:    res.Moved.Count,
			Simulate: req.Simulate,
			Code:     res.Code,
		}
		switch req.Op {
		case protocol.OpPeek:
			e.Item, e.Count = "", 0
		case protocol.OpInsert, protocol.OpInsertAny:
			if !req.Stack.IsEmpty() {
				st := req.Stack.Clone()
				e.Stack = &st
			}
		case protocol.OpExtract:
			e.Requested = req.Count
		}
		w.audit(e)
	}()

	n := w.nodes[req.Pos]
	if n == nil {
		res.Code, res.Err = protocol.ErrNoNode, fmt.Errorf("%s: %w", res.NodeID, ErrNoNode)
		return res
	}
	view := n.Access(req.Side)
	res.View = view.Kind().String()

	var err error
	switch req.Op {
	case protocol.OpPeek:
		res.Slots = make([]item.Stack, 0, view.Slots())
		for i := 0; i < view.Slots(); i++ {
			var s item.Stack
			if s, err = view.Stack(i); err != nil {
				break
			}
			res.Slots = append(res.Slots, s)
		}
	case protocol.OpInsert:
		if req.Stack.IsEmpty() {
			return badRequest(res, "insert needs a stack")
		}
		var rem item.Stack
		rem, err = view.Insert(req.Slot, req.Stack, req.Simulate)
		if err == nil {
			res.Moved = req.Stack.WithCount(req.Stack.Count - max(rem.Count, 0))
			res.Remainder = rem
		}
	case protocol.OpExtract:
		if req.Count <= 0 {
			return badRequest(res, "extract needs a positive count")
		}
		res.Moved, err = view.Extract(req.Slot, req.Count, req.Simulate)
	case protocol.OpInsertAny:
		cv, ok := view.(*access.CombinedView)
		if !ok {
			return badRequest(res, "INSERT_ANY requires side NONE")
		}
		if req.Stack.IsEmpty() {
			return badRequest(res, "insert needs a stack")
		}
		if req.Simulate {
			return badRequest(res, "INSERT_ANY cannot be simulated")
		}
		var ir bins.InsertResult
		ir, err = cv.InsertAny(req.Stack)
		if err == nil {
			res.Moved = req.Stack.WithCount(ir.Accepted)
			res.Remainder = req.Stack.WithCount(ir.Remainder)
		}
	default:
		return badRequest(res, fmt.Sprintf("unknown op %q", req.Op))
	}

	if err != nil {
		res.Err = err
		switch {
		case errors.Is(err, access.ErrRevoked):
			res.Code = protocol.ErrRevoked
		case errors.Is(err, bins.ErrBadSlot):
			res.Code = protocol.ErrInvalidTarget
		default:
			res.Code = protocol.ErrInternal
		}
	}
	return res
}

func badRequest(res AccessResult, msg string) AccessResult {
	res.Code = protocol.ErrBadRequest
	res.Err = errors.New(msg)
	return res
}
