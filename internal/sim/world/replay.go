package world

import (
	"errors"
	"fmt"

	"riftminer.ai/internal/protocol"
	"riftminer.ai/internal/sim/access"
)

// ReplayAudit re-applies one recorded external mutation (place, remove or bin access) and
// returns the protocol code it produced, which callers compare against e.Code.
// Like StepOnce it must only be used while Run is not active.
func (w *World) ReplayAudit(e AuditEntry) (string, error) {
	if cur := w.tick.Load(); e.Tick != cur {
		return "", fmt.Errorf("audit tick %d does not match world tick %d", e.Tick, cur)
	}
	pos := FromArray(e.Pos)
	switch e.Action {
	case "PLACE":
		_, err := w.placeNode(e.Actor, pos)
		return codeFor(err), nil
	case "REMOVE":
		_, err := w.removeNode(e.Actor, pos)
		return codeFor(err), nil
	case protocol.OpPeek, protocol.OpInsert, protocol.OpExtract, protocol.OpInsertAny:
		side, err := access.ParseSide(e.Side)
		if err != nil {
			return "", fmt.Errorf("audit side: %w", err)
		}
		req := AccessRequest{
			Actor:    e.Actor,
			Pos:      pos,
			Side:     side,
			Op:       e.Action,
			Slot:     e.Slot,
			Count:    e.Requested,
			Simulate: e.Simulate,
		}
		if e.Stack != nil {
			req.Stack = e.Stack.Clone()
		}
		return w.applyAccess(req).Code, nil
	default:
		return "", fmt.Errorf("unknown audit action %q", e.Action)
	}
}

func codeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOccupied):
		return protocol.ErrConflict
	case errors.Is(err, ErrNoNode):
		return protocol.ErrNoNode
	default:
		return protocol.ErrInternal
	}
}
