package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"riftminer.ai/internal/protocol"
)

// hopper keeps one rift miner fed and pulls its outputs, the way an automated hopper would.
type hopper struct {
	conn *websocket.Conn
	log  *log.Logger

	sessionID string
	pos       [3]int
	shard     string
	drainSide string

	inserted int
	drained  int
}

func newHopper(conn *websocket.Conn, name string, logger *log.Logger) (*hopper, error) {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return nil, fmt.Errorf("send HELLO: %w", err)
	}
	var welcome protocol.WelcomeMsg
	if err := readJSON(conn, &welcome); err != nil {
		return nil, err
	}
	if welcome.Type != protocol.TypeWelcome {
		return nil, fmt.Errorf("expected WELCOME, got %q", welcome.Type)
	}
	if logger != nil {
		logger.Printf("WELCOME session=%s world=%s tick_rate=%d recipes=%s", welcome.SessionID, welcome.WorldID, welcome.TickRateHz, welcome.Catalogs.MinerRecipesDigest)
	}
	return &hopper{conn: conn, log: logger, sessionID: welcome.SessionID, drainSide: "DOWN"}, nil
}

func (h *hopper) call(msg protocol.AccessMsg) (protocol.AccessResultMsg, error) {
	msg.Type = protocol.TypeAccess
	msg.ProtocolVersion = protocol.Version
	msg.ReqID = uuid.NewString()
	msg.Pos = h.pos
	if err := h.conn.WriteJSON(msg); err != nil {
		return protocol.AccessResultMsg{}, err
	}
	var res protocol.AccessResultMsg
	if err := readJSON(h.conn, &res); err != nil {
		return res, err
	}
	if res.ReqID != msg.ReqID {
		return res, fmt.Errorf("req_id mismatch: sent %s got %s", msg.ReqID, res.ReqID)
	}
	return res, nil
}

// round refills the input when empty and extracts every non-empty output slot.
// Access errors such as a missing node are logged, not returned.
func (h *hopper) round() error {
	if h.shard != "" {
		res, err := h.call(protocol.AccessMsg{Side: "UP", Op: protocol.OpPeek})
		if err != nil {
			return err
		}
		if !res.OK {
			h.logf("peek input: %s %s", res.Code, res.Message)
			return nil
		}
		if len(res.Slots) == 0 || res.Slots[0].Count == 0 {
			ins, err := h.call(protocol.AccessMsg{Side: "UP", Op: protocol.OpInsert, Stack: &protocol.StackMsg{Item: h.shard, Count: 1}})
			if err != nil {
				return err
			}
			if ins.OK && ins.Moved != nil {
				h.inserted += ins.Moved.Count
				h.logf("inserted %s at tick %d", h.shard, ins.Tick)
			} else {
				h.logf("insert: %s %s", ins.Code, ins.Message)
			}
		}
	}

	res, err := h.call(protocol.AccessMsg{Side: h.drainSide, Op: protocol.OpPeek})
	if err != nil {
		return err
	}
	if !res.OK {
		h.logf("peek output: %s %s", res.Code, res.Message)
		return nil
	}
	for slot, st := range res.Slots {
		if st.Count == 0 {
			continue
		}
		ext, err := h.call(protocol.AccessMsg{Side: h.drainSide, Op: protocol.OpExtract, Slot: slot, Count: st.Count})
		if err != nil {
			return err
		}
		if ext.OK && ext.Moved != nil {
			h.drained += ext.Moved.Count
			h.logf("extracted %dx %s from slot %d", ext.Moved.Count, ext.Moved.Item, slot)
		}
	}
	return nil
}

func (h *hopper) logf(format string, args ...any) {
	if h.log != nil {
		h.log.Printf(format, args...)
	}
}

func readJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
