// Package ws serves the automation access endpoint: a HELLO/WELCOME handshake followed by
// ACCESS requests, each answered with exactly one ACCESS_RESULT.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"riftminer.ai/internal/protocol"
	"riftminer.ai/internal/sim/access"
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader

	// AccessTimeout bounds how long one request may wait for the world loop.
	AccessTimeout time.Duration
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		AccessTimeout: 2 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, actor := s.handshake(conn)
		if sessionID == "" {
			return
		}
		if s.log != nil {
			s.log.Printf("access session %s (%s) from %s", sessionID, actor, r.RemoteAddr)
		}

		// Requests are answered in order on this goroutine; the world loop serialises them
		// against ticks.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			resp := s.handleMessage(r.Context(), actor, msg)
			if err := writeJSON(conn, resp); err != nil {
				break
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID, actor string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", ""
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	sessionID = uuid.NewString()
	if err := writeJSON(conn, s.welcome(sessionID)); err != nil {
		return "", ""
	}
	return sessionID, hello.ClientName + "/" + sessionID[:8]
}

func (s *Server) welcome(sessionID string) protocol.WelcomeMsg {
	cfg := s.world.Config()
	msg := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         cfg.ID,
		TickRateHz:      cfg.TickRateHz,
	}
	if cats := s.world.Catalogs(); cats != nil {
		msg.Catalogs = protocol.CatalogDigests{
			ItemPalette:        protocol.DigestRef{Digest: cats.Items.PaletteDigest, Count: len(cats.Items.Palette)},
			ItemsDigest:        cats.Items.DefsDigest,
			MinerRecipesDigest: cats.MinerRecipes.Digest,
		}
	}
	return msg
}

func (s *Server) handleMessage(ctx context.Context, actor string, msg []byte) protocol.AccessResultMsg {
	out := protocol.AccessResultMsg{
		Type:            protocol.TypeAccessResult,
		ProtocolVersion: protocol.Version,
	}
	fail := func(code, message string) protocol.AccessResultMsg {
		out.Code, out.Message = code, message
		return out
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fail(protocol.ErrProtoBadRequest, "invalid json")
	}
	if base.Type != protocol.TypeAccess {
		return fail(protocol.ErrProtoBadRequest, "expected ACCESS")
	}
	var am protocol.AccessMsg
	if err := json.Unmarshal(msg, &am); err != nil {
		return fail(protocol.ErrProtoBadRequest, "invalid ACCESS")
	}
	out.ReqID = am.ReqID
	if am.ProtocolVersion != protocol.Version {
		return fail(protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	side, err := access.ParseSide(am.Side)
	if err != nil {
		return fail(protocol.ErrBadRequest, err.Error())
	}

	req := world.AccessRequest{
		Actor:    actor,
		Pos:      world.FromArray(am.Pos),
		Side:     side,
		Op:       am.Op,
		Slot:     am.Slot,
		Count:    am.Count,
		Simulate: am.Simulate,
	}
	if am.Stack != nil {
		req.Stack = s.resolveStack(*am.Stack)
	}

	ctx, cancel := context.WithTimeout(ctx, s.AccessTimeout)
	defer cancel()
	res := s.world.Access(ctx, req)

	out.Tick = res.Tick
	out.NodeID = res.NodeID
	out.View = res.View
	out.Code = res.Code
	out.OK = res.Code == ""
	if res.Err != nil {
		out.Message = res.Err.Error()
	}
	if res.Slots != nil {
		out.Slots = make([]protocol.StackMsg, 0, len(res.Slots))
		for _, st := range res.Slots {
			out.Slots = append(out.Slots, StackToMsg(st))
		}
	}
	if !res.Moved.IsEmpty() {
		m := StackToMsg(res.Moved)
		out.Moved = &m
	}
	if !res.Remainder.IsEmpty() {
		m := StackToMsg(res.Remainder)
		out.Remainder = &m
	}
	return out
}

// resolveStack fills durability the client left out from the item catalog, so a bare
// {"item":"IRON_SHARD","count":1} arrives as a fresh shard.
func (s *Server) resolveStack(m protocol.StackMsg) item.Stack {
	st := StackFromMsg(m)
	cats := s.world.Catalogs()
	if cats == nil || st.MaxDurability != 0 {
		return st
	}
	if fresh := cats.Items.NewStack(st.Item, st.Count); fresh.Damageable() {
		st.MaxDurability = fresh.MaxDurability
		if st.Durability <= 0 {
			st.Durability = fresh.Durability
		}
	}
	return st
}

func StackFromMsg(m protocol.StackMsg) item.Stack {
	return item.Stack{
		Item:          m.Item,
		Count:         m.Count,
		Durability:    m.Durability,
		MaxDurability: m.MaxDurability,
		Meta:          maps.Clone(m.Meta),
	}
}

func StackToMsg(s item.Stack) protocol.StackMsg {
	if s.IsEmpty() {
		return protocol.StackMsg{}
	}
	c := s.Clone()
	return protocol.StackMsg{
		Item:          c.Item,
		Count:         c.Count,
		Durability:    c.Durability,
		MaxDurability: c.MaxDurability,
		Meta:          c.Meta,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
