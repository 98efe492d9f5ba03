package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"riftminer.ai/internal/sim/world"
)

type nodeRequest struct {
	Pos   [3]int `json:"pos"`
	Actor string `json:"actor,omitempty"`
}

func decodeNodeRequest(rw http.ResponseWriter, r *http.Request) (nodeRequest, bool) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return nodeRequest{}, false
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return nodeRequest{}, false
	}
	var req nodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&req); err != nil {
		writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json"})
		return nodeRequest{}, false
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}
	return req, true
}

func placeHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		req, ok := decodeNodeRequest(rw, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		id, err := w.Place(ctx, req.Actor, world.FromArray(req.Pos))
		if err != nil {
			writeJSONStatus(rw, statusFor(err), map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true, "id": id})
	}
}

func removeHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		req, ok := decodeNodeRequest(rw, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		rn, err := w.Remove(ctx, req.Actor, world.FromArray(req.Pos))
		if err != nil {
			writeJSONStatus(rw, statusFor(err), map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true, "node": rn})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, world.ErrNoNode):
		return http.StatusNotFound
	case errors.Is(err, world.ErrOccupied):
		return http.StatusConflict
	case errors.Is(err, world.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSONStatus(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
