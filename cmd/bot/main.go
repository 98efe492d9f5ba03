package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/access", "access ws url")
		name     = flag.String("name", "hopper", "client name")
		pos      = flag.String("pos", "0,64,0", "rift miner position x,y,z")
		shard    = flag.String("shard", "IRON_SHARD", "item to keep in the input bin (empty to only drain)")
		side     = flag.String("side", "DOWN", "side to drain outputs from")
		interval = flag.Duration("interval", 2*time.Second, "poll interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	p, err := parsePos(*pos)
	if err != nil {
		logger.Fatalf("bad -pos: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	h, err := newHopper(conn, *name, logger)
	if err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	h.pos, h.shard, h.drainSide = p, *shard, *side

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		if err := h.round(); err != nil {
			logger.Printf("round: %v", err)
			return
		}
		select {
		case <-stop:
			logger.Printf("drained %d items in total", h.drained)
			return
		case <-ticker.C:
		}
	}
}

func parsePos(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, strconv.ErrSyntax
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
