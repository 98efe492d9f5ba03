package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"riftminer.ai/internal/persistence/snapshot"
	"riftminer.ai/internal/sim/catalogs"
	"riftminer.ai/internal/sim/node"
	"riftminer.ai/internal/sim/tuning"
	"riftminer.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (optional; without it replay starts from a fresh world)")
		worldDir  = flag.String("world_dir", "", "world data dir containing cycles/ and audit/ logs (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		worldID   = flag.String("world", "world_1", "world id (fresh replays only)")
		seed      = flag.Int64("seed", 1337, "world seed (fresh replays only)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		dump      = flag.Bool("json", false, "print the snapshot as JSON and exit")
	)
	flag.Parse()

	if *snapPath == "" && *worldDir == "" {
		fmt.Fprintln(os.Stderr, "need -snapshot and/or -world_dir")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	cfg := world.WorldConfig{
		ID:         *worldID,
		TickRateHz: tune.TickRateHz,
		Seed:       *seed,
		Miner: node.Config{
			DefaultCycleTicks: tune.Miner.DefaultCycleTicks,
			DefaultRolls:      tune.Miner.DefaultRolls,
			SyncEveryTicks:    tune.Miner.SyncEveryTicks,
			OutputSlots:       tune.Miner.OutputSlots,
		},
		DefaultMaxStack: tune.Miner.DefaultMaxStack,
		RestrictInputs:  tune.Miner.RestrictInputs,
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if *dump {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(s)
			return
		}
		running := 0
		for _, n := range s.Nodes {
			if n.CycleTimeRemaining > 0 {
				running++
			}
		}
		fmt.Printf("snapshot v%d world=%s tick=%d seed=%d rng_draws=%d nodes=%d running=%d\n",
			s.Header.Version, s.Header.WorldID, s.Header.Tick, s.Seed, s.RngDraws, len(s.Nodes), running)
		cfg.ID, cfg.Seed = s.Header.WorldID, s.Seed
		if s.TickRate > 0 {
			cfg.TickRateHz = s.TickRate
		}
		snap = &s
	}
	if *worldDir == "" {
		return
	}

	w, err := world.New(cfg, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
	}

	startTick := w.CurrentTick()
	res, err := replayDir(w, *worldDir, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d cycle ticks, applied=%d accesses (from tick=%d to tick=%d)\n",
		res.Checked, res.Applied, startTick, w.CurrentTick())
}
