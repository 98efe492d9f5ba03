package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed int64 `json:"seed"`
	// RngDraws is how many values the world rng produced since seeding.
	RngDraws uint64 `json:"rng_draws,omitempty"`

	TickRate           int           `json:"tick_rate_hz"`
	SnapshotEveryTicks int           `json:"snapshot_every_ticks,omitempty"`
	Miner              MinerConfigV1 `json:"miner"`

	Nodes []NodeV1 `json:"nodes"`
}

// MinerConfigV1 captures the node configuration in effect when the snapshot was taken.
type MinerConfigV1 struct {
	DefaultCycleTicks int `json:"default_cycle_ticks"`
	DefaultRolls      int `json:"default_rolls"`
	SyncEveryTicks    int `json:"sync_every_ticks"`
	OutputSlots       int `json:"output_slots"`
}

// NodeV1 is the full durable state of one rift miner.
type NodeV1 struct {
	ID  string `json:"id"`
	Pos [3]int `json:"pos"`

	CycleTimeRemaining int    `json:"cycle_time_remaining"`
	CycleDuration      int    `json:"cycle_duration"`
	RollsPerCycle      int    `json:"rolls_per_cycle"`
	CurrentInput       string `json:"current_input,omitempty"`

	// CacheValid distinguishes "no cache" from a cached empty recipe.
	CacheValid       bool          `json:"cache_valid,omitempty"`
	CachedCandidates []CandidateV1 `json:"cached_candidates,omitempty"`

	InputHandler  BinV1 `json:"inputHandler"`
	OutputHandler BinV1 `json:"outputHandler"`
}

type BinV1 struct {
	Size  int      `json:"size"`
	Items []SlotV1 `json:"items,omitempty"`
}

type SlotV1 struct {
	Slot  int     `json:"slot"`
	Stack StackV1 `json:"stack"`
}

type StackV1 struct {
	Item          string         `json:"item"`
	Count         int            `json:"count"`
	Durability    int            `json:"durability,omitempty"`
	MaxDurability int            `json:"max_durability,omitempty"`
	Meta          map[string]int `json:"meta,omitempty"`
}

type CandidateV1 struct {
	Stack  StackV1 `json:"stack"`
	Weight int     `json:"weight"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is informational; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d: unsupported", snap.Header.Version)
	}
	return snap, nil
}
