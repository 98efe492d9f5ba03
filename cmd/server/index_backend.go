package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"riftminer.ai/internal/persistence/indexdb"
	"riftminer.ai/internal/persistence/snapshot"
	"riftminer.ai/internal/sim/catalogs"
	"riftminer.ai/internal/sim/tuning"
	"riftminer.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSnapshotState(snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RIFTMINER_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Printf("index backend: sqlite %s", dbPath)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported RIFTMINER_INDEX_BACKEND: %s", backend)
	}
}
