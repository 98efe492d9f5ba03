package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "riftminer.ai/internal/persistence/log"
	"riftminer.ai/internal/sim/world"
)

type replayResult struct {
	Checked uint64
	Applied uint64
}

func listLogFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func readAudits(worldDir string, fromTick uint64) ([]world.AuditEntry, error) {
	files, err := listLogFiles(filepath.Join(worldDir, "audit"), "audit")
	if err != nil {
		return nil, err
	}
	var out []world.AuditEntry
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line json.RawMessage) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if e.Tick >= fromTick {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// replayDir re-applies the audit log to w and checks every cycle-log digest.
// Accesses recorded at tick T happened before tick T was stepped.
func replayDir(w *world.World, worldDir string, toTick uint64) (replayResult, error) {
	var res replayResult
	startTick := w.CurrentTick()

	audits, err := readAudits(worldDir, startTick)
	if err != nil {
		return res, err
	}
	files, err := listLogFiles(filepath.Join(worldDir, "cycles"), "cycles")
	if err != nil {
		return res, err
	}

	next := 0
	advanceTo := func(tick uint64) error {
		for {
			for next < len(audits) && audits[next].Tick == w.CurrentTick() {
				e := audits[next]
				code, err := w.ReplayAudit(e)
				if err != nil {
					return err
				}
				if code != e.Code {
					return fmt.Errorf("tick %d %s %v: code=%q want %q", e.Tick, e.Action, e.Pos, code, e.Code)
				}
				next++
				res.Applied++
			}
			if w.CurrentTick() >= tick {
				return nil
			}
			w.StepOnce()
		}
	}

	for _, path := range files {
		var stop bool
		err := persistlog.ReadJSONL(path, func(line json.RawMessage) error {
			if stop {
				return nil
			}
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				stop = true
				return nil
			}
			if err := advanceTo(entry.Tick); err != nil {
				return err
			}
			tick, digest := w.StepOnce()
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
			}
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
			res.Checked++
			return nil
		})
		if err != nil {
			return res, err
		}
		if stop {
			break
		}
	}
	return res, nil
}
