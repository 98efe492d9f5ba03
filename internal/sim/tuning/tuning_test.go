package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoTuning(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults: %+v", tu)
	}
}

func TestLoad_FillsMissingFromDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 5\nminer:\n  default_cycle_ticks: 40\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 5 || tu.Miner.DefaultCycleTicks != 40 {
		t.Fatalf("overrides lost: %+v", tu)
	}
	if tu.Miner.SyncEveryTicks != 10 || tu.Miner.OutputSlots != 9 || tu.SnapshotEveryTicks != 1200 {
		t.Fatalf("defaults not applied: %+v", tu)
	}
}

func TestValidate_RejectsNegative(t *testing.T) {
	tu := Defaults()
	tu.Miner.OutputSlots = -1
	if err := tu.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("miner: [1, 2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}
