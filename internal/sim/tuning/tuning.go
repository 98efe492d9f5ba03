package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Miner Miner `yaml:"miner"`
}

type Miner struct {
	DefaultCycleTicks int `yaml:"default_cycle_ticks"`
	DefaultRolls      int `yaml:"default_rolls"`
	SyncEveryTicks    int `yaml:"sync_every_ticks"`
	OutputSlots       int `yaml:"output_slots"`
	DefaultMaxStack   int `yaml:"default_max_stack"`

	// RestrictInputs makes the input bin refuse items without a miner recipe.
	RestrictInputs bool `yaml:"restrict_inputs"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		SnapshotEveryTicks: 1200,
		Miner: Miner{
			DefaultCycleTicks: 400,
			DefaultRolls:      1,
			SyncEveryTicks:    10,
			OutputSlots:       9,
			DefaultMaxStack:   64,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects negative values and fills zero values from Defaults.
func (t *Tuning) Validate() error {
	d := Defaults()
	fields := []struct {
		name string
		v    *int
		def  int
	}{
		{"tick_rate_hz", &t.TickRateHz, d.TickRateHz},
		{"snapshot_every_ticks", &t.SnapshotEveryTicks, d.SnapshotEveryTicks},
		{"miner.default_cycle_ticks", &t.Miner.DefaultCycleTicks, d.Miner.DefaultCycleTicks},
		{"miner.default_rolls", &t.Miner.DefaultRolls, d.Miner.DefaultRolls},
		{"miner.sync_every_ticks", &t.Miner.SyncEveryTicks, d.Miner.SyncEveryTicks},
		{"miner.output_slots", &t.Miner.OutputSlots, d.Miner.OutputSlots},
		{"miner.default_max_stack", &t.Miner.DefaultMaxStack, d.Miner.DefaultMaxStack},
	}
	for _, f := range fields {
		if *f.v < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", f.name, *f.v)
		}
		if *f.v == 0 {
			*f.v = f.def
		}
	}
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	return nil
}
