// Package item holds the resource unit shared by the bins, the reward table and the node.
package item

import "maps"

// Metadata keys read by the rift miner when a cycle starts.
const (
	MetaMaxCycleTicks = "max_cycle_ticks"
	MetaRollsPerCycle = "rolls_per_cycle"
)

// Stack is one typed, countable, optionally damageable unit.
// MaxDurability == 0 means the item does not take damage.
type Stack struct {
	Item          string         `json:"item"`
	Count         int            `json:"count"`
	Durability    int            `json:"durability,omitempty"`
	MaxDurability int            `json:"max_durability,omitempty"`
	Meta          map[string]int `json:"meta,omitempty"`
}

func (s Stack) IsEmpty() bool { return s.Item == "" || s.Count <= 0 }

// Identity is the resource type of a non-empty stack, "" otherwise.
func (s Stack) Identity() string {
	if s.IsEmpty() {
		return ""
	}
	return s.Item
}

func (s Stack) Damageable() bool { return s.MaxDurability > 0 }

// Clone returns a deep copy. Empty metadata is normalised to nil.
func (s Stack) Clone() Stack {
	out := s
	if len(s.Meta) == 0 {
		out.Meta = nil
	} else {
		out.Meta = maps.Clone(s.Meta)
	}
	return out
}

// WithCount returns a copy holding n units.
func (s Stack) WithCount(n int) Stack {
	out := s.Clone()
	out.Count = n
	if n <= 0 {
		return Stack{}
	}
	return out
}

func (s Stack) MetaInt(key string) int {
	if s.Meta == nil {
		return 0
	}
	return s.Meta[key]
}

// CanStackWith reports whether o may merge into s.
func (s Stack) CanStackWith(o Stack) bool {
	if s.IsEmpty() || o.IsEmpty() {
		return false
	}
	if s.Item != o.Item || s.Durability != o.Durability || s.MaxDurability != o.MaxDurability {
		return false
	}
	if len(s.Meta) != len(o.Meta) {
		return false
	}
	return maps.Equal(s.Meta, o.Meta)
}

// New builds a fresh stack; damageable items start at full durability.
func New(id string, count, maxDurability int) Stack {
	if id == "" || count <= 0 {
		return Stack{}
	}
	return Stack{Item: id, Count: count, Durability: maxDurability, MaxDurability: maxDurability}
}
