// Package bins implements the rift miner's single-slot input bin and multi-slot output bin.
package bins

import (
	"errors"

	"riftminer.ai/internal/sim/item"
)

var ErrBadSlot = errors.New("bins: slot out of range")

const DefaultMaxStack = 64

// StackLimit returns the largest count one slot may hold for a stack like s.
type StackLimit func(s item.Stack) int

// DefaultStackLimit keeps damageable items unstacked.
func DefaultStackLimit(s item.Stack) int {
	if s.Damageable() {
		return 1
	}
	return DefaultMaxStack
}

// InsertResult reports how much of an insert landed. Remainder > 0 is not an error.
type InsertResult struct {
	Accepted  int `json:"accepted"`
	Remainder int `json:"remainder"`
}

// insertInto merges s into slot and returns the remainder. slot is updated unless simulate.
func insertInto(slot *item.Stack, s item.Stack, limit StackLimit, simulate bool) item.Stack {
	if s.IsEmpty() {
		return item.Stack{}
	}
	most := limit(s)
	if most <= 0 {
		return s
	}
	if slot.IsEmpty() {
		n := min(s.Count, most)
		if !simulate {
			*slot = s.WithCount(n)
		}
		return s.WithCount(s.Count - n)
	}
	if !slot.CanStackWith(s) {
		return s
	}
	room := most - slot.Count
	if room <= 0 {
		return s
	}
	n := min(room, s.Count)
	if !simulate {
		slot.Count += n
	}
	return s.WithCount(s.Count - n)
}

func extractFrom(slot *item.Stack, n int, simulate bool) item.Stack {
	if slot.IsEmpty() || n <= 0 {
		return item.Stack{}
	}
	n = min(n, slot.Count)
	out := slot.WithCount(n)
	if !simulate {
		if n == slot.Count {
			*slot = item.Stack{}
		} else {
			slot.Count -= n
		}
	}
	return out
}

// InputBin holds at most one stack.
type InputBin struct {
	slot    item.Stack
	accept  func(id string) bool
	limit   StackLimit
	changed bool
}

// NewInputBin builds an input bin. A nil accept filter admits any identity.
func NewInputBin(accept func(id string) bool, limit StackLimit) *InputBin {
	if limit == nil {
		limit = DefaultStackLimit
	}
	return &InputBin{accept: accept, limit: limit}
}

func (b *InputBin) Peek() (item.Stack, bool) {
	if b.slot.IsEmpty() {
		return item.Stack{}, false
	}
	return b.slot.Clone(), true
}

// Identity is the identity of the physical input, "" when empty.
func (b *InputBin) Identity() string { return b.slot.Identity() }

// Accepts reports whether the filter admits the identity.
func (b *InputBin) Accepts(id string) bool {
	if id == "" {
		return false
	}
	return b.accept == nil || b.accept(id)
}

// Set replaces the slot contents without filtering.
func (b *InputBin) Set(s item.Stack) {
	if s.IsEmpty() {
		s = item.Stack{}
	} else {
		s = s.Clone()
	}
	b.slot = s
	b.changed = true
}

// Insert returns the part of s that did not fit.
func (b *InputBin) Insert(s item.Stack, simulate bool) item.Stack {
	if s.IsEmpty() {
		return item.Stack{}
	}
	if !b.Accepts(s.Item) {
		return s.Clone()
	}
	rem := insertInto(&b.slot, s, b.limit, simulate)
	if !simulate && rem.Count != s.Count {
		b.changed = true
	}
	return rem
}

func (b *InputBin) Extract(n int, simulate bool) item.Stack {
	out := extractFrom(&b.slot, n, simulate)
	if !simulate && !out.IsEmpty() {
		b.changed = true
	}
	return out
}

// TakeDamageOrShrink wears the input. When durability reaches zero one unit is consumed and
// the rest return to full durability. Empty or non-damageable input is left alone.
func (b *InputBin) TakeDamageOrShrink(amount int) {
	if amount <= 0 || b.slot.IsEmpty() || !b.slot.Damageable() {
		return
	}
	b.slot.Durability -= amount
	if b.slot.Durability <= 0 {
		b.slot.Count--
		b.slot.Durability = b.slot.MaxDurability
		if b.slot.Count <= 0 {
			b.slot = item.Stack{}
		}
	}
	b.changed = true
}

func (b *InputBin) ContentsChanged() bool { return b.changed }
func (b *InputBin) ClearChanged()         { b.changed = false }

// OutputBin is a fixed number of slots.
type OutputBin struct {
	slots   []item.Stack
	limit   StackLimit
	changed bool
}

func NewOutputBin(n int, limit StackLimit) *OutputBin {
	if n <= 0 {
		n = 9
	}
	if limit == nil {
		limit = DefaultStackLimit
	}
	return &OutputBin{slots: make([]item.Stack, n), limit: limit}
}

func (b *OutputBin) Slots() int { return len(b.slots) }

func (b *OutputBin) Slot(i int) (item.Stack, error) {
	if i < 0 || i >= len(b.slots) {
		return item.Stack{}, ErrBadSlot
	}
	return b.slots[i].Clone(), nil
}

// Contents returns a copy of every slot, empty ones included.
func (b *OutputBin) Contents() []item.Stack {
	out := make([]item.Stack, len(b.slots))
	for i, s := range b.slots {
		if !s.IsEmpty() {
			out[i] = s.Clone()
		}
	}
	return out
}

func (b *OutputBin) Set(i int, s item.Stack) error {
	if i < 0 || i >= len(b.slots) {
		return ErrBadSlot
	}
	if s.IsEmpty() {
		s = item.Stack{}
	} else {
		s = s.Clone()
	}
	b.slots[i] = s
	b.changed = true
	return nil
}

func (b *OutputBin) InsertAt(i int, s item.Stack, simulate bool) (item.Stack, error) {
	if i < 0 || i >= len(b.slots) {
		return s, ErrBadSlot
	}
	rem := insertInto(&b.slots[i], s, b.limit, simulate)
	if !simulate && rem.Count != s.Count {
		b.changed = true
	}
	return rem, nil
}

func (b *OutputBin) ExtractAt(i, n int, simulate bool) (item.Stack, error) {
	if i < 0 || i >= len(b.slots) {
		return item.Stack{}, ErrBadSlot
	}
	out := extractFrom(&b.slots[i], n, simulate)
	if !simulate && !out.IsEmpty() {
		b.changed = true
	}
	return out, nil
}

// TryInsert tops up matching stacks first, then fills empty slots.
func (b *OutputBin) TryInsert(s item.Stack) InsertResult {
	if s.IsEmpty() {
		return InsertResult{}
	}
	rem := s.Clone()
	for i := range b.slots {
		if rem.IsEmpty() {
			break
		}
		if b.slots[i].IsEmpty() {
			continue
		}
		rem = insertInto(&b.slots[i], rem, b.limit, false)
	}
	for i := range b.slots {
		if rem.IsEmpty() {
			break
		}
		if !b.slots[i].IsEmpty() {
			continue
		}
		rem = insertInto(&b.slots[i], rem, b.limit, false)
	}
	left := 0
	if !rem.IsEmpty() {
		left = rem.Count
	}
	res := InsertResult{Accepted: s.Count - left, Remainder: left}
	if res.Accepted > 0 {
		b.changed = true
	}
	return res
}

func (b *OutputBin) ContentsChanged() bool { return b.changed }
func (b *OutputBin) ClearChanged()         { b.changed = false }
