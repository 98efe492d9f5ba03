// Package rewards implements the weighted reward table a rift miner draws from.
package rewards

import (
	"errors"
	"fmt"

	"riftminer.ai/internal/sim/item"
)

var (
	ErrEmptyCandidateSet = errors.New("rewards: empty candidate set")
	ErrInvalidWeight     = errors.New("rewards: weight must be positive")
)

// Candidate is one possible output with its relative weight.
type Candidate struct {
	Template item.Stack `json:"template"`
	Weight   int        `json:"weight"`
}

// Rand is the uniform source used by Draw. *math/rand.Rand satisfies it.
type Rand interface {
	Int63n(n int64) int64
}

// Table is immutable once built.
type Table struct {
	candidates []Candidate
	cumulative []int64
	total      int64
}

// NewTable validates weights at construction so Draw never sees a bad entry.
// An empty slice yields an empty table.
func NewTable(cands []Candidate) (*Table, error) {
	t := &Table{
		candidates: make([]Candidate, 0, len(cands)),
		cumulative: make([]int64, 0, len(cands)),
	}
	for i, c := range cands {
		if c.Weight <= 0 {
			return nil, fmt.Errorf("candidate %d (%s) weight %d: %w", i, c.Template.Item, c.Weight, ErrInvalidWeight)
		}
		t.total += int64(c.Weight)
		t.candidates = append(t.candidates, Candidate{Template: c.Template.Clone(), Weight: c.Weight})
		t.cumulative = append(t.cumulative, t.total)
	}
	return t, nil
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.candidates)
}

func (t *Table) Total() int64 {
	if t == nil {
		return 0
	}
	return t.total
}

// Candidates returns a copy in construction order.
func (t *Table) Candidates() []Candidate {
	if t == nil {
		return nil
	}
	out := make([]Candidate, len(t.candidates))
	for i, c := range t.candidates {
		out[i] = Candidate{Template: c.Template.Clone(), Weight: c.Weight}
	}
	return out
}

// Draw picks one candidate with probability weight/total.
func (t *Table) Draw(rng Rand) (Candidate, error) {
	if t.Len() == 0 {
		return Candidate{}, ErrEmptyCandidateSet
	}
	roll := rng.Int63n(t.total)

	// First cumulative bound strictly above the roll.
	lo, hi := 0, len(t.cumulative)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if roll < t.cumulative[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	c := t.candidates[lo]
	return Candidate{Template: c.Template.Clone(), Weight: c.Weight}, nil
}
