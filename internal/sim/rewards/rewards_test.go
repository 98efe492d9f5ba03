package rewards

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"riftminer.ai/internal/sim/item"
)

func TestNewTable_RejectsNonPositiveWeight(t *testing.T) {
	for _, w := range []int{0, -3} {
		_, err := NewTable([]Candidate{
			{Template: item.New("STONE", 1, 0), Weight: 5},
			{Template: item.New("IRON_ORE", 1, 0), Weight: w},
		})
		if !errors.Is(err, ErrInvalidWeight) {
			t.Fatalf("weight %d: expected ErrInvalidWeight, got %v", w, err)
		}
	}
}

func TestDraw_EmptyTable(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	tbl, err := NewTable(nil)
	if err != nil {
		t.Fatalf("empty build: %v", err)
	}
	if _, err := tbl.Draw(rng); !errors.Is(err, ErrEmptyCandidateSet) {
		t.Fatalf("expected ErrEmptyCandidateSet, got %v", err)
	}

	var nilTable *Table
	if _, err := nilTable.Draw(rng); !errors.Is(err, ErrEmptyCandidateSet) {
		t.Fatalf("nil table: expected ErrEmptyCandidateSet, got %v", err)
	}
}

func TestDraw_ConvergesToWeights(t *testing.T) {
	cands := []Candidate{
		{Template: item.New("STONE", 1, 0), Weight: 70},
		{Template: item.New("IRON_ORE", 1, 0), Weight: 20},
		{Template: item.New("GOLD_ORE", 1, 0), Weight: 9},
		{Template: item.New("DIAMOND", 1, 0), Weight: 1},
	}
	tbl, err := NewTable(cands)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	const trials = 200_000
	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		c, err := tbl.Draw(rng)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		counts[c.Template.Item]++
	}

	for _, c := range cands {
		p := float64(c.Weight) / float64(tbl.Total())
		got := float64(counts[c.Template.Item]) / trials
		// 5 standard deviations of a binomial proportion.
		tol := 5 * math.Sqrt(p*(1-p)/trials)
		if math.Abs(got-p) > tol {
			t.Fatalf("%s: expected p=%.4f got %.4f (tol %.4f)", c.Template.Item, p, got, tol)
		}
	}
}

func TestDraw_EqualWeightsIgnoreOrder(t *testing.T) {
	a := item.New("A", 1, 0)
	b := item.New("B", 1, 0)
	fwd, _ := NewTable([]Candidate{{Template: a, Weight: 3}, {Template: b, Weight: 3}})
	rev, _ := NewTable([]Candidate{{Template: b, Weight: 3}, {Template: a, Weight: 3}})

	const trials = 100_000
	share := func(tbl *Table) float64 {
		rng := rand.New(rand.NewSource(7))
		n := 0
		for i := 0; i < trials; i++ {
			c, _ := tbl.Draw(rng)
			if c.Template.Item == "A" {
				n++
			}
		}
		return float64(n) / trials
	}
	if d := math.Abs(share(fwd) - 0.5); d > 0.01 {
		t.Fatalf("forward order biased: off by %.4f", d)
	}
	if d := math.Abs(share(rev) - 0.5); d > 0.01 {
		t.Fatalf("reverse order biased: off by %.4f", d)
	}
}

func TestDraw_ReturnsFreshCopy(t *testing.T) {
	tbl, _ := NewTable([]Candidate{{Template: item.Stack{Item: "X", Count: 1, Meta: map[string]int{"k": 1}}, Weight: 1}})
	c, _ := tbl.Draw(rand.New(rand.NewSource(1)))
	c.Template.Meta["k"] = 99
	again, _ := tbl.Draw(rand.New(rand.NewSource(1)))
	if again.Template.Meta["k"] != 1 {
		t.Fatalf("draw leaked the template: %v", again.Template.Meta)
	}
}
