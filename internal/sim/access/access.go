// Package access maps the side a caller approaches a rift miner from onto a view of its bins.
package access

import (
	"errors"
	"fmt"
	"strings"

	"riftminer.ai/internal/sim/bins"
	"riftminer.ai/internal/sim/item"
)

var ErrRevoked = errors.New("access: view revoked")

type Side int

const (
	None Side = iota // internal/automation access without a direction
	Down
	Up
	North
	South
	West
	East
)

var sideNames = [...]string{"NONE", "DOWN", "UP", "NORTH", "SOUTH", "WEST", "EAST"}

func (s Side) String() string {
	if s < 0 || int(s) >= len(sideNames) {
		return fmt.Sprintf("Side(%d)", int(s))
	}
	return sideNames[s]
}

func ParseSide(v string) (Side, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return None, nil
	}
	for i, n := range sideNames {
		if n == v {
			return Side(i), nil
		}
	}
	return None, fmt.Errorf("unknown side %q", v)
}

type Kind int

const (
	KindInput Kind = iota + 1
	KindOutput
	KindCombined
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "INPUT"
	case KindOutput:
		return "OUTPUT"
	case KindCombined:
		return "COMBINED"
	default:
		return "UNKNOWN"
	}
}

// Lease ties borrowed views to the lifetime of their owner.
type Lease struct {
	gen     uint64
	revoked bool
}

func NewLease() *Lease { return &Lease{gen: 1} }

func (l *Lease) Generation() uint64 { return l.gen }

// Revoke invalidates every view handed out so far.
func (l *Lease) Revoke() {
	l.revoked = true
	l.gen++
}

func (l *Lease) Revoked() bool { return l.revoked }

func (l *Lease) valid(gen uint64) bool { return !l.revoked && l.gen == gen }

// Target is the owner of the bins, typically a node.
type Target interface {
	InputBin() *bins.InputBin
	OutputBin() *bins.OutputBin
	Lease() *Lease
}

type View interface {
	Kind() Kind
	Slots() int
	Stack(slot int) (item.Stack, error)
	// Insert returns the part of s that was not accepted.
	Insert(slot int, s item.Stack, simulate bool) (item.Stack, error)
	Extract(slot, n int, simulate bool) (item.Stack, error)
}

// Route returns a fresh view for the given side. It never returns nil.
func Route(side Side, t Target) View {
	h := handle{lease: t.Lease()}
	if h.lease != nil {
		h.gen = h.lease.Generation()
	}
	switch side {
	case None:
		return &CombinedView{handle: h, in: t.InputBin(), out: t.OutputBin()}
	case Up:
		return &inputView{handle: h, in: t.InputBin()}
	default:
		return &outputView{handle: h, out: t.OutputBin()}
	}
}

type handle struct {
	lease *Lease
	gen   uint64
}

func (h handle) check() error {
	if h.lease != nil && !h.lease.valid(h.gen) {
		return ErrRevoked
	}
	return nil
}

type inputView struct {
	handle
	in *bins.InputBin
}

func (v *inputView) Kind() Kind { return KindInput }
func (v *inputView) Slots() int { return 1 }

func (v *inputView) Stack(slot int) (item.Stack, error) {
	if err := v.check(); err != nil {
		return item.Stack{}, err
	}
	if slot != 0 {
		return item.Stack{}, bins.ErrBadSlot
	}
	s, _ := v.in.Peek()
	return s, nil
}

func (v *inputView) Insert(slot int, s item.Stack, simulate bool) (item.Stack, error) {
	if err := v.check(); err != nil {
		return s, err
	}
	if slot != 0 {
		return s, bins.ErrBadSlot
	}
	return v.in.Insert(s, simulate), nil
}

func (v *inputView) Extract(slot, n int, simulate bool) (item.Stack, error) {
	if err := v.check(); err != nil {
		return item.Stack{}, err
	}
	if slot != 0 {
		return item.Stack{}, bins.ErrBadSlot
	}
	return v.in.Extract(n, simulate), nil
}

type outputView struct {
	handle
	out *bins.OutputBin
}

func (v *outputView) Kind() Kind { return KindOutput }
func (v *outputView) Slots() int { return v.out.Slots() }

func (v *outputView) Stack(slot int) (item.Stack, error) {
	if err := v.check(); err != nil {
		return item.Stack{}, err
	}
	return v.out.Slot(slot)
}

func (v *outputView) Insert(slot int, s item.Stack, simulate bool) (item.Stack, error) {
	if err := v.check(); err != nil {
		return s, err
	}
	return v.out.InsertAt(slot, s, simulate)
}

func (v *outputView) Extract(slot, n int, simulate bool) (item.Stack, error) {
	if err := v.check(); err != nil {
		return item.Stack{}, err
	}
	return v.out.ExtractAt(slot, n, simulate)
}

// CombinedView exposes both bins as one container: slot 0 is the input,
// slots 1..N are the output.
type CombinedView struct {
	handle
	in  *bins.InputBin
	out *bins.OutputBin
}

func (v *CombinedView) Kind() Kind { return KindCombined }
func (v *CombinedView) Slots() int { return 1 + v.out.Slots() }

func (v *CombinedView) Stack(slot int) (item.Stack, error) {
	if err := v.check(); err != nil {
		return item.Stack{}, err
	}
	if slot == 0 {
		s, _ := v.in.Peek()
		return s, nil
	}
	return v.out.Slot(slot - 1)
}

func (v *CombinedView) Insert(slot int, s item.Stack, simulate bool) (item.Stack, error) {
	if err := v.check(); err != nil {
		return s, err
	}
	if slot == 0 {
		return v.in.Insert(s, simulate), nil
	}
	return v.out.InsertAt(slot-1, s, simulate)
}

func (v *CombinedView) Extract(slot, n int, simulate bool) (item.Stack, error) {
	if err := v.check(); err != nil {
		return item.Stack{}, err
	}
	if slot == 0 {
		return v.in.Extract(n, simulate), nil
	}
	return v.out.ExtractAt(slot-1, n, simulate)
}

// InsertAny routes s to the input bin when it accepts the identity, otherwise to the output bin.
func (v *CombinedView) InsertAny(s item.Stack) (bins.InsertResult, error) {
	if err := v.check(); err != nil {
		return bins.InsertResult{Remainder: max(s.Count, 0)}, err
	}
	if s.IsEmpty() {
		return bins.InsertResult{}, nil
	}
	if v.in.Accepts(s.Item) {
		rem := v.in.Insert(s, false)
		if rem.IsEmpty() {
			return bins.InsertResult{Accepted: s.Count}, nil
		}
		if rem.Count < s.Count {
			res := v.out.TryInsert(rem)
			res.Accepted += s.Count - rem.Count
			return res, nil
		}
	}
	return v.out.TryInsert(s), nil
}

// Contents reads every slot, input first.
func (v *CombinedView) Contents() ([]item.Stack, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	in, _ := v.in.Peek()
	return append([]item.Stack{in}, v.out.Contents()...), nil
}
