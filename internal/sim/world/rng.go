package world

import "math/rand"

// countingSource counts how far the world rng has advanced so snapshots can restore it
// exactly: a restored world replays the same draws as the one that wrote the snapshot.
type countingSource struct {
	src   rand.Source64
	draws uint64
}

func newCountingSource(seed int64, skip uint64) *countingSource {
	s := &countingSource{src: rand.NewSource(seed).(rand.Source64)}
	for s.draws < skip {
		s.Int63()
	}
	return s
}

func (s *countingSource) Int63() int64 {
	s.draws++
	return s.src.Int63()
}

func (s *countingSource) Uint64() uint64 {
	s.draws++
	return s.src.Uint64()
}

func (s *countingSource) Seed(seed int64) {
	s.src.Seed(seed)
	s.draws = 0
}
