package sequence

import "sync/atomic"

// Sequencer numbers engine events. Journal records and outbox entries
// share one sequence so a consumer can line them up.
type Sequencer struct {
	last atomic.Uint64
}

// New starts after last; pass 0 on a fresh store.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Advance moves the sequencer forward to v. Lower values are ignored so
// recovery can feed it every source it finds.
func (s *Sequencer) Advance(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Rewind gives back seq if it is the last one issued, for commands that
// drew a number and then failed.
func (s *Sequencer) Rewind(seq uint64) bool {
	return s.last.CompareAndSwap(seq, seq-1)
}
