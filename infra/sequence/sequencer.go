package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing ids. The books use one for
// agent order ids and the service uses another for tick log sequence
// numbers, so a replayed session sees the same ids it saw live.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose first id is start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last id handed out.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset rewinds the sequencer to v. Books reset their order ids this way
// at the start of every episode.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}

// Advance raises the last id handed out to at least v and never lowers
// it. Record seqs resume this way above both logs after replay.
func (s *Sequencer) Advance(v uint64) {
	for {
		cur := s.next.Load()
		if cur >= v || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
