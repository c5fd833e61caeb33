package search

import (
	"container/heap"

	"github.com/onnwee/flightrank/internal/flight"
)

// Compile time check to ensure candidateHeap satisfies the heap interface.
var _ heap.Interface = (*candidateHeap)(nil)

// entry is a retained candidate keyed by (score, seq).
// seq is unique per Selector, so no two entries ever compare equal.
type entry struct {
	candidate flight.ScoredCandidate
	seq       uint64
}

// less orders entries by ascending score, then by insertion order.
func (e entry) less(o entry) bool {
	if e.candidate.Score != o.candidate.Score {
		return e.candidate.Score < o.candidate.Score
	}
	return e.seq < o.seq
}

// candidateHeap is a max-heap on the entry key: the root is the worst entry.
type candidateHeap []entry

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[j].less(h[i]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = entry{} // Avoid holding the record
	*h = old[:n-1]
	return item
}

// Selector retains the k best candidates of a stream, lowest score first.
//
// Offer is O(log k) and never holds more than k+1 entries. Candidates with
// equal scores are kept as distinct entries; among ties the earlier offer
// ranks first and the later offer is evicted first.
//
// Drain empties the selector; it can be reused afterwards. A Selector is not
// safe for concurrent use.
type Selector struct {
	k    int
	next uint64
	h    candidateHeap
}

// NewSelector creates a Selector of capacity k, clamped to [flight.MinLimit, flight.MaxLimit].
func NewSelector(k int) *Selector {
	k = flight.ClampLimit(k)
	return &Selector{
		k: k,
		h: make(candidateHeap, 0, k+1),
	}
}

// Offer inserts the candidate and, if the selector is over capacity, evicts
// the single worst entry. It reports whether the offered candidate is still
// retained afterwards.
func (s *Selector) Offer(c flight.ScoredCandidate) bool {
	seq := s.next
	s.next++

	heap.Push(&s.h, entry{candidate: c, seq: seq})
	if s.h.Len() <= s.k {
		return true
	}

	evicted := heap.Pop(&s.h).(entry)
	return evicted.seq != seq
}

// Len returns the number of retained candidates.
func (s *Selector) Len() int {
	return s.h.Len()
}

// Cap returns the selector's capacity k.
func (s *Selector) Cap() int {
	return s.k
}

// Drain returns the retained candidates in ascending (score, insertion) order
// and leaves the selector empty. The result is non-nil even when empty.
// Popping the heap costs O(K log K); K is at most flight.MaxLimit.
func (s *Selector) Drain() []flight.ScoredCandidate {
	out := make([]flight.ScoredCandidate, s.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&s.h).(entry).candidate
	}
	return out
}
