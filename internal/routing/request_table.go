package routing

import (
	"maps"
	"slices"
)

// RequestTable tracks destinations with an unanswered request originated by
// this node, along with the sequence of the latest request and how many
// times discovery has been attempted.
type RequestTable struct {
	pending map[uint32]outstanding
}

type outstanding struct {
	seq      uint16
	attempts int
}

func NewRequestTable() *RequestTable {
	return &RequestTable{pending: make(map[uint32]outstanding)}
}

func (t *RequestTable) Has(dest uint32) bool {
	_, ok := t.pending[dest]
	return ok
}

// Add records a request for dest and returns the attempt number.
func (t *RequestTable) Add(dest uint32, seq uint16) int {
	o := t.pending[dest]
	o.seq = seq
	o.attempts++
	t.pending[dest] = o
	return o.attempts
}

func (t *RequestTable) Remove(dest uint32) {
	delete(t.pending, dest)
}

// Seq is the sequence of the latest request for dest.
func (t *RequestTable) Seq(dest uint32) (uint16, bool) {
	o, ok := t.pending[dest]
	return o.seq, ok
}

func (t *RequestTable) Attempts(dest uint32) int {
	return t.pending[dest].attempts
}

// Destinations lists the destinations with an outstanding request, in
// ascending order.
func (t *RequestTable) Destinations() []uint32 {
	return slices.Sorted(maps.Keys(t.pending))
}

func (t *RequestTable) Len() int {
	return len(t.pending)
}
