package simulation

import (
	"container/heap"
	"sync"
	"time"
)

// Epoch is the virtual start time used when none is given.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type timedEvent struct {
	at  time.Time
	seq uint64
	fn  func()
}

type eventQueue []*timedEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*timedEvent)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Scheduler is a discrete-event clock. Callbacks run one at a time on the
// goroutine that calls Step, RunUntil or Run, in time order and FIFO among
// callbacks due at the same instant. AfterFunc and Dispatch may be called
// from any goroutine.
type Scheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	queue eventQueue
}

func NewScheduler(start time.Time) *Scheduler {
	if start.IsZero() {
		start = Epoch
	}
	return &Scheduler{now: start}
}

func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc runs f once d of virtual time has passed. Negative delays are
// treated as zero.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	heap.Push(&s.queue, &timedEvent{at: s.now.Add(d), seq: s.seq, fn: f})
}

// Dispatch queues f to run at the current virtual time, after anything
// already due now. It is how other goroutines hand work to the simulation.
func (s *Scheduler) Dispatch(f func()) {
	s.AfterFunc(0, f)
}

// Step runs the next due callback and reports whether there was one.
func (s *Scheduler) Step() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	e := heap.Pop(&s.queue).(*timedEvent)
	s.now = e.at
	s.mu.Unlock()

	e.fn()
	return true
}

// RunUntil runs every callback due at or before t and then advances the
// clock to t. It returns the number of callbacks run.
func (s *Scheduler) RunUntil(t time.Time) int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].at.After(t) {
			if s.now.Before(t) {
				s.now = t
			}
			s.mu.Unlock()
			return n
		}
		s.mu.Unlock()
		s.Step()
		n++
	}
}

// Advance is RunUntil(Now()+d).
func (s *Scheduler) Advance(d time.Duration) int {
	return s.RunUntil(s.Now().Add(d))
}

// Run drains the queue. Periodic callbacks that keep rescheduling
// themselves make this loop forever; use RunUntil for those.
func (s *Scheduler) Run() int {
	n := 0
	for s.Step() {
		n++
	}
	return n
}

// Pending is the number of queued callbacks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NextAt is when the next callback is due.
func (s *Scheduler) NextAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}
