package routing

import (
	"time"

	"lar-simulation/internal/packet"
)

type pendingSlot struct {
	dest     uint32
	pkt      *packet.DataPacket
	enqueued time.Time
	used     bool
}

// SendBuffer is a fixed size ring of packets waiting for a route. Removing a
// packet from the middle leaves a hole that is only reclaimed once the head
// reaches it, so holes count against the capacity until then.
type SendBuffer struct {
	slots []pendingSlot
	head  int
	size  int // slots between head and tail, holes included
	live  int
}

func NewSendBuffer(capacity int) *SendBuffer {
	return &SendBuffer{slots: make([]pendingSlot, capacity)}
}

// Enqueue stores pkt for dest. It returns false when the ring is full and the
// caller has to drop the packet.
func (b *SendBuffer) Enqueue(dest uint32, pkt *packet.DataPacket, now time.Time) bool {
	if b.size == len(b.slots) {
		return false
	}
	idx := (b.head + b.size) % len(b.slots)
	b.slots[idx] = pendingSlot{dest: dest, pkt: pkt, enqueued: now, used: true}
	b.size++
	b.live++
	return true
}

// Dequeue returns the oldest packet for dest and when it was queued.
func (b *SendBuffer) Dequeue(dest uint32) (*packet.DataPacket, time.Time, bool) {
	b.reclaim()
	for i := 0; i < b.size; i++ {
		idx := (b.head + i) % len(b.slots)
		s := &b.slots[idx]
		if !s.used || s.dest != dest {
			continue
		}
		pkt, at := s.pkt, s.enqueued
		*s = pendingSlot{}
		b.live--
		b.reclaim()
		return pkt, at, true
	}
	return nil, time.Time{}, false
}

// reclaim advances the head over emptied slots.
func (b *SendBuffer) reclaim() {
	for b.size > 0 && !b.slots[b.head].used {
		b.head = (b.head + 1) % len(b.slots)
		b.size--
	}
}

// Len is the number of packets held.
func (b *SendBuffer) Len() int {
	return b.live
}

func (b *SendBuffer) Cap() int {
	return len(b.slots)
}
