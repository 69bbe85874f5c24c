package routing

import "time"

type seenKey struct {
	originator uint32
	seq        uint16
}

// SeenCache remembers flooded requests by (originator, sequence). Sequence
// numbers wrap at 65536 and are compared as is, so a wrapped sequence that
// is still inside the lifetime window reads as already seen.
type SeenCache struct {
	lifetime time.Duration
	entries  map[seenKey]time.Time // expiry
}

func NewSeenCache(lifetime time.Duration) *SeenCache {
	return &SeenCache{lifetime: lifetime, entries: make(map[seenKey]time.Time)}
}

func (s *SeenCache) Seen(originator uint32, seq uint16) bool {
	_, ok := s.entries[seenKey{originator, seq}]
	return ok
}

func (s *SeenCache) MarkSeen(originator uint32, seq uint16, now time.Time) {
	s.entries[seenKey{originator, seq}] = now.Add(s.lifetime)
}

// FlushExpired drops entries whose expiry is before now.
func (s *SeenCache) FlushExpired(now time.Time) int {
	n := 0
	for k, exp := range s.entries {
		if exp.Before(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

func (s *SeenCache) Len() int {
	return len(s.entries)
}
