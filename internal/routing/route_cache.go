package routing

import (
	"slices"
	"time"

	"lar-simulation/internal/mesh"
)

// RouteCacheEntry is a source route to Destination. Path lists the hops
// after this node, ending with the destination itself.
type RouteCacheEntry struct {
	Destination uint32
	Valid       bool
	Path        []uint32
	Velocity    float64
	Position    mesh.Position
	Timestamp   time.Time
}

// RouteCache keeps discovered routes, newest first. Broken routes are only
// flagged invalid; they are removed when a fresh discovery starts.
type RouteCache struct {
	ownerID uint32
	entries []*RouteCacheEntry
}

func NewRouteCache(ownerID uint32) *RouteCache {
	return &RouteCache{ownerID: ownerID}
}

// Lookup returns the newest valid route to dest.
func (c *RouteCache) Lookup(dest uint32) (*RouteCacheEntry, bool) {
	for _, e := range c.entries {
		if e.Destination == dest && e.Valid {
			return e, true
		}
	}
	return nil, false
}

// Insert prepends a new valid route. Older entries for dest are kept.
func (c *RouteCache) Insert(dest uint32, path []uint32, velocity float64, pos mesh.Position, ts time.Time) *RouteCacheEntry {
	e := &RouteCacheEntry{
		Destination: dest,
		Valid:       true,
		Path:        slices.Clone(path),
		Velocity:    velocity,
		Position:    pos,
		Timestamp:   ts,
	}
	c.entries = append([]*RouteCacheEntry{e}, c.entries...)
	return e
}

// InvalidateThroughLink flags every route that uses the hop from -> to and
// returns the entries that were valid before the call.
func (c *RouteCache) InvalidateThroughLink(from, to uint32) []*RouteCacheEntry {
	var flipped []*RouteCacheEntry
	for _, e := range c.entries {
		if !c.traverses(e, from, to) {
			continue
		}
		if e.Valid {
			flipped = append(flipped, e)
		}
		e.Valid = false
	}
	return flipped
}

func (c *RouteCache) traverses(e *RouteCacheEntry, from, to uint32) bool {
	if len(e.Path) == 0 {
		return false
	}
	// zero hop: the link from this node to the first hop
	if from == c.ownerID && e.Path[0] == to {
		return true
	}
	for i := 0; i+1 < len(e.Path); i++ {
		if e.Path[i] == from && e.Path[i+1] == to {
			return true
		}
	}
	return false
}

// Delete removes every entry for dest, valid or not.
func (c *RouteCache) Delete(dest uint32) []*RouteCacheEntry {
	var removed []*RouteCacheEntry
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.Destination == dest {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(c.entries[len(kept):])
	c.entries = kept
	return removed
}

// History returns the location report of the newest entry for dest, valid or
// not, or nil when the destination has never been reached.
func (c *RouteCache) History(dest uint32) *LocationHistory {
	for _, e := range c.entries {
		if e.Destination == dest {
			return &LocationHistory{Position: e.Position, Velocity: e.Velocity, Timestamp: e.Timestamp}
		}
	}
	return nil
}

// Entries returns copies of all entries in lookup order.
func (c *RouteCache) Entries() []RouteCacheEntry {
	out := make([]RouteCacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		cp := *e
		cp.Path = slices.Clone(e.Path)
		out = append(out, cp)
	}
	return out
}

func (c *RouteCache) Len() int {
	return len(c.entries)
}
