package routing

import (
	"math"
	"time"

	"lar-simulation/internal/mesh"
)

// maxRadius bounds the radius before it is converted to an integer.
const maxRadius = 1 << 29

// LocationHistory is the last position report a node has for a destination.
type LocationHistory struct {
	Position  mesh.Position
	Velocity  float64
	Timestamp time.Time
}

// ComputeRequestZone returns the rectangle a request for the destination
// described by hist is confined to. ok is false when nothing is known about
// the destination and the request has to be flooded.
//
// The destination is expected within radius = velocity * elapsed of its last
// position. The zone is the bounding box of that square and self; each axis
// independently puts self below, inside or above the square, giving the
// nine possible placements.
func ComputeRequestZone(self mesh.Position, hist *LocationHistory, now time.Time) (mesh.Zone, bool) {
	if hist == nil {
		return mesh.Zone{}, false
	}
	elapsed := now.Sub(hist.Timestamp).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	r := hist.Velocity * elapsed
	if r < 0 {
		r = 0
	}
	if r > maxRadius {
		r = maxRadius
	}
	radius := int64(r)

	d := hist.Position
	zone := mesh.Zone{
		MinX: clampInt32(int64(d.X) - radius),
		MinY: clampInt32(int64(d.Y) - radius),
		MaxX: clampInt32(int64(d.X) + radius),
		MaxY: clampInt32(int64(d.Y) + radius),
	}

	switch {
	case self.X < zone.MinX:
		zone.MinX = self.X
	case self.X > zone.MaxX:
		zone.MaxX = self.X
	}
	switch {
	case self.Y < zone.MinY:
		zone.MinY = self.Y
	case self.Y > zone.MaxY:
		zone.MaxY = self.Y
	}
	return zone, true
}

// clampInt32 saturates v to the int32 range.
func clampInt32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// PointInZone is inclusive and allows one unit past the upper bounds.
func PointInZone(p mesh.Position, zone mesh.Zone) bool {
	return zone.Contains(p)
}
