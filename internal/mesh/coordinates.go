package mesh

import "math"

// Coordinates is a continuous position in the simulation area (metres).
type Coordinates struct {
	X float64
	Y float64
}

// Distance calculation based on x and y, the simulation area is flat
func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return math.Sqrt(math.Pow(c.X-other.X, 2) + math.Pow(c.Y-other.Y, 2))
}

func (c Coordinates) Equals(other Coordinates) bool {
	return c.X == other.X && c.Y == other.Y
}

// Grid truncates the coordinates onto the integer grid used by the routing layer.
func (c Coordinates) Grid() Position {
	return Position{X: int32(c.X), Y: int32(c.Y)}
}

func CreateCoordinates(x float64, y float64) Coordinates {
	return Coordinates{X: x, Y: y}
}

// Position is a point on the integer grid carried in control packets.
type Position struct {
	X int32
	Y int32
}

// Zone is an axis aligned rectangle, bounds inclusive.
type Zone struct {
	MinX int32
	MinY int32
	MaxX int32
	MaxY int32
}

// Contains reports whether p lies inside z. The upper bounds carry one unit
// of slack so a point truncated onto the far edge still counts as inside.
func (z Zone) Contains(p Position) bool {
	return p.X >= z.MinX && int64(p.X) <= int64(z.MaxX)+1 &&
		p.Y >= z.MinY && int64(p.Y) <= int64(z.MaxY)+1
}
