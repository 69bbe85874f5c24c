package mesh

import (
	"math/rand"
	"time"
)

// MobilityConfig parametrises the random waypoint model.
type MobilityConfig struct {
	AreaSide float64
	MinSpeed float64 // m/s
	MaxSpeed float64 // m/s
	Pause    time.Duration
}

// Waypoint implements the random waypoint model. Legs are computed lazily
// whenever the position is sampled, so no timers are needed.
type Waypoint struct {
	cfg MobilityConfig
	rng *rand.Rand

	from     Coordinates
	to       Coordinates
	speed    float64
	legStart time.Time
	legEnd   time.Time
}

// NewWaypoint starts a node at start. With MaxSpeed == 0 the node never moves.
func NewWaypoint(start Coordinates, cfg MobilityConfig, rng *rand.Rand, now time.Time) *Waypoint {
	w := &Waypoint{cfg: cfg, rng: rng, from: start, to: start, legStart: now, legEnd: now}
	if w.mobile() {
		w.nextLeg(start, now)
	}
	return w
}

func (w *Waypoint) mobile() bool {
	return w.cfg.MaxSpeed > 0 && w.cfg.AreaSide > 0
}

func (w *Waypoint) nextLeg(start Coordinates, at time.Time) {
	w.from = start
	w.to = Coordinates{X: w.rng.Float64() * w.cfg.AreaSide, Y: w.rng.Float64() * w.cfg.AreaSide}
	w.speed = w.cfg.MinSpeed
	if w.cfg.MaxSpeed > w.cfg.MinSpeed {
		w.speed += w.rng.Float64() * (w.cfg.MaxSpeed - w.cfg.MinSpeed)
	}
	if w.speed <= 0 {
		w.speed = w.cfg.MaxSpeed
	}
	travel := time.Duration(start.DistanceTo(w.to) / w.speed * float64(time.Second))
	w.legStart = at
	w.legEnd = at.Add(travel)
}

func (w *Waypoint) advance(now time.Time) {
	if !w.mobile() {
		return
	}
	for !now.Before(w.legEnd.Add(w.cfg.Pause)) {
		w.nextLeg(w.to, w.legEnd.Add(w.cfg.Pause))
	}
}

// PositionAt returns the interpolated position at now.
func (w *Waypoint) PositionAt(now time.Time) Coordinates {
	w.advance(now)
	if !now.Before(w.legEnd) {
		return w.to
	}
	if now.Before(w.legStart) {
		return w.from
	}
	total := w.legEnd.Sub(w.legStart)
	if total <= 0 {
		return w.to
	}
	f := float64(now.Sub(w.legStart)) / float64(total)
	return Coordinates{
		X: w.from.X + (w.to.X-w.from.X)*f,
		Y: w.from.Y + (w.to.Y-w.from.Y)*f,
	}
}

// SpeedAt is the current speed, zero while pausing at a waypoint.
func (w *Waypoint) SpeedAt(now time.Time) float64 {
	w.advance(now)
	if !w.mobile() || !now.Before(w.legEnd) {
		return 0
	}
	return w.speed
}

// MoveTo teleports the node and pins it there until the next leg starts
// after the configured pause.
func (w *Waypoint) MoveTo(c Coordinates, now time.Time) {
	w.from = c
	w.to = c
	w.legStart = now
	w.legEnd = now
}
