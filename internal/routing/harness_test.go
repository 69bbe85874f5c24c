package routing

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/mesh"
	"lar-simulation/internal/packet"
	"lar-simulation/internal/simulation"
)

type sentKind int

const (
	sentUnicast sentKind = iota
	sentBroadcast
	sentData
)

type sent struct {
	kind    sentKind
	ctrl    packet.ControlPacket
	nextHop uint32
	data    *packet.DataPacket
	route   []uint32
}

// harness records everything a router transmits instead of putting it on a
// medium, and plays the node's positioning.
type harness struct {
	t      *testing.T
	sched  *simulation.Scheduler
	pos    map[uint32]mesh.Position
	speed  map[uint32]float64
	out    []sent
	events []eventBus.Event
	router *LARRouter
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxJitter = 0
	return cfg
}

func newHarness(t *testing.T, self uint32, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		sched: simulation.NewScheduler(simulation.Epoch),
		pos:   make(map[uint32]mesh.Position),
		speed: make(map[uint32]float64),
	}
	bus := eventBus.NewEventBus(nil)
	bus.SubscribeFunc(func(e eventBus.Event) { h.events = append(h.events, e) })
	h.router = NewLARRouter(self, cfg, Env{
		Scheduler:   h.sched,
		Positioning: h,
		Transport:   h,
		Rand:        rand.New(rand.NewSource(1)),
		Bus:         bus,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *harness) CurrentPosition(id uint32) mesh.Position { return h.pos[id] }
func (h *harness) CurrentSpeed(id uint32) float64          { return h.speed[id] }

func (h *harness) UnicastControl(pkt packet.ControlPacket, nextHop uint32) {
	h.out = append(h.out, sent{kind: sentUnicast, ctrl: pkt, nextHop: nextHop})
}

func (h *harness) BroadcastControl(pkt packet.ControlPacket) {
	h.out = append(h.out, sent{kind: sentBroadcast, ctrl: pkt, nextHop: packet.BROADCAST_ADDR})
}

func (h *harness) SendDataViaRoute(pkt *packet.DataPacket, route []uint32) {
	h.out = append(h.out, sent{kind: sentData, data: pkt, route: route})
}

// settle runs everything due at the current instant, including zero jitter sends.
func (h *harness) settle() {
	h.sched.RunUntil(h.sched.Now())
}

// take returns and clears what was sent so far.
func (h *harness) take() []sent {
	h.settle()
	out := h.out
	h.out = nil
	return out
}

func (h *harness) eventsOf(typ eventBus.EventType) []eventBus.Event {
	var out []eventBus.Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func dataPkt(id, src, dest uint32) *packet.DataPacket {
	return &packet.DataPacket{PacketID: id, Source: src, Dest: dest, Payload: []byte("hello")}
}
