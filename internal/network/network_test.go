package network

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/mesh"
	"lar-simulation/internal/simulation"
)

type stubNode struct {
	id       uint32
	pos      mesh.Coordinates
	received [][]byte
	printed  int
}

func (s *stubNode) GetID() uint32                  { return s.id }
func (s *stubNode) SendData(uint32, []byte)        {}
func (s *stubNode) HandleMessage(b []byte)         { s.received = append(s.received, b) }
func (s *stubNode) PrintNodeDetails()              { s.printed++ }
func (s *stubNode) GetPosition() mesh.Coordinates  { return s.pos }
func (s *stubNode) SetPosition(c mesh.Coordinates) { s.pos = c }
func (s *stubNode) GetSpeed() float64              { return 0 }

func newTestNetwork(cfg Config) (mesh.INetwork, *simulation.Scheduler, *[]eventBus.Event) {
	sched := simulation.NewScheduler(time.Time{})
	bus := eventBus.NewEventBus(nil)
	var events []eventBus.Event
	bus.SubscribeFunc(func(e eventBus.Event) { events = append(events, e) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNetwork(sched, cfg, bus, logger), sched, &events
}

func TestBroadcastReachesNodesInRange(t *testing.T) {
	net, sched, _ := newTestNetwork(Config{Range: 100, AirTime: 5 * time.Millisecond})
	a := &stubNode{id: 1}
	b := &stubNode{id: 2, pos: mesh.Coordinates{X: 100}}
	c := &stubNode{id: 3, pos: mesh.Coordinates{X: 150}}
	for _, n := range []*stubNode{a, b, c} {
		net.Join(n)
	}

	pkt := []byte{1, 2, 3}
	net.BroadcastMessage(pkt, a)
	pkt[0] = 9
	assert.Empty(t, b.received, "delivery waits for the airtime")

	sched.Advance(5 * time.Millisecond)
	require.Len(t, b.received, 1)
	assert.Equal(t, []byte{1, 2, 3}, b.received[0])
	assert.Empty(t, c.received)
	assert.Empty(t, a.received)
}

func TestUnicastErrors(t *testing.T) {
	net, sched, _ := newTestNetwork(Config{Range: 100})
	a := &stubNode{id: 1}
	b := &stubNode{id: 2, pos: mesh.Coordinates{X: 50}}
	far := &stubNode{id: 3, pos: mesh.Coordinates{X: 500}}
	net.Join(a)
	net.Join(b)
	net.Join(far)

	require.NoError(t, net.UnicastMessage([]byte{1}, a, 2))
	assert.ErrorIs(t, net.UnicastMessage([]byte{1}, a, 3), ErrLinkBroken)
	assert.ErrorIs(t, net.UnicastMessage([]byte{1}, a, 42), ErrUnknownNode)

	sched.Run()
	assert.Len(t, b.received, 1)
	assert.Empty(t, far.received)
}

func TestLeaveStopsDelivery(t *testing.T) {
	net, sched, events := newTestNetwork(Config{Range: 100, AirTime: time.Millisecond})
	a := &stubNode{id: 1}
	b := &stubNode{id: 2, pos: mesh.Coordinates{Y: 10}}
	net.Join(a)
	net.Join(b)

	require.NoError(t, net.UnicastMessage([]byte{1}, a, 2))
	net.Leave(2)
	sched.Run()
	assert.Empty(t, b.received)
	assert.Equal(t, 1, b.printed)
	assert.Equal(t, []uint32{1}, net.NodeIDs())

	_, err := net.GetNode(2)
	assert.ErrorIs(t, err, ErrUnknownNode)

	var types []eventBus.EventType
	for _, e := range *events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []eventBus.EventType{eventBus.EventNodeJoined, eventBus.EventNodeJoined, eventBus.EventNodeLeft}, types)
}

func TestDepartedSenderIsSilent(t *testing.T) {
	net, sched, _ := newTestNetwork(Config{Range: 100, AirTime: time.Millisecond})
	a := &stubNode{id: 1}
	b := &stubNode{id: 2, pos: mesh.Coordinates{X: 10}}
	net.Join(a)
	net.Join(b)
	net.Leave(1)

	net.BroadcastMessage([]byte{1}, a)
	assert.ErrorIs(t, net.UnicastMessage([]byte{2}, a, 2), ErrUnknownNode)
	sched.Run()
	assert.Empty(t, b.received)
}

func TestCollidingBroadcastsDropped(t *testing.T) {
	net, sched, events := newTestNetwork(Config{Range: 100, AirTime: 10 * time.Millisecond, Collisions: true})
	a := &stubNode{id: 1}
	b := &stubNode{id: 2, pos: mesh.Coordinates{X: 50}}
	c := &stubNode{id: 3, pos: mesh.Coordinates{X: 100}}
	for _, n := range []*stubNode{a, b, c} {
		net.Join(n)
	}

	net.BroadcastMessage([]byte{1}, a)
	sched.Advance(5 * time.Millisecond)
	net.BroadcastMessage([]byte{2}, c)
	sched.Run()

	assert.Empty(t, b.received)
	dropped := 0
	for _, e := range *events {
		if e.Type == eventBus.EventPacketDropped && e.Reason == eventBus.ReasonCollision {
			dropped++
		}
	}
	assert.Equal(t, 2, dropped)

	// after the air clears broadcasts go through again
	net.BroadcastMessage([]byte{3}, a)
	sched.Run()
	require.Len(t, b.received, 1)
	assert.Equal(t, []byte{3}, b.received[0])
}

func TestNodeIDsSorted(t *testing.T) {
	net, _, _ := newTestNetwork(DefaultConfig())
	for _, id := range []uint32{5, 1, 3} {
		net.Join(&stubNode{id: id})
	}
	assert.Equal(t, []uint32{1, 3, 5}, net.NodeIDs())
	assert.True(t, net.InRange(&stubNode{}, &stubNode{pos: mesh.Coordinates{X: 250}}))
}
