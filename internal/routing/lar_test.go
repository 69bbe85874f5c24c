package routing

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/mesh"
	"lar-simulation/internal/packet"
)

const (
	nodeA uint32 = 1
	nodeB uint32 = 2
	nodeD uint32 = 3
)

func onlyRREQ(t *testing.T, out []sent) *packet.RouteRequest {
	t.Helper()
	require.Len(t, out, 1)
	require.Equal(t, sentBroadcast, out[0].kind)
	rreq, ok := out[0].ctrl.(*packet.RouteRequest)
	require.True(t, ok, "expected a route request, got %T", out[0].ctrl)
	return rreq
}

// installRoute runs a discovery on h for dest and answers it with path.
func installRoute(t *testing.T, h *harness, dest uint32, path []uint32) {
	t.Helper()
	h.router.OnOutboundPacket(dataPkt(100, path[0], dest), dest)
	onlyRREQ(t, h.take())
	h.router.OnControlPacketReceived(&packet.RouteReply{
		Originator:   dest,
		Target:       path[0],
		SegmentsLeft: 1,
		Path:         path,
		Position:     mesh.Position{X: 100, Y: 100},
		Velocity:     2,
		Timestamp:    h.sched.Now().UnixNano(),
	})
	h.take()
}

func TestOutboundPassThrough(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	assert.Equal(t, VerdictPassThrough, h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeB), nodeB))
	assert.Equal(t, VerdictPassThrough, h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD))
	assert.Empty(t, h.take())
}

func TestDiscoveryEndToEnd(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())

	verdict := h.router.OnOutboundPacket(dataPkt(7, nodeA, nodeD), nodeD)
	assert.Equal(t, VerdictBuffered, verdict)

	rreq := onlyRREQ(t, h.take())
	want := &packet.RouteRequest{
		Originator: nodeA,
		Target:     nodeD,
		HopCount:   0,
		Seq:        1,
		Flood:      true,
		Path:       []uint32{nodeA},
	}
	if diff := cmp.Diff(want, rreq); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, h.router.Outstanding(nodeD))
	assert.Equal(t, 1, h.router.PendingPackets())

	// a second packet waits for the same discovery
	assert.Equal(t, VerdictBuffered, h.router.OnOutboundPacket(dataPkt(8, nodeA, nodeD), nodeD))
	assert.Empty(t, h.take())

	// B relays D's reply, leaving one segment
	h.sched.Advance(500 * time.Millisecond)
	h.router.OnControlPacketReceived(&packet.RouteReply{
		Originator:   nodeD,
		Target:       nodeA,
		SegmentsLeft: 1,
		Path:         []uint32{nodeA, nodeB, nodeD},
	})

	out := h.take()
	require.Len(t, out, 2)
	for i, s := range out {
		require.Equal(t, sentData, s.kind)
		assert.Equal(t, uint32(7+i), s.data.PacketID)
		assert.Equal(t, []uint32{nodeA, nodeB, nodeD}, s.route)
	}

	routes := h.router.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, []uint32{nodeB, nodeD}, routes[0].Path)
	assert.True(t, routes[0].Valid)
	assert.False(t, h.router.Outstanding(nodeD))
	assert.Equal(t, 0, h.router.PendingPackets())

	released := h.eventsOf(eventBus.EventBufferReleased)
	require.Len(t, released, 2)
	assert.Equal(t, 500*time.Millisecond, released[0].Latency)
	require.Len(t, h.eventsOf(eventBus.EventAddRouteEntry), 1)

	// with a route in the cache traffic goes straight out
	assert.Equal(t, VerdictSent, h.router.OnOutboundPacket(dataPkt(9, nodeA, nodeD), nodeD))
	out = h.take()
	require.Len(t, out, 1)
	assert.Equal(t, sentData, out[0].kind)
}

func TestDuplicateReplyDiscarded(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	installRoute(t, h, nodeD, []uint32{nodeA, nodeB, nodeD})

	h.router.OnControlPacketReceived(&packet.RouteReply{
		Originator:   nodeD,
		Target:       nodeA,
		SegmentsLeft: 1,
		Path:         []uint32{nodeA, 5, nodeD},
	})
	routes := h.router.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, []uint32{nodeB, nodeD}, routes[0].Path)
}

func TestRequestRelay(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	in := &packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 4, Flood: true, Path: []uint32{nodeA}}

	h.router.OnControlPacketReceived(in)
	fwd := onlyRREQ(t, h.take())
	assert.Equal(t, uint8(1), fwd.HopCount)
	assert.Equal(t, []uint32{nodeA, nodeB}, fwd.Path)
	assert.Equal(t, uint16(4), fwd.Seq)
	// the received packet is left untouched
	assert.Equal(t, []uint32{nodeA}, in.Path)
	assert.Equal(t, uint8(0), in.HopCount)

	h.router.OnControlPacketReceived(in)
	assert.Empty(t, h.take())
	assert.Equal(t, uint64(1), h.router.Stats().RequestsRelayed)
	assert.Equal(t, uint64(1), h.router.Stats().RequestsDiscarded)

	// another sequence from the same originator is new
	in2 := *in
	in2.Seq = 5
	h.router.OnControlPacketReceived(&in2)
	onlyRREQ(t, h.take())
}

func TestRequestOutsideZoneDiscarded(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	h.pos[nodeB] = mesh.Position{X: 50, Y: 50}

	zone := mesh.Zone{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 1, Zone: zone, Path: []uint32{nodeA}})
	assert.Empty(t, h.take())

	// the same request flooded is relayed
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 1, Flood: true, Zone: zone, Path: []uint32{nodeA}})
	onlyRREQ(t, h.take())
}

func TestRequestInsideZoneRelayed(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	h.pos[nodeB] = mesh.Position{X: 11, Y: 11}
	zone := mesh.Zone{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 1, Zone: zone, Path: []uint32{nodeA}})
	onlyRREQ(t, h.take())
}

func TestRequestRouteLengthLimit(t *testing.T) {
	h := newHarness(t, 50, testConfig())
	path := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: 1, Target: 99, HopCount: 9, Seq: 1, Flood: true, Path: path})
	assert.Empty(t, h.take())

	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: 1, Target: 99, HopCount: 8, Seq: 2, Flood: true, Path: path[:9]})
	fwd := onlyRREQ(t, h.take())
	assert.Equal(t, uint8(9), fwd.HopCount)
}

func TestRequestLoopAndMalformedDiscarded(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, HopCount: 1, Seq: 1, Flood: true, Path: []uint32{nodeA, nodeB}})
	assert.Empty(t, h.take())

	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, HopCount: 3, Seq: 2, Flood: true, Path: []uint32{nodeA}})
	assert.Empty(t, h.take())
	assert.Equal(t, uint64(2), h.router.Stats().RequestsDiscarded)
}

func TestOwnRequestEchoIgnored(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD)
	rreq := onlyRREQ(t, h.take())

	echo := *rreq
	echo.HopCount = 1
	echo.Path = []uint32{nodeA, nodeB}
	h.router.OnControlPacketReceived(&echo)
	assert.Empty(t, h.take())
}

func TestDestinationReplies(t *testing.T) {
	h := newHarness(t, nodeD, testConfig())
	h.pos[nodeD] = mesh.Position{X: 30, Y: 40}
	h.speed[nodeD] = 1.25

	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, HopCount: 1, Seq: 9, Flood: true, Path: []uint32{nodeA, nodeB}})
	out := h.take()
	require.Len(t, out, 1)
	require.Equal(t, sentUnicast, out[0].kind)
	assert.Equal(t, nodeB, out[0].nextHop)

	want := &packet.RouteReply{
		Originator:   nodeD,
		Target:       nodeA,
		SegmentsLeft: 2,
		Velocity:     1.25,
		Position:     mesh.Position{X: 30, Y: 40},
		Timestamp:    h.sched.Now().UnixNano(),
		Path:         []uint32{nodeA, nodeB, nodeD},
	}
	if diff := cmp.Diff(want, out[0].ctrl); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(1), h.router.Stats().RepliesOriginated)
}

func TestDestinationNeighbourReply(t *testing.T) {
	h := newHarness(t, nodeD, testConfig())
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 1, Flood: true, Path: []uint32{nodeA}})
	out := h.take()
	require.Len(t, out, 1)
	assert.Equal(t, nodeA, out[0].nextHop)
	rrep := out[0].ctrl.(*packet.RouteReply)
	assert.Equal(t, uint8(1), rrep.SegmentsLeft)
	assert.Equal(t, []uint32{nodeA, nodeD}, rrep.Path)
}

func TestReplyRelay(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	in := &packet.RouteReply{Originator: nodeD, Target: nodeA, SegmentsLeft: 2, Path: []uint32{nodeA, nodeB, nodeD}}
	h.router.OnControlPacketReceived(in)

	out := h.take()
	require.Len(t, out, 1)
	assert.Equal(t, sentUnicast, out[0].kind)
	assert.Equal(t, nodeA, out[0].nextHop)
	assert.Equal(t, uint8(1), out[0].ctrl.(*packet.RouteReply).SegmentsLeft)
	assert.Equal(t, uint8(2), in.SegmentsLeft)
	// relays learn nothing
	assert.Empty(t, h.router.Routes())
}

func TestReplyProtocolViolations(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	h.router.OnControlPacketReceived(&packet.RouteReply{Originator: nodeD, Target: nodeA, SegmentsLeft: 2, Path: []uint32{nodeA, 5, nodeD}})
	h.router.OnControlPacketReceived(&packet.RouteReply{Originator: nodeD, Target: nodeA, SegmentsLeft: 0, Path: []uint32{nodeA, nodeB, nodeD}})
	h.router.OnControlPacketReceived(&packet.RouteReply{Originator: nodeD, Target: nodeA, SegmentsLeft: 7, Path: []uint32{nodeA, nodeB, nodeD}})
	h.router.OnControlPacketReceived(&packet.RouteReply{Originator: nodeD, Target: nodeA, SegmentsLeft: 1, Path: []uint32{nodeB, nodeD}})
	assert.Empty(t, h.take())
	assert.Equal(t, uint64(4), h.router.Stats().ProtocolViolations)
	assert.Len(t, h.eventsOf(eventBus.EventPacketDropped), 4)
}

func TestLinkFailureAtRelaySendsError(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	pkt := &packet.DataPacket{PacketID: 3, Source: nodeA, Dest: nodeD, Route: []uint32{nodeA, nodeB, nodeD}}

	h.router.OnLinkBroken(pkt, nodeD)
	out := h.take()
	require.Len(t, out, 1)
	assert.Equal(t, sentUnicast, out[0].kind)
	assert.Equal(t, nodeA, out[0].nextHop)

	want := &packet.RouteError{
		Originator:   nodeB,
		Target:       nodeA,
		From:         nodeB,
		To:           nodeD,
		SegmentsLeft: 1,
		Path:         []uint32{nodeA, nodeB},
	}
	if diff := cmp.Diff(want, out[0].ctrl); diff != "" {
		t.Errorf("error mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, h.router.PendingPackets())
	assert.Len(t, h.eventsOf(eventBus.EventLinkBroken), 1)
}

func TestErrorInvalidatesSourceRoutes(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	installRoute(t, h, nodeD, []uint32{nodeA, nodeB, nodeD})
	installRoute(t, h, 4, []uint32{nodeA, nodeB, nodeD, 4})
	installRoute(t, h, 5, []uint32{nodeA, 6, 5})

	h.router.OnControlPacketReceived(&packet.RouteError{
		Originator: nodeB, Target: nodeA, From: nodeB, To: nodeD, SegmentsLeft: 1, Path: []uint32{nodeA, nodeB},
	})
	assert.Empty(t, h.take())

	valid := map[uint32]bool{}
	for _, e := range h.router.Routes() {
		valid[e.Destination] = e.Valid
	}
	assert.Equal(t, map[uint32]bool{nodeD: false, 4: false, 5: true}, valid)
	assert.Len(t, h.eventsOf(eventBus.EventInvalidateRouteEntry), 2)
}

func TestErrorRelay(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	h.router.OnControlPacketReceived(&packet.RouteError{
		Originator: nodeD, Target: nodeA, From: nodeD, To: 4, SegmentsLeft: 2, Path: []uint32{nodeA, nodeB, nodeD},
	})
	out := h.take()
	require.Len(t, out, 1)
	assert.Equal(t, nodeA, out[0].nextHop)
	assert.Equal(t, uint8(1), out[0].ctrl.(*packet.RouteError).SegmentsLeft)
	assert.Equal(t, uint64(1), h.router.Stats().ErrorsRelayed)
}

func TestErrorAtWrongNodeStillInvalidates(t *testing.T) {
	h := newHarness(t, 9, testConfig())
	installRoute(t, h, nodeD, []uint32{9, nodeB, nodeD})

	h.router.OnControlPacketReceived(&packet.RouteError{
		Originator: nodeB, Target: nodeA, From: nodeB, To: nodeD, SegmentsLeft: 1, Path: []uint32{nodeA, nodeB},
	})
	assert.Empty(t, h.take())
	assert.Equal(t, uint64(1), h.router.Stats().ProtocolViolations)
	_, ok := h.router.routeCache.Lookup(nodeD)
	assert.False(t, ok)
}

func TestLinkFailureAtSourceRediscovers(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	installRoute(t, h, nodeD, []uint32{nodeA, nodeB, nodeD})
	h.sched.Advance(5 * time.Second)

	pkt := &packet.DataPacket{PacketID: 11, Source: nodeA, Dest: nodeD, SegmentsLeft: 2, Route: []uint32{nodeA, nodeB, nodeD}, Payload: []byte("hello")}
	h.router.OnLinkBroken(pkt, nodeB)

	rreq := onlyRREQ(t, h.take())
	assert.Equal(t, uint16(2), rreq.Seq)
	// the last reply put D at (100,100) moving at 2 units/s, 5s ago
	assert.False(t, rreq.Flood)
	assert.Equal(t, mesh.Zone{MinX: 0, MinY: 0, MaxX: 110, MaxY: 110}, rreq.Zone)

	assert.Empty(t, h.router.Routes())
	assert.True(t, h.router.Outstanding(nodeD))
	assert.Equal(t, 1, h.router.PendingPackets())

	// the buffered copy is independent of the failed packet
	pkt.Payload[0] = 'X'
	h.router.OnControlPacketReceived(&packet.RouteReply{Originator: nodeD, Target: nodeA, SegmentsLeft: 1, Path: []uint32{nodeA, 6, nodeD}})
	out := h.take()
	require.Len(t, out, 1)
	assert.Equal(t, []uint32{nodeA, 6, nodeD}, out[0].route)
	assert.Equal(t, []byte("hello"), out[0].data.Payload)
}

func TestRetryAfterRouteIsNoop(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	installRoute(t, h, nodeD, []uint32{nodeA, nodeB, nodeD})

	h.sched.Advance(3 * time.Second)
	h.router.OnRetryTimer(nodeD)
	assert.Empty(t, h.take())
	assert.Equal(t, uint64(1), h.router.Stats().RequestsOriginated)
}

func TestRetryRediscovers(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD)
	first := onlyRREQ(t, h.take())

	h.sched.Advance(2 * time.Second)
	second := onlyRREQ(t, h.take())
	assert.Equal(t, first.Seq+1, second.Seq)

	h.sched.Advance(2 * time.Second)
	third := onlyRREQ(t, h.take())
	assert.Equal(t, second.Seq+1, third.Seq)
	assert.Equal(t, 1, h.router.PendingPackets())
}

func TestRetryTimersDoNotMultiply(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD)
	onlyRREQ(t, h.take())

	// a manual retry supersedes the pending timer
	h.sched.Advance(time.Second)
	h.router.OnRetryTimer(nodeD)
	onlyRREQ(t, h.take())

	h.sched.Advance(time.Second) // first timer, now stale
	assert.Empty(t, h.take())
	h.sched.Advance(time.Second)
	onlyRREQ(t, h.take())
}

func TestRetryLimitAbandonsDiscovery(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	h := newHarness(t, nodeA, cfg)
	h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD)
	h.router.OnOutboundPacket(dataPkt(2, nodeA, nodeD), nodeD)
	onlyRREQ(t, h.take())

	h.sched.Advance(2 * time.Second)
	onlyRREQ(t, h.take())

	h.sched.Advance(2 * time.Second)
	assert.Empty(t, h.take())
	assert.False(t, h.router.Outstanding(nodeD))
	assert.Equal(t, 0, h.router.PendingPackets())
	assert.Equal(t, uint64(1), h.router.Stats().DiscoveriesAbandoned)

	dropped := h.eventsOf(eventBus.EventPacketDropped)
	require.Len(t, dropped, 2)
	assert.Equal(t, eventBus.ReasonNoRoute, dropped[0].Reason)

	// new traffic starts over
	assert.Equal(t, VerdictBuffered, h.router.OnOutboundPacket(dataPkt(3, nodeA, nodeD), nodeD))
	onlyRREQ(t, h.take())
}

func TestBufferFullDrops(t *testing.T) {
	cfg := testConfig()
	cfg.BufferCapacity = 2
	h := newHarness(t, nodeA, cfg)

	assert.Equal(t, VerdictBuffered, h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD))
	assert.Equal(t, VerdictBuffered, h.router.OnOutboundPacket(dataPkt(2, nodeA, 4), 4))
	assert.Equal(t, VerdictDropped, h.router.OnOutboundPacket(dataPkt(3, nodeA, nodeD), nodeD))
	assert.Len(t, h.take(), 2)
	assert.Equal(t, 2, h.router.PendingPackets())

	dropped := h.eventsOf(eventBus.EventPacketDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, eventBus.ReasonBufferFull, dropped[0].Reason)
	assert.Equal(t, uint32(3), dropped[0].PacketID)
}

func TestSequenceWraps(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	h.router.seq = 0xFFFF
	h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD)
	rreq := onlyRREQ(t, h.take())
	assert.Equal(t, uint16(0), rreq.Seq)
}

func TestWrappedSequenceStillSuppressed(t *testing.T) {
	h := newHarness(t, nodeB, testConfig())
	rreq := func() *packet.RouteRequest {
		return &packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 0, Flood: true, Path: []uint32{nodeA}}
	}
	h.router.OnControlPacketReceived(rreq())
	require.Len(t, h.take(), 1)

	// nodeA wrapped past 0xFFFF and reuses seq 0 well inside the lifetime
	h.sched.Advance(5 * time.Second)
	h.router.OnControlPacketReceived(rreq())
	assert.Empty(t, h.take())
	assert.Equal(t, uint64(1), h.router.Stats().RequestsRelayed)
	assert.Equal(t, uint64(1), h.router.Stats().RequestsDiscarded)

	// once the lifetime has run out the pair is new again
	h.sched.Advance(30 * time.Second)
	h.router.OnControlPacketReceived(rreq())
	assert.Len(t, h.take(), 1)
	assert.Equal(t, uint64(2), h.router.Stats().RequestsRelayed)
}

func TestStopSilencesRouter(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	assert.Equal(t, VerdictBuffered, h.router.OnOutboundPacket(dataPkt(1, nodeA, nodeD), nodeD))
	onlyRREQ(t, h.take())

	h.router.Stop()
	assert.True(t, h.router.Stopped())
	assert.False(t, h.router.Outstanding(nodeD))
	assert.Zero(t, h.router.PendingPackets())
	assert.Equal(t, uint64(1), h.router.Stats().DiscoveriesAbandoned)

	h.sched.Advance(time.Minute)
	assert.Empty(t, h.take())
	assert.Equal(t, uint64(1), h.router.Stats().RequestsOriginated)

	assert.Equal(t, VerdictDropped, h.router.OnOutboundPacket(dataPkt(2, nodeA, nodeD), nodeD))
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeB, Target: nodeA, Seq: 1, Flood: true, Path: []uint32{nodeB}})
	assert.Empty(t, h.take())
}

func TestDuplicateCacheFlushTimer(t *testing.T) {
	cfg := testConfig()
	cfg.DupLifetime = 10 * time.Second
	h := newHarness(t, nodeB, cfg)
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 1, Flood: true, Path: []uint32{nodeA}})
	h.take()
	assert.Equal(t, 1, h.router.seen.Len())

	// seq 1 expired at 10s and is dropped before the lookup
	h.sched.Advance(12 * time.Second)
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 2, Flood: true, Path: []uint32{nodeA}})
	h.take()
	assert.Equal(t, 1, h.router.seen.Len())

	h.sched.Advance(20 * time.Second)
	assert.Equal(t, 0, h.router.seen.Len())
	assert.Equal(t, 0, h.sched.Pending())
}

func TestJitterDelaysBroadcast(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, nodeB, cfg)
	h.router.OnControlPacketReceived(&packet.RouteRequest{Originator: nodeA, Target: nodeD, Seq: 1, Flood: true, Path: []uint32{nodeA}})
	h.settle()
	assert.Empty(t, h.out)

	h.sched.Advance(cfg.MaxJitter)
	onlyRREQ(t, h.take())
}

func TestPrintRoutingTable(t *testing.T) {
	h := newHarness(t, nodeA, testConfig())
	installRoute(t, h, nodeD, []uint32{nodeA, nodeB, nodeD})
	var buf bytes.Buffer
	h.router.PrintRoutingTable(&buf)
	assert.Contains(t, buf.String(), "dest=3 path=[2 3] valid")
}
