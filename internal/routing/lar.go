package routing

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/mesh"
	"lar-simulation/internal/packet"
)

// Scheduler is the virtual clock of the simulation. Callbacks run on the
// simulation goroutine, one at a time.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

// Positioning reports where a node is and how fast it moves.
type Positioning interface {
	CurrentPosition(nodeID uint32) mesh.Position
	CurrentSpeed(nodeID uint32) float64
}

// Transport is the node side of the radio. Link failures on unicast are
// reported back through OnLinkBroken, never synchronously.
type Transport interface {
	UnicastControl(pkt packet.ControlPacket, nextHop uint32)
	BroadcastControl(pkt packet.ControlPacket)
	SendDataViaRoute(pkt *packet.DataPacket, route []uint32)
}

// Env bundles the collaborators a router is wired to.
type Env struct {
	Scheduler   Scheduler
	Positioning Positioning
	Transport   Transport
	Rand        *rand.Rand
	Bus         *eventBus.EventBus
	Logger      *slog.Logger
}

// Stats counts protocol activity on one node.
type Stats struct {
	RequestsOriginated   uint64 `json:"requests_originated"`
	RequestsRelayed      uint64 `json:"requests_relayed"`
	RequestsDiscarded    uint64 `json:"requests_discarded"`
	RepliesOriginated    uint64 `json:"replies_originated"`
	RepliesRelayed       uint64 `json:"replies_relayed"`
	RoutesLearned        uint64 `json:"routes_learned"`
	ErrorsOriginated     uint64 `json:"errors_originated"`
	ErrorsRelayed        uint64 `json:"errors_relayed"`
	PacketsBuffered      uint64 `json:"packets_buffered"`
	PacketsDropped       uint64 `json:"packets_dropped"`
	ProtocolViolations   uint64 `json:"protocol_violations"`
	DiscoveriesAbandoned uint64 `json:"discoveries_abandoned"`
}

// LARRouter runs Location-Aided Routing (scheme 1) with source routes for a
// single node. It is not safe for concurrent use; every entry point must be
// called from the simulation goroutine.
type LARRouter struct {
	ownerID uint32
	cfg     Config

	sched    Scheduler
	pos      Positioning
	tx       Transport
	rng      *rand.Rand
	eventBus *eventBus.EventBus
	log      *slog.Logger

	routeCache *RouteCache
	seen       *SeenCache
	requests   *RequestTable
	sendBuffer *SendBuffer

	seq      uint16
	flushGen uint64
	stopped  bool
	stats    Stats
}

// NewLARRouter constructs a router for a specific node
func NewLARRouter(ownerID uint32, cfg Config, env Env) *LARRouter {
	cfg = cfg.withDefaults()
	rng := env.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(ownerID)))
	}
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LARRouter{
		ownerID:    ownerID,
		cfg:        cfg,
		sched:      env.Scheduler,
		pos:        env.Positioning,
		tx:         env.Transport,
		rng:        rng,
		eventBus:   env.Bus,
		log:        logger.With("node", ownerID),
		routeCache: NewRouteCache(ownerID),
		seen:       NewSeenCache(cfg.DupLifetime),
		requests:   NewRequestTable(),
		sendBuffer: NewSendBuffer(cfg.BufferCapacity),
	}
}

// OnOutboundPacket decides what happens to a data packet leaving this node.
// Packets for this node and packets being forwarded for someone else are
// left to the caller.
func (r *LARRouter) OnOutboundPacket(pkt *packet.DataPacket, dest uint32) Verdict {
	if r.stopped {
		return VerdictDropped
	}
	if dest == r.ownerID || pkt.Source != r.ownerID {
		return VerdictPassThrough
	}

	if entry, ok := r.routeCache.Lookup(dest); ok {
		r.sendViaRoute(pkt, entry)
		return VerdictSent
	}

	if !r.requests.Has(dest) {
		r.log.Info("[sim] no route, initiating discovery", "dest", dest)
		r.initiateRREQ(dest)
	}
	if !r.bufferPacket(pkt) {
		return VerdictDropped
	}
	return VerdictBuffered
}

// OnLinkBroken handles a unicast data transmission that did not reach nextHop.
func (r *LARRouter) OnLinkBroken(pkt *packet.DataPacket, nextHop uint32) {
	if r.stopped {
		return
	}
	r.log.Warn("[LINK] transmission failed", "next_hop", nextHop, "packet_id", pkt.PacketID, "dest", pkt.Dest)
	r.publish(eventBus.Event{
		Type:        eventBus.EventLinkBroken,
		OtherNodeID: nextHop,
		PacketID:    pkt.PacketID,
		PacketType:  packet.TypeName(packet.PKT_DATA),
	})

	if pkt.Source == r.ownerID {
		retry := pkt.Clone()
		retry.Route = nil
		retry.SegmentsLeft = 0
		r.bufferPacket(retry)
		// the cache may still hold the route that just failed
		if _, stale := r.routeCache.Lookup(pkt.Dest); stale || !r.requests.Has(pkt.Dest) {
			r.initiateRREQ(pkt.Dest)
		}
		r.invalidateLink(r.ownerID, nextHop)
		return
	}

	r.invalidateLink(r.ownerID, nextHop)
	r.sendRERR(pkt, nextHop)
}

// OnControlPacketReceived dispatches a decoded routing packet.
func (r *LARRouter) OnControlPacketReceived(pkt packet.ControlPacket) {
	if r.stopped {
		return
	}
	switch p := pkt.(type) {
	case *packet.RouteRequest:
		r.handleRREQ(p)
	case *packet.RouteReply:
		r.handleRREP(p)
	case *packet.RouteError:
		r.handleRERR(p)
	default:
		r.log.Warn("[sim] unknown control packet", "kind", pkt.Kind())
	}
}

// OnRetryTimer re-runs discovery for dest unless a valid route showed up in
// the meantime.
func (r *LARRouter) OnRetryTimer(dest uint32) {
	if r.stopped {
		return
	}
	if _, ok := r.routeCache.Lookup(dest); ok {
		r.log.Debug("[RREQ retry] route already known", "dest", dest)
		return
	}
	if r.cfg.MaxRetries > 0 && r.requests.Attempts(dest) > r.cfg.MaxRetries {
		r.abandonDiscovery(dest)
		return
	}
	r.log.Info("[RREQ retry] no reply, rediscovering", "dest", dest, "attempt", r.requests.Attempts(dest)+1)
	r.initiateRREQ(dest)
}

// OnFlushDuplicateCache expires old entries of the duplicate cache and keeps
// the flush timer running while anything is left.
func (r *LARRouter) OnFlushDuplicateCache() {
	n := r.seen.FlushExpired(r.sched.Now())
	if n > 0 {
		r.log.Debug("[sim] flushed duplicate cache", "expired", n, "remaining", r.seen.Len())
	}
	if r.seen.Len() > 0 {
		r.armFlush()
		return
	}
	r.flushGen++
}

// Stop silences the router once its node has left the network. Pending
// timers still fire but do nothing, outstanding discoveries are dropped and
// buffered packets are discarded.
func (r *LARRouter) Stop() {
	if r.stopped {
		return
	}
	r.stopped = true
	r.flushGen++
	for _, dest := range r.requests.Destinations() {
		r.abandonDiscovery(dest)
	}
	r.log.Info("[sim] router stopped")
}

// Stopped reports whether Stop has been called.
func (r *LARRouter) Stopped() bool {
	return r.stopped
}

func (r *LARRouter) Stats() Stats {
	return r.stats
}

// Routes returns a snapshot of the route cache, newest first.
func (r *LARRouter) Routes() []RouteCacheEntry {
	return r.routeCache.Entries()
}

// PendingPackets is the number of packets waiting for a route.
func (r *LARRouter) PendingPackets() int {
	return r.sendBuffer.Len()
}

// Outstanding reports whether a discovery for dest is in progress.
func (r *LARRouter) Outstanding(dest uint32) bool {
	return r.requests.Has(dest)
}

func (r *LARRouter) PrintRoutingTable(w io.Writer) {
	fmt.Fprintf(w, "Node %d route cache:\n", r.ownerID)
	for _, e := range r.routeCache.Entries() {
		state := "valid"
		if !e.Valid {
			state = "invalid"
		}
		fmt.Fprintf(w, "  dest=%d path=%v %s pos=(%d,%d) v=%.2f\n",
			e.Destination, e.Path, state, e.Position.X, e.Position.Y, e.Velocity)
	}
	fmt.Fprintf(w, "  pending=%d outstanding=%d seen=%d\n",
		r.sendBuffer.Len(), r.requests.Len(), r.seen.Len())
}

func (r *LARRouter) sendViaRoute(pkt *packet.DataPacket, entry *RouteCacheEntry) {
	route := make([]uint32, 0, len(entry.Path)+1)
	route = append(route, r.ownerID)
	route = append(route, entry.Path...)
	r.tx.SendDataViaRoute(pkt, route)
}

func (r *LARRouter) bufferPacket(pkt *packet.DataPacket) bool {
	now := r.sched.Now()
	if !r.sendBuffer.Enqueue(pkt.Dest, pkt, now) {
		r.stats.PacketsDropped++
		r.log.Warn("[sim] send buffer full, dropping packet", "dest", pkt.Dest, "packet_id", pkt.PacketID)
		r.publish(eventBus.Event{
			Type:        eventBus.EventPacketDropped,
			OtherNodeID: pkt.Dest,
			PacketID:    pkt.PacketID,
			PacketType:  packet.TypeName(packet.PKT_DATA),
			Reason:      eventBus.ReasonBufferFull,
		})
		return false
	}
	r.stats.PacketsBuffered++
	r.publish(eventBus.Event{
		Type:        eventBus.EventPacketBuffered,
		OtherNodeID: pkt.Dest,
		PacketID:    pkt.PacketID,
		PacketType:  packet.TypeName(packet.PKT_DATA),
	})
	return true
}

// drainSendBuffer sends every packet queued for dest along entry.
func (r *LARRouter) drainSendBuffer(dest uint32, entry *RouteCacheEntry) {
	now := r.sched.Now()
	n := 0
	for {
		pkt, queuedAt, ok := r.sendBuffer.Dequeue(dest)
		if !ok {
			break
		}
		n++
		waited := now.Sub(queuedAt)
		r.log.Debug("[sim] releasing buffered packet", "dest", dest, "packet_id", pkt.PacketID, "waited", waited)
		r.publish(eventBus.Event{
			Type:        eventBus.EventBufferReleased,
			OtherNodeID: dest,
			PacketID:    pkt.PacketID,
			PacketType:  packet.TypeName(packet.PKT_DATA),
			Latency:     waited,
		})
		r.sendViaRoute(pkt, entry)
	}
	if n > 0 {
		r.log.Info("[sim] drained send buffer", "dest", dest, "packets", n)
	}
}

// abandonDiscovery gives up on dest and drops what was waiting for it.
func (r *LARRouter) abandonDiscovery(dest uint32) {
	r.requests.Remove(dest)
	r.stats.DiscoveriesAbandoned++
	dropped := 0
	for {
		pkt, _, ok := r.sendBuffer.Dequeue(dest)
		if !ok {
			break
		}
		dropped++
		r.stats.PacketsDropped++
		r.publish(eventBus.Event{
			Type:        eventBus.EventPacketDropped,
			OtherNodeID: dest,
			PacketID:    pkt.PacketID,
			PacketType:  packet.TypeName(packet.PKT_DATA),
			Reason:      eventBus.ReasonNoRoute,
		})
	}
	r.log.Warn("[RREQ retry] giving up on destination", "dest", dest, "retries", r.cfg.MaxRetries, "dropped", dropped)
}

func (r *LARRouter) deleteRoutes(dest uint32) {
	for _, e := range r.routeCache.Delete(dest) {
		r.publish(eventBus.Event{
			Type:              eventBus.EventRemoveRouteEntry,
			OtherNodeID:       dest,
			RoutingTableEntry: routeEntry(e),
		})
	}
}

func (r *LARRouter) invalidateLink(from, to uint32) {
	for _, e := range r.routeCache.InvalidateThroughLink(from, to) {
		r.log.Info("[RERR] invalidated route", "dest", e.Destination, "path", e.Path, "from", from, "to", to)
		r.publish(eventBus.Event{
			Type:              eventBus.EventInvalidateRouteEntry,
			OtherNodeID:       e.Destination,
			RoutingTableEntry: routeEntry(e),
		})
	}
}

func (r *LARRouter) markSeen(originator uint32, seq uint16) {
	wasEmpty := r.seen.Len() == 0
	r.seen.MarkSeen(originator, seq, r.sched.Now())
	if wasEmpty {
		r.armFlush()
	}
}

// armFlush schedules the next duplicate cache flush. Arming again
// supersedes any flush already pending.
func (r *LARRouter) armFlush() {
	r.flushGen++
	gen := r.flushGen
	r.sched.AfterFunc(r.cfg.DupLifetime, func() {
		if gen == r.flushGen {
			r.OnFlushDuplicateCache()
		}
	})
}

func (r *LARRouter) jitter() time.Duration {
	if r.cfg.MaxJitter <= 0 {
		return 0
	}
	return time.Duration(r.rng.Int63n(int64(r.cfg.MaxJitter)))
}

func (r *LARRouter) broadcastWithJitter(pkt packet.ControlPacket) {
	r.sched.AfterFunc(r.jitter(), func() {
		if r.stopped {
			return
		}
		r.publishControl(pkt, packet.BROADCAST_ADDR)
		r.tx.BroadcastControl(pkt)
	})
}

func (r *LARRouter) unicastWithJitter(pkt packet.ControlPacket, nextHop uint32) {
	r.sched.AfterFunc(r.jitter(), func() {
		if r.stopped {
			return
		}
		r.unicast(pkt, nextHop)
	})
}

func (r *LARRouter) unicast(pkt packet.ControlPacket, nextHop uint32) {
	r.publishControl(pkt, nextHop)
	r.tx.UnicastControl(pkt, nextHop)
}

// protocolViolation drops a control packet that cannot be processed.
func (r *LARRouter) protocolViolation(kind uint8, msg string, args ...any) {
	r.stats.ProtocolViolations++
	r.log.Warn("[sim] protocol violation: "+msg, append([]any{"type", packet.TypeName(kind)}, args...)...)
	r.publish(eventBus.Event{
		Type:       eventBus.EventPacketDropped,
		PacketType: packet.TypeName(kind),
		Reason:     eventBus.ReasonProtocolViolate,
	})
}

func (r *LARRouter) publishControl(pkt packet.ControlPacket, nextHop uint32) {
	r.publish(eventBus.Event{
		Type:        eventBus.EventControlMessageSent,
		OtherNodeID: nextHop,
		PacketType:  packet.TypeName(pkt.Kind()),
	})
}

// publish fills in the node and where it was when the event happened.
func (r *LARRouter) publish(e eventBus.Event) {
	if r.eventBus == nil {
		return
	}
	e.NodeID = r.ownerID
	e.Timestamp = r.sched.Now()
	if r.pos != nil {
		p := r.pos.CurrentPosition(r.ownerID)
		e.X, e.Y = float64(p.X), float64(p.Y)
	}
	r.eventBus.Publish(e)
}

func routeEntry(e *RouteCacheEntry) *eventBus.RouteEntry {
	return &eventBus.RouteEntry{
		Destination: e.Destination,
		Path:        slices.Clone(e.Path),
		Valid:       e.Valid,
	}
}
