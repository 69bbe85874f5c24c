package node

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/mesh"
	"lar-simulation/internal/packet"
	"lar-simulation/internal/routing"
)

// linkFailureDelay separates a failed unicast from the router's reaction so
// the router never re-enters itself while draining its send buffer.
const linkFailureDelay = time.Microsecond

// Config is the per-node configuration.
type Config struct {
	Routing  routing.Config
	Mobility mesh.MobilityConfig
}

// Deps are the shared simulation services a node is wired to.
type Deps struct {
	Scheduler routing.Scheduler
	Network   mesh.INetwork
	Rand      *rand.Rand
	Bus       *eventBus.EventBus
	Logger    *slog.Logger
}

// Stats counts data plane activity.
type Stats struct {
	Originated uint64 `json:"originated"`
	Delivered  uint64 `json:"delivered"`
	Forwarded  uint64 `json:"forwarded"`
	Dropped    uint64 `json:"dropped"`
}

// Node is a simulated radio node. It runs the data plane, encodes and decodes
// packets, and hands routing decisions to its LAR router. All methods except
// the getters must be called on the simulation goroutine.
type Node struct {
	id       uint32
	mobility *mesh.Waypoint
	sched    routing.Scheduler
	network  mesh.INetwork
	router   *routing.LARRouter
	rng      *rand.Rand
	eventBus *eventBus.EventBus
	log      *slog.Logger
	stats    Stats
}

var _ mesh.INode = (*Node)(nil)
var _ routing.Transport = (*Node)(nil)
var _ routing.Positioning = (*Node)(nil)

// NewNode creates a node at start. It does not join the network.
func NewNode(id uint32, start mesh.Coordinates, cfg Config, deps Deps) *Node {
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(id)))
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		id:       id,
		mobility: mesh.NewWaypoint(start, cfg.Mobility, rng, deps.Scheduler.Now()),
		sched:    deps.Scheduler,
		network:  deps.Network,
		rng:      rng,
		eventBus: deps.Bus,
		log:      logger.With("node", id),
	}
	n.router = routing.NewLARRouter(id, cfg.Routing, routing.Env{
		Scheduler:   deps.Scheduler,
		Positioning: n,
		Transport:   n,
		Rand:        rng,
		Bus:         deps.Bus,
		Logger:      logger,
	})
	n.log.Debug("[sim] created node", "x", start.X, "y", start.Y)
	return n
}

// GetID returns the node's ID.
func (n *Node) GetID() uint32 {
	return n.id
}

func (n *Node) GetPosition() mesh.Coordinates {
	return n.mobility.PositionAt(n.sched.Now())
}

// SetPosition teleports the node and pins it there.
func (n *Node) SetPosition(coord mesh.Coordinates) {
	n.mobility.MoveTo(coord, n.sched.Now())
	n.log.Info("[sim] node moved", "x", coord.X, "y", coord.Y)
	n.publish(eventBus.Event{Type: eventBus.EventMovedNode})
}

func (n *Node) GetSpeed() float64 {
	return n.mobility.SpeedAt(n.sched.Now())
}

// CurrentPosition implements routing.Positioning for this node.
func (n *Node) CurrentPosition(uint32) mesh.Position {
	return n.GetPosition().Grid()
}

func (n *Node) CurrentSpeed(uint32) float64 {
	return n.GetSpeed()
}

func (n *Node) Router() *routing.LARRouter {
	return n.router
}

// Stop silences the node after it has left the network.
func (n *Node) Stop() {
	n.router.Stop()
}

func (n *Node) Stats() Stats {
	return n.stats
}

// SendData originates a data packet to destID.
func (n *Node) SendData(destID uint32, payload []byte) {
	pkt := &packet.DataPacket{
		PacketID: n.rng.Uint32() | 1,
		Source:   n.id,
		Dest:     destID,
		Payload:  payload,
	}
	n.stats.Originated++
	n.publish(eventBus.Event{
		Type:        eventBus.EventMessageSent,
		OtherNodeID: destID,
		PacketID:    pkt.PacketID,
		PacketType:  packet.TypeName(packet.PKT_DATA),
		Payload:     string(payload),
	})

	if destID == n.id {
		n.deliver(pkt)
		return
	}
	verdict := n.router.OnOutboundPacket(pkt, destID)
	n.log.Debug("[sim] data handed to router", "dest", destID, "packet_id", pkt.PacketID, "verdict", verdict)
}

// HandleMessage processes a packet received from the medium.
func (n *Node) HandleMessage(receivedPacket []byte) {
	bh, p, err := packet.Parse(receivedPacket)
	if err != nil {
		n.log.Warn("[sim] failed to decode packet", "err", err)
		return
	}
	if bh.DestNodeID != n.id && bh.DestNodeID != packet.BROADCAST_ADDR {
		return
	}

	switch pkt := p.(type) {
	case *packet.DataPacket:
		n.handleData(pkt)
	case packet.ControlPacket:
		n.log.Debug("[sim] received control packet", "type", packet.TypeName(bh.PacketType), "from", bh.SrcNodeID)
		n.router.OnControlPacketReceived(pkt)
	default:
		n.log.Warn("[sim] unexpected packet", "type", bh.PacketType, "from", bh.SrcNodeID)
	}
}

// handleData delivers or forwards a source routed packet. SegmentsLeft is
// the number of hops still to go after the one that brought the packet here.
func (n *Node) handleData(pkt *packet.DataPacket) {
	idx := len(pkt.Route) - 1 - int(pkt.SegmentsLeft)
	if idx < 1 || pkt.Route[idx] != n.id {
		n.drop(pkt, eventBus.ReasonProtocolViolate)
		n.log.Warn("[sim] data packet not addressed to this hop", "route", pkt.Route, "segments_left", pkt.SegmentsLeft)
		return
	}
	if idx == len(pkt.Route)-1 {
		n.deliver(pkt)
		return
	}

	pkt.SegmentsLeft--
	if v := n.router.OnOutboundPacket(pkt, pkt.Dest); v != routing.VerdictPassThrough {
		return
	}
	n.stats.Forwarded++
	nextHop := pkt.Route[idx+1]
	n.log.Debug("[sim] forwarding data", "dest", pkt.Dest, "via", nextHop, "packet_id", pkt.PacketID)
	n.transmitData(pkt, nextHop)
}

func (n *Node) deliver(pkt *packet.DataPacket) {
	n.stats.Delivered++
	hops := 0
	if len(pkt.Route) > 0 {
		hops = len(pkt.Route) - 1
	}
	n.log.Info("[sim] data delivered", "source", pkt.Source, "packet_id", pkt.PacketID, "hops", hops, "payload", string(pkt.Payload))
	n.publish(eventBus.Event{
		Type:        eventBus.EventMessageDelivered,
		OtherNodeID: pkt.Source,
		PacketID:    pkt.PacketID,
		PacketType:  packet.TypeName(packet.PKT_DATA),
		Payload:     string(pkt.Payload),
		Hops:        hops,
	})
}

// SendDataViaRoute implements routing.Transport. route starts with this node.
func (n *Node) SendDataViaRoute(pkt *packet.DataPacket, route []uint32) {
	if len(route) < 2 || route[0] != n.id {
		n.drop(pkt, eventBus.ReasonNoRoute)
		n.log.Warn("[sim] unusable source route", "route", route)
		return
	}
	pkt.Route = route
	pkt.SegmentsLeft = uint8(len(route) - 2)
	n.log.Debug("[sim] sending data", "dest", pkt.Dest, "route", route, "packet_id", pkt.PacketID)
	n.transmitData(pkt, route[1])
}

// transmitData unicasts pkt and reports a broken link to the router.
func (n *Node) transmitData(pkt *packet.DataPacket, nextHop uint32) {
	buf, _, err := pkt.Marshal(n.id, nextHop)
	if err != nil {
		n.drop(pkt, eventBus.ReasonEncode)
		n.log.Error("[sim] failed to encode data packet", "err", err)
		return
	}
	if err := n.network.UnicastMessage(buf, n, nextHop); err != nil {
		n.log.Info("[sim] data transmission failed", "next_hop", nextHop, "err", err)
		n.sched.AfterFunc(linkFailureDelay, func() {
			n.router.OnLinkBroken(pkt, nextHop)
		})
	}
}

// UnicastControl implements routing.Transport.
func (n *Node) UnicastControl(pkt packet.ControlPacket, nextHop uint32) {
	buf, _, err := pkt.Marshal(n.id, nextHop, n.rng.Uint32()|1)
	if err != nil {
		n.log.Error("[sim] failed to encode control packet", "type", packet.TypeName(pkt.Kind()), "err", err)
		n.publish(eventBus.Event{Type: eventBus.EventPacketDropped, PacketType: packet.TypeName(pkt.Kind()), Reason: eventBus.ReasonEncode})
		return
	}
	// only data packets trigger route repair, a lost reply is covered by the retry timer
	if err := n.network.UnicastMessage(buf, n, nextHop); err != nil {
		n.log.Info("[sim] control transmission failed", "type", packet.TypeName(pkt.Kind()), "next_hop", nextHop, "err", err)
		n.publish(eventBus.Event{Type: eventBus.EventPacketDropped, OtherNodeID: nextHop, PacketType: packet.TypeName(pkt.Kind()), Reason: eventBus.ReasonLinkBroken})
	}
}

// BroadcastControl implements routing.Transport.
func (n *Node) BroadcastControl(pkt packet.ControlPacket) {
	buf, _, err := pkt.Marshal(n.id, packet.BROADCAST_ADDR, n.rng.Uint32()|1)
	if err != nil {
		n.log.Error("[sim] failed to encode control packet", "type", packet.TypeName(pkt.Kind()), "err", err)
		n.publish(eventBus.Event{Type: eventBus.EventPacketDropped, PacketType: packet.TypeName(pkt.Kind()), Reason: eventBus.ReasonEncode})
		return
	}
	n.network.BroadcastMessage(buf, n)
}

func (n *Node) drop(pkt *packet.DataPacket, reason string) {
	n.stats.Dropped++
	n.publish(eventBus.Event{
		Type:        eventBus.EventPacketDropped,
		OtherNodeID: pkt.Dest,
		PacketID:    pkt.PacketID,
		PacketType:  packet.TypeName(packet.PKT_DATA),
		Reason:      reason,
	})
}

func (n *Node) publish(e eventBus.Event) {
	e.NodeID = n.id
	e.Timestamp = n.sched.Now()
	pos := n.GetPosition()
	e.X, e.Y = pos.X, pos.Y
	n.eventBus.Publish(e)
}

// PrintNodeDetails prints the details of a node in a nicely formatted way
func (n *Node) PrintNodeDetails() {
	n.WriteDetails(os.Stdout)
}

func (n *Node) WriteDetails(w io.Writer) {
	pos := n.GetPosition()
	fmt.Fprintln(w, "====================================")
	fmt.Fprintln(w, "Node Details:")
	fmt.Fprintf(w, "  ID:          %d\n", n.id)
	fmt.Fprintf(w, "  Coordinates: (X: %.2f, Y: %.2f)\n", pos.X, pos.Y)
	fmt.Fprintf(w, "  Speed:       %.2f\n", n.GetSpeed())
	fmt.Fprintf(w, "  Data:        originated=%d delivered=%d forwarded=%d dropped=%d\n",
		n.stats.Originated, n.stats.Delivered, n.stats.Forwarded, n.stats.Dropped)
	fmt.Fprintln(w, "  Routing Table:")
	n.router.PrintRoutingTable(w)
	fmt.Fprintln(w, "====================================")
}
