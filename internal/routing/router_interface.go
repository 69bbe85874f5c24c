package routing

import (
	"io"

	"lar-simulation/internal/packet"
)

// IRouter is what a node needs from its routing protocol.
type IRouter interface {
	// OnOutboundPacket is called for every data packet the node is about to
	// send or forward.
	OnOutboundPacket(pkt *packet.DataPacket, dest uint32) Verdict
	// OnLinkBroken reports that the hop to nextHop failed while pkt was in flight.
	OnLinkBroken(pkt *packet.DataPacket, nextHop uint32)
	OnControlPacketReceived(pkt packet.ControlPacket)
	PrintRoutingTable(w io.Writer)
	Stats() Stats
}

// Verdict tells the node what the router did with an outbound packet.
type Verdict int

const (
	// VerdictPassThrough leaves the packet to the node's own forwarding.
	VerdictPassThrough Verdict = iota
	VerdictSent
	VerdictBuffered
	VerdictDropped
)

func (v Verdict) String() string {
	switch v {
	case VerdictPassThrough:
		return "pass-through"
	case VerdictSent:
		return "sent"
	case VerdictBuffered:
		return "buffered"
	case VerdictDropped:
		return "dropped"
	}
	return "unknown"
}
