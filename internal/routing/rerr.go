package routing

import (
	"slices"

	"lar-simulation/internal/packet"
)

// sendRERR reports the broken hop self -> nextHop back towards the source of
// pkt, walking the prefix of its route in reverse.
func (r *LARRouter) sendRERR(pkt *packet.DataPacket, nextHop uint32) {
	idx := slices.Index(pkt.Route, r.ownerID)
	if idx <= 0 {
		r.protocolViolation(packet.PKT_DATA, "relay not on the packet's route", "route", pkt.Route)
		return
	}

	hopsBack := idx + 1
	rerr := &packet.RouteError{
		Originator:   r.ownerID,
		Target:       pkt.Source,
		From:         r.ownerID,
		To:           nextHop,
		SegmentsLeft: uint8(hopsBack - 1),
		Path:         slices.Clone(pkt.Route[:hopsBack]),
	}
	prev := rerr.Path[idx-1]
	r.stats.ErrorsOriginated++
	r.log.Info("[RERR] link broken, notifying source", "source", pkt.Source, "broken_to", nextHop, "via", prev)
	r.unicast(rerr, prev)
}

func (r *LARRouter) handleRERR(in *packet.RouteError) {
	r.invalidateLink(in.From, in.To)

	if in.SegmentsLeft == 0 {
		r.protocolViolation(packet.PKT_RERR, "error past its final hop", "origin", in.Originator)
		return
	}
	if int(in.SegmentsLeft) >= len(in.Path) {
		r.protocolViolation(packet.PKT_RERR, "segments left beyond path", "segments_left", in.SegmentsLeft, "path", in.Path)
		return
	}

	rerr := *in
	rerr.Path = slices.Clone(in.Path)
	rerr.SegmentsLeft--
	seg := int(rerr.SegmentsLeft)

	if rerr.Path[seg] != r.ownerID {
		r.protocolViolation(packet.PKT_RERR, "not the expected hop", "expected", rerr.Path[seg], "path", rerr.Path)
		return
	}

	if rerr.Target == r.ownerID {
		r.log.Info("[RERR] route error reached source", "from", rerr.From, "to", rerr.To, "reporter", rerr.Originator)
		return
	}

	if seg == 0 {
		r.protocolViolation(packet.PKT_RERR, "error reached path start at wrong node", "target", rerr.Target)
		return
	}

	prev := rerr.Path[seg-1]
	r.stats.ErrorsRelayed++
	r.log.Debug("[RERR FORWARD] forwarding RERR", "to", rerr.Target, "via", prev, "segments_left", rerr.SegmentsLeft)
	r.unicast(&rerr, prev)
}
