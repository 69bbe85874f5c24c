package routing

import (
	"slices"
	"time"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/packet"
)

// sendRREP answers a request that reached this node. rreq has already had
// its hop count incremented, so Path holds exactly HopCount nodes.
func (r *LARRouter) sendRREP(rreq *packet.RouteRequest) {
	hops := rreq.HopCount
	path := make([]uint32, 0, len(rreq.Path)+1)
	path = append(path, rreq.Path...)
	path = append(path, r.ownerID)

	rrep := &packet.RouteReply{
		Originator:   r.ownerID,
		Target:       rreq.Originator,
		SegmentsLeft: hops,
		Velocity:     r.pos.CurrentSpeed(r.ownerID),
		Position:     r.pos.CurrentPosition(r.ownerID),
		Timestamp:    r.sched.Now().UnixNano(),
		Path:         path,
	}
	nextHop := path[hops-1]
	r.stats.RepliesOriginated++
	r.log.Info("[RREP] sending RREP", "to", rreq.Originator, "via", nextHop, "hops", hops, "path", path)
	r.unicastWithJitter(rrep, nextHop)
}

func (r *LARRouter) handleRREP(in *packet.RouteReply) {
	if in.SegmentsLeft == 0 {
		r.protocolViolation(packet.PKT_RREP, "reply past its final hop", "origin", in.Originator)
		return
	}
	if int(in.SegmentsLeft) >= len(in.Path) {
		r.protocolViolation(packet.PKT_RREP, "segments left beyond path", "segments_left", in.SegmentsLeft, "path", in.Path)
		return
	}

	rrep := *in
	rrep.Path = slices.Clone(in.Path)
	rrep.SegmentsLeft--
	seg := int(rrep.SegmentsLeft)

	if rrep.Path[seg] != r.ownerID {
		r.protocolViolation(packet.PKT_RREP, "not the expected hop", "expected", rrep.Path[seg], "path", rrep.Path)
		return
	}

	if rrep.Target == r.ownerID {
		r.acceptRREP(&rrep)
		return
	}

	if seg == 0 {
		r.protocolViolation(packet.PKT_RREP, "reply reached path start at wrong node", "target", rrep.Target)
		return
	}

	nextHop := rrep.Path[seg-1]
	r.stats.RepliesRelayed++
	r.log.Debug("[RREP FORWARD] forwarding RREP", "origin", rrep.Originator, "to", rrep.Target, "via", nextHop, "segments_left", rrep.SegmentsLeft)
	r.unicastWithJitter(&rrep, nextHop)
}

// acceptRREP installs the route carried by a reply addressed to this node.
func (r *LARRouter) acceptRREP(rrep *packet.RouteReply) {
	dest := rrep.Originator
	if _, ok := r.routeCache.Lookup(dest); ok {
		r.log.Debug("[RREP] route already known, discarding reply", "dest", dest, "path", rrep.Path)
		return
	}

	r.requests.Remove(dest)
	entry := r.routeCache.Insert(dest, rrep.Path[1:], rrep.Velocity, rrep.Position, time.Unix(0, rrep.Timestamp))
	r.stats.RoutesLearned++
	r.log.Info("[RREP] route established", "dest", dest, "path", entry.Path)
	r.publish(eventBus.Event{
		Type:              eventBus.EventAddRouteEntry,
		OtherNodeID:       dest,
		RoutingTableEntry: routeEntry(entry),
		Hops:              len(entry.Path),
	})

	r.drainSendBuffer(dest, entry)
}
