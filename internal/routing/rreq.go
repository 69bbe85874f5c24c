package routing

import (
	"slices"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/packet"
)

// initiateRREQ starts (or restarts) discovery for dest. Whatever the cache
// still holds for dest is dropped, but its last location report is used to
// bound the request before that.
func (r *LARRouter) initiateRREQ(dest uint32) {
	now := r.sched.Now()
	hist := r.routeCache.History(dest)
	r.deleteRoutes(dest)

	self := r.pos.CurrentPosition(r.ownerID)
	zone, bounded := ComputeRequestZone(self, hist, now)

	r.seq++
	seq := r.seq
	rreq := &packet.RouteRequest{
		Originator: r.ownerID,
		Target:     dest,
		HopCount:   0,
		Seq:        seq,
		Flood:      !bounded,
		Zone:       zone,
		Path:       []uint32{r.ownerID},
	}

	r.markSeen(r.ownerID, seq)
	attempt := r.requests.Add(dest, seq)
	r.stats.RequestsOriginated++

	r.log.Info("[RREQ init] initiating RREQ", "dest", dest, "seq", seq, "flood", !bounded, "zone", zone, "attempt", attempt)
	r.publish(eventBus.Event{
		Type:        eventBus.EventRouteDiscovery,
		OtherNodeID: dest,
		PacketType:  packet.TypeName(packet.PKT_RREQ),
	})

	r.broadcastWithJitter(rreq)
	r.sched.AfterFunc(r.cfg.RetryTimeout, func() {
		r.retryTimerFired(dest, seq)
	})
}

// retryTimerFired ignores timers that belong to a request which has been
// answered or superseded.
func (r *LARRouter) retryTimerFired(dest uint32, seq uint16) {
	if r.stopped {
		return
	}
	cur, ok := r.requests.Seq(dest)
	if !ok || cur != seq {
		r.log.Debug("[RREQ retry] stale timer", "dest", dest, "seq", seq)
		return
	}
	r.OnRetryTimer(dest)
}

func (r *LARRouter) handleRREQ(in *packet.RouteRequest) {
	rreq := *in
	rreq.Path = slices.Clone(in.Path)
	rreq.HopCount++

	if len(rreq.Path) == 0 || len(rreq.Path) != int(rreq.HopCount) {
		r.discardRREQ(&rreq, "malformed path")
		return
	}

	if !rreq.Flood && !PointInZone(r.pos.CurrentPosition(r.ownerID), rreq.Zone) {
		r.discardRREQ(&rreq, "outside request zone")
		return
	}

	if int(rreq.HopCount) > r.cfg.MaxRouteLength {
		r.discardRREQ(&rreq, "route too long")
		return
	}

	r.seen.FlushExpired(r.sched.Now())
	if r.seen.Seen(rreq.Originator, rreq.Seq) {
		r.discardRREQ(&rreq, "duplicate")
		return
	}
	r.markSeen(rreq.Originator, rreq.Seq)

	if slices.Contains(rreq.Path, r.ownerID) {
		r.discardRREQ(&rreq, "already on path")
		return
	}

	if rreq.Target == r.ownerID {
		r.log.Info("[sim] RREQ arrived at destination", "origin", rreq.Originator, "seq", rreq.Seq, "hops", rreq.HopCount)
		r.sendRREP(&rreq)
		return
	}

	rreq.Path = append(rreq.Path, r.ownerID)
	r.stats.RequestsRelayed++
	r.log.Debug("[RREQ FORWARD] forwarding RREQ", "origin", rreq.Originator, "dest", rreq.Target, "seq", rreq.Seq, "hops", rreq.HopCount)
	r.broadcastWithJitter(&rreq)
}

func (r *LARRouter) discardRREQ(rreq *packet.RouteRequest, why string) {
	r.stats.RequestsDiscarded++
	r.log.Debug("[RREQ] discarding RREQ", "reason", why, "origin", rreq.Originator, "dest", rreq.Target, "seq", rreq.Seq)
}
