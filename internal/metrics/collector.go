package metrics

import (
	"encoding/json"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	eb "lar-simulation/internal/eventBus"
)

type Counters struct {
	RunID               string            `json:"run_id"`
	TotalSent           uint64            `json:"total_sent"`
	TotalDelivered      uint64            `json:"total_delivered"`
	DeliveryRatio       float64           `json:"delivery_ratio"`
	TotalControlSent    uint64            `json:"total_control_sent"`
	ControlByType       map[string]uint64 `json:"control_by_type"`
	Dropped             uint64            `json:"dropped"`
	DroppedByReason     map[string]uint64 `json:"dropped_by_reason"`
	Collisions          uint64            `json:"collisions"`
	Buffered            uint64            `json:"buffered"`
	RouteDiscoveries    uint64            `json:"route_discoveries"`
	RoutesAdded         uint64            `json:"routes_added"`
	RoutesInvalidated   uint64            `json:"routes_invalidated"`
	LinkBreaks          uint64            `json:"link_breaks"`
	HopSum              uint64            `json:"hop_sum"`
	HopCount            uint64            `json:"hop_samples"`
	LatencySum          time.Duration     `json:"latency_sum_ns"`
	LatencyCount        uint64            `json:"latency_samples"`
	BufferWaitSum       time.Duration     `json:"buffer_wait_sum_ns"`
	BufferWaitCount     uint64            `json:"buffer_wait_samples"`
	ControlPerDelivered float64           `json:"control_per_delivered"`
}

type promMetrics struct {
	sent        prometheus.Counter
	delivered   prometheus.Counter
	control     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	discoveries prometheus.Counter
	linkBreaks  prometheus.Counter
	hops        prometheus.Histogram
	latency     prometheus.Histogram
	bufferWait  prometheus.Histogram
}

// Collector turns bus events into run totals. Attach it with
// bus.SubscribeFunc(c.Record) so no event is missed.
type Collector struct {
	mu sync.Mutex
	Counters

	sentAt map[uint32]time.Time // data packet id -> origination time
	reg    *prometheus.Registry
	prom   promMetrics
}

func NewCollector(runID string) *Collector {
	c := &Collector{
		Counters: Counters{
			RunID:           runID,
			ControlByType:   make(map[string]uint64),
			DroppedByReason: make(map[string]uint64),
		},
		sentAt: make(map[uint32]time.Time),
		reg:    prometheus.NewRegistry(),
	}
	c.prom = promMetrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lar", Name: "data_sent_total", Help: "Data packets originated.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lar", Name: "data_delivered_total", Help: "Data packets delivered to their destination.",
		}),
		control: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lar", Name: "control_sent_total", Help: "Routing control packets transmitted.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lar", Name: "dropped_total", Help: "Packets dropped.",
		}, []string{"reason"}),
		discoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lar", Name: "route_discoveries_total", Help: "Route requests originated.",
		}),
		linkBreaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lar", Name: "link_breaks_total", Help: "Failed data transmissions.",
		}),
		hops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lar", Name: "delivered_hops", Help: "Route length of delivered packets.",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lar", Name: "delivery_latency_seconds", Help: "Virtual time from origination to delivery.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		bufferWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lar", Name: "buffer_wait_seconds", Help: "Virtual time a packet waited for a route.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	c.reg.MustRegister(c.prom.sent, c.prom.delivered, c.prom.control, c.prom.dropped,
		c.prom.discoveries, c.prom.linkBreaks, c.prom.hops, c.prom.latency, c.prom.bufferWait)
	return c
}

// Registry exposes the collector's metrics for promhttp.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Attach subscribes the collector to bus.
func (c *Collector) Attach(bus *eb.EventBus) {
	bus.SubscribeFunc(c.Record)
}

func (c *Collector) Record(ev eb.Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case eb.EventMessageSent:
		c.TotalSent++
		c.sentAt[ev.PacketID] = ev.Timestamp
		c.prom.sent.Inc()
	case eb.EventMessageDelivered:
		c.TotalDelivered++
		c.HopSum += uint64(ev.Hops)
		c.HopCount++
		c.prom.delivered.Inc()
		c.prom.hops.Observe(float64(ev.Hops))
		if at, ok := c.sentAt[ev.PacketID]; ok {
			lat := ev.Timestamp.Sub(at)
			delete(c.sentAt, ev.PacketID)
			c.LatencySum += lat
			c.LatencyCount++
			c.prom.latency.Observe(lat.Seconds())
		}
	case eb.EventControlMessageSent:
		c.TotalControlSent++
		c.ControlByType[ev.PacketType]++
		c.prom.control.WithLabelValues(ev.PacketType).Inc()
	case eb.EventPacketDropped:
		c.Dropped++
		c.DroppedByReason[ev.Reason]++
		if ev.Reason == eb.ReasonCollision {
			c.Collisions++
		}
		c.prom.dropped.WithLabelValues(ev.Reason).Inc()
	case eb.EventPacketBuffered:
		c.Buffered++
	case eb.EventBufferReleased:
		c.BufferWaitSum += ev.Latency
		c.BufferWaitCount++
		c.prom.bufferWait.Observe(ev.Latency.Seconds())
	case eb.EventRouteDiscovery:
		c.RouteDiscoveries++
		c.prom.discoveries.Inc()
	case eb.EventAddRouteEntry:
		c.RoutesAdded++
	case eb.EventInvalidateRouteEntry:
		c.RoutesInvalidated++
	case eb.EventLinkBroken:
		c.LinkBreaks++
		c.prom.linkBreaks.Inc()
	}
}

// Snapshot returns a copy of the counters with the derived ratios filled in.
func (c *Collector) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.Counters
	out.ControlByType = maps.Clone(c.ControlByType)
	out.DroppedByReason = maps.Clone(c.DroppedByReason)
	if out.TotalSent > 0 {
		out.DeliveryRatio = float64(out.TotalDelivered) / float64(out.TotalSent)
	}
	if out.TotalDelivered > 0 {
		out.ControlPerDelivered = float64(out.TotalControlSent) / float64(out.TotalDelivered)
	}
	return out
}

func (c *Collector) Flush(file string) error {
	snap := c.Snapshot()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
