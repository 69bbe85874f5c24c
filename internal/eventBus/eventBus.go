package eventBus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventNodeJoined           EventType = "NODE_JOINED"
	EventNodeLeft             EventType = "NODE_LEFT"
	EventMessageSent          EventType = "MESSAGE_SENT"
	EventMessageDelivered     EventType = "MESSAGE_DELIVERED"
	EventAddRouteEntry        EventType = "ADD_ROUTE_ENTRY"
	EventMovedNode            EventType = "MOVED_NODE"
	EventRemoveRouteEntry     EventType = "REMOVED_ROUTE_ENTRY"
	EventInvalidateRouteEntry EventType = "INVALIDATED_ROUTE_ENTRY"
	EventRouteDiscovery       EventType = "ROUTE_DISCOVERY"
	EventControlMessageSent   EventType = "CONTROL_MESSAGE_SENT"
	EventPacketDropped        EventType = "PACKET_DROPPED"
	EventPacketBuffered       EventType = "PACKET_BUFFERED"
	EventBufferReleased       EventType = "BUFFER_RELEASED"
	EventLinkBroken           EventType = "LINK_BROKEN"
	EventCommandReceived      EventType = "COMMAND_RECEIVED"
	EventSimulationFinished   EventType = "SIMULATION_FINISHED"
)

// Drop reasons carried in Event.Reason.
const (
	ReasonBufferFull      = "buffer_full"
	ReasonEncode          = "encode"
	ReasonNoRoute         = "no_route"
	ReasonProtocolViolate = "protocol_violation"
	ReasonLinkBroken      = "link_broken"
	ReasonCollision       = "collision"
)

// RouteEntry represents a cached source route.
type RouteEntry struct {
	Destination uint32   `json:"destination" msgpack:"destination"`
	Path        []uint32 `json:"path" msgpack:"path"`
	Valid       bool     `json:"valid" msgpack:"valid"`
}

// Event holds details that the front end and the metrics collector need.
type Event struct {
	ID                uuid.UUID     `json:"id" msgpack:"id"`
	Type              EventType     `json:"type" msgpack:"type"`
	NodeID            uint32        `json:"node_id" msgpack:"node_id"`
	OtherNodeID       uint32        `json:"other_node_id,omitempty" msgpack:"other_node_id,omitempty"`
	PacketID          uint32        `json:"packet_id,omitempty" msgpack:"packet_id,omitempty"`
	PacketType        string        `json:"packet_type,omitempty" msgpack:"packet_type,omitempty"`
	RoutingTableEntry *RouteEntry   `json:"routing_table,omitempty" msgpack:"routing_table,omitempty"`
	Payload           string        `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Reason            string        `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Hops              int           `json:"hops,omitempty" msgpack:"hops,omitempty"`
	Latency           time.Duration `json:"latency,omitempty" msgpack:"latency,omitempty"`
	Timestamp         time.Time     `json:"timestamp" msgpack:"timestamp"`
	X                 float64       `json:"x" msgpack:"x"`
	Y                 float64       `json:"y" msgpack:"y"`
}

// EventBus manages a set of subscribers and publishes events to them.
// Channel subscribers may miss events when they fall behind; handlers
// registered with SubscribeFunc run inline and never miss one.
type EventBus struct {
	subscribers []chan Event
	handlers    []func(Event)
	mu          sync.RWMutex
	log         *slog.Logger
}

// NewEventBus creates a new EventBus instance.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subscribers: make([]chan Event, 0),
		log:         logger,
	}
}

// Publish sends an event to all subscribers. A nil bus discards the event.
func (eb *EventBus) Publish(e Event) {
	if eb == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, h := range eb.handlers {
		h(e)
	}
	for _, sub := range eb.subscribers {
		// Use a non-blocking send in case a subscriber is busy.
		select {
		case sub <- e:
		default:
			eb.log.Debug("dropping event: subscriber channel is full", "type", e.Type)
		}
	}
}

// Subscribe returns a new channel that will receive published events.
func (eb *EventBus) Subscribe() chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan Event, 256)
	eb.subscribers = append(eb.subscribers, ch)
	return ch
}

// Unsubscribe removes ch and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// SubscribeFunc registers a synchronous handler. It runs on the publisher's
// goroutine and must not publish.
func (eb *EventBus) SubscribeFunc(h func(Event)) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers = append(eb.handlers, h)
}
