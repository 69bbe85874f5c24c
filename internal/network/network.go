package network

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"lar-simulation/internal/eventBus"
	"lar-simulation/internal/mesh"
)

var (
	ErrLinkBroken  = errors.New("link broken")
	ErrUnknownNode = errors.New("unknown node")
)

// Scheduler delivers transmissions once their airtime has elapsed.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

type Config struct {
	Range      float64       // maximum distance for direct comms
	AirTime    time.Duration // how long a single transmission is on air
	Collisions bool          // drop overlapping broadcasts from senders that can interfere
}

func DefaultConfig() Config {
	return Config{Range: 250, AirTime: 2 * time.Millisecond}
}

// Transmission is a broadcast currently on air.
type Transmission struct {
	Sender    uint32
	SenderPos mesh.Coordinates
	StartTime time.Time
	EndTime   time.Time
	Collided  bool
}

type networkImpl struct {
	mu    sync.RWMutex
	nodes map[uint32]mesh.INode

	cfg      Config
	sched    Scheduler
	eventBus *eventBus.EventBus
	log      *slog.Logger

	transmissions map[uint64]*Transmission
	txSeq         uint64
}

// NewNetwork creates the shared medium. Deliveries are scheduled on sched
// and run on the simulation goroutine.
func NewNetwork(sched Scheduler, cfg Config, bus *eventBus.EventBus, logger *slog.Logger) mesh.INetwork {
	if cfg.Range <= 0 {
		cfg.Range = DefaultConfig().Range
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &networkImpl{
		nodes:         make(map[uint32]mesh.INode),
		cfg:           cfg,
		sched:         sched,
		eventBus:      bus,
		log:           logger,
		transmissions: make(map[uint64]*Transmission),
	}
}

// Join adds a node to the network.
func (net *networkImpl) Join(n mesh.INode) {
	net.mu.Lock()
	net.nodes[n.GetID()] = n
	net.mu.Unlock()

	pos := n.GetPosition()
	net.log.Info("[sim] node joining network", "node", n.GetID(), "x", pos.X, "y", pos.Y)
	net.eventBus.Publish(eventBus.Event{
		Type:      eventBus.EventNodeJoined,
		NodeID:    n.GetID(),
		Timestamp: net.sched.Now(),
		X:         pos.X,
		Y:         pos.Y,
	})
}

// Leave removes a node from the network by ID.
func (net *networkImpl) Leave(nodeID uint32) {
	net.mu.Lock()
	nd, ok := net.nodes[nodeID]
	delete(net.nodes, nodeID)
	net.mu.Unlock()
	if !ok {
		return
	}

	net.log.Info("[sim] node leaving network", "node", nodeID)
	nd.PrintNodeDetails()
	net.eventBus.Publish(eventBus.Event{
		Type:      eventBus.EventNodeLeft,
		NodeID:    nodeID,
		Timestamp: net.sched.Now(),
	})
}

func (net *networkImpl) GetNode(nodeID uint32) (mesh.INode, error) {
	net.mu.RLock()
	defer net.mu.RUnlock()
	n, ok := net.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", nodeID, ErrUnknownNode)
	}
	return n, nil
}

// NodeIDs returns the ids of all nodes in ascending order.
func (net *networkImpl) NodeIDs() []uint32 {
	net.mu.RLock()
	ids := make([]uint32, 0, len(net.nodes))
	for id := range net.nodes {
		ids = append(ids, id)
	}
	net.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// For collisions, we treat partial overlap as collision.
func timesOverlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// If distance > 2*Range, no collision possible
func (net *networkImpl) sendersCanCollide(a, b mesh.Coordinates) bool {
	return a.DistanceTo(b) <= net.cfg.Range*2.0
}

// BroadcastMessage puts sendPacket on air. Every node in range of the sender
// when the transmission starts receives it once the airtime has passed.
// A sender that has left the network is silent.
func (net *networkImpl) BroadcastMessage(sendPacket []byte, sender mesh.INode) {
	senderID := sender.GetID()
	if !net.present(senderID) {
		net.log.Debug("[Network] broadcast from departed node dropped", "sender", senderID)
		return
	}
	buf := slices.Clone(sendPacket)
	senderPos := sender.GetPosition()

	var receivers []mesh.INode
	for _, id := range net.NodeIDs() {
		if id == senderID {
			continue
		}
		nd, err := net.GetNode(id)
		if err != nil {
			continue
		}
		if net.InRange(sender, nd) {
			receivers = append(receivers, nd)
		}
	}

	tx := net.startTransmission(senderID, senderPos)

	net.sched.AfterFunc(net.cfg.AirTime, func() {
		if tx != nil && net.endTransmission(tx) {
			net.log.Debug("[Collision Drop] broadcast dropped", "sender", senderID)
			net.eventBus.Publish(eventBus.Event{
				Type:      eventBus.EventPacketDropped,
				NodeID:    senderID,
				Reason:    eventBus.ReasonCollision,
				Timestamp: net.sched.Now(),
			})
			return
		}
		for _, nd := range receivers {
			if !net.present(nd.GetID()) {
				continue
			}
			nd.HandleMessage(slices.Clone(buf))
		}
	})
}

// startTransmission records a broadcast on air when collisions are modelled.
func (net *networkImpl) startTransmission(sender uint32, pos mesh.Coordinates) *Transmission {
	if !net.cfg.Collisions {
		return nil
	}
	now := net.sched.Now()
	tx := &Transmission{Sender: sender, SenderPos: pos, StartTime: now, EndTime: now.Add(net.cfg.AirTime)}

	net.mu.Lock()
	defer net.mu.Unlock()
	for _, ongoing := range net.transmissions {
		if timesOverlap(tx.StartTime, tx.EndTime, ongoing.StartTime, ongoing.EndTime) &&
			net.sendersCanCollide(pos, ongoing.SenderPos) {
			ongoing.Collided = true
			tx.Collided = true
			net.log.Debug("[Network] collision detected", "a", sender, "b", ongoing.Sender)
		}
	}
	net.txSeq++
	net.transmissions[net.txSeq] = tx
	return tx
}

// endTransmission takes tx off air and reports whether it collided.
func (net *networkImpl) endTransmission(tx *Transmission) bool {
	net.mu.Lock()
	defer net.mu.Unlock()
	for k, v := range net.transmissions {
		if v == tx {
			delete(net.transmissions, k)
			break
		}
	}
	return tx.Collided
}

// UnicastMessage sends to a single neighbour. It fails straight away when
// nextHop is unknown or out of range; otherwise delivery happens after the
// airtime.
func (net *networkImpl) UnicastMessage(sendPacket []byte, sender mesh.INode, nextHop uint32) error {
	if !net.present(sender.GetID()) {
		net.log.Debug("[Network] unicast from departed node dropped", "from", sender.GetID(), "to", nextHop)
		return fmt.Errorf("sender %d: %w", sender.GetID(), ErrUnknownNode)
	}
	receiver, err := net.GetNode(nextHop)
	if err != nil {
		net.log.Debug("[Network] unicast to unknown node", "from", sender.GetID(), "to", nextHop)
		return err
	}
	if !net.InRange(sender, receiver) {
		net.log.Debug("[Network] unicast out of range", "from", sender.GetID(), "to", nextHop)
		return fmt.Errorf("%d -> %d: %w", sender.GetID(), nextHop, ErrLinkBroken)
	}

	buf := slices.Clone(sendPacket)
	net.sched.AfterFunc(net.cfg.AirTime, func() {
		if !net.present(nextHop) {
			return
		}
		receiver.HandleMessage(buf)
	})
	return nil
}

func (net *networkImpl) present(id uint32) bool {
	net.mu.RLock()
	defer net.mu.RUnlock()
	_, ok := net.nodes[id]
	return ok
}

// InRange checks if a node is in range to receive a signal from another node
func (net *networkImpl) InRange(node1 mesh.INode, node2 mesh.INode) bool {
	return node1.GetPosition().DistanceTo(node2.GetPosition()) <= net.cfg.Range
}
