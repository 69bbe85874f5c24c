package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	eb "lar-simulation/internal/eventBus"
	"lar-simulation/internal/mesh"
	"lar-simulation/internal/metrics"
	"lar-simulation/internal/network"
	"lar-simulation/internal/node"
	"lar-simulation/internal/routing"
	"lar-simulation/internal/simulation"
)

var ErrStopped = errors.New("simulation stopped")

const (
	// paceTick is how often a paced run catches virtual time up with the wall clock.
	paceTick = 20 * time.Millisecond
	// positionSample is the virtual interval between MOVED_NODE updates of mobile nodes.
	positionSample = time.Second
)

type Option func(*Runner)

// WithClock sets the wall clock used to pace runs with a realtime factor.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

func WithRunID(id uuid.UUID) Option {
	return func(r *Runner) { r.runID = id }
}

// Summary aggregates per-node statistics at the end of a run.
type Summary struct {
	RunID   string        `json:"run_id"`
	Nodes   int           `json:"nodes"`
	Elapsed time.Duration `json:"elapsed"`
	Data    node.Stats    `json:"data"`
	Routing routing.Stats `json:"routing"`
}

// Runner owns a whole simulation: the scheduler, the medium and the nodes.
// Everything but Run, Dispatch and the command methods must be called on the
// simulation goroutine.
type Runner struct {
	sc    *Scenario
	runID uuid.UUID
	sched *simulation.Scheduler
	bus   *eb.EventBus
	net   mesh.INetwork
	coll  *metrics.Collector
	log   *slog.Logger
	clock clock.Clock
	rng   *rand.Rand

	nodes  map[uint32]*node.Node
	nextID uint32
	start  time.Time

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

func NewRunner(sc *Scenario, bus *eb.EventBus, coll *metrics.Collector, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		sc:     sc,
		runID:  uuid.New(),
		sched:  simulation.NewScheduler(simulation.Epoch),
		bus:    bus,
		coll:   coll,
		log:    logger,
		clock:  clock.New(),
		rng:    rand.New(rand.NewSource(sc.Seed)),
		nodes:  make(map[uint32]*node.Node),
		nextID: 1,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.sched.Now()
	r.net = network.NewNetwork(r.sched, sc.NetworkConfig(), bus, logger)
	return r
}

func (r *Runner) RunID() uuid.UUID                 { return r.runID }
func (r *Runner) Network() mesh.INetwork           { return r.net }
func (r *Runner) Scheduler() *simulation.Scheduler { return r.sched }

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Dispatch runs f on the simulation goroutine.
func (r *Runner) Dispatch(f func()) {
	r.sched.Dispatch(f)
}

// Node looks up a node. Simulation goroutine only.
func (r *Runner) Node(id uint32) (*node.Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// Setup places the scenario's nodes and schedules traffic and position
// sampling. Run calls it; tests may call it directly and drive the scheduler.
func (r *Runner) Setup() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	for _, c := range r.placements() {
		r.addNode(c)
	}
	r.log.Info("[sim] nodes placed", "count", len(r.nodes), "placement", r.sc.Nodes.Placement, "run_id", r.runID)

	rate := r.sc.Traffic.MsgPerNodePerMin / 60.0
	if rate > 0 {
		r.sched.AfterFunc(r.sc.Traffic.StartDelay, func() { r.scheduleTraffic(rate) })
	}
	if r.sc.Mobility.MaxSpeed > 0 {
		r.sched.AfterFunc(positionSample, r.samplePositions)
	}
}

// placements returns the start positions for the scenario's nodes.
func (r *Runner) placements() []mesh.Coordinates {
	count := r.sc.Nodes.Count
	side := r.sc.Area
	out := make([]mesh.Coordinates, 0, count)

	if r.sc.Nodes.Placement == PlacementUniform {
		for i := 0; i < count; i++ {
			out = append(out, mesh.Coordinates{X: r.rng.Float64() * side, Y: r.rng.Float64() * side})
		}
		return out
	}

	// ── grid ─────────────────────────────────────────────
	rows := int(math.Ceil(math.Sqrt(float64(count))))
	cols := rows
	step := 0.0
	if rows > 1 {
		step = side / float64(rows-1)
	}
	for row := 0; row < rows && len(out) < count; row++ {
		for col := 0; col < cols && len(out) < count; col++ {
			out = append(out, mesh.Coordinates{X: float64(col) * step, Y: float64(row) * step})
		}
	}
	return out
}

func (r *Runner) addNode(c mesh.Coordinates) *node.Node {
	id := r.nextID
	r.nextID++
	n := node.NewNode(id, c, r.sc.NodeConfig(), node.Deps{
		Scheduler: r.sched,
		Network:   r.net,
		Rand:      rand.New(rand.NewSource(r.sc.Seed + int64(id))),
		Bus:       r.bus,
		Logger:    r.log,
	})
	r.nodes[id] = n
	r.net.Join(n)
	return n
}

// scheduleTraffic draws exponential gaps so every node originates traffic
// as a Poisson process of the configured rate.
func (r *Runner) scheduleTraffic(perNodeRate float64) {
	r.emitRandomTraffic()
	total := perNodeRate * float64(len(r.nodes))
	if total <= 0 {
		return
	}
	gap := time.Duration(r.rng.ExpFloat64() / total * float64(time.Second))
	r.sched.AfterFunc(gap, func() { r.scheduleTraffic(perNodeRate) })
}

func (r *Runner) emitRandomTraffic() {
	ids := r.net.NodeIDs()
	if len(ids) < 2 {
		return
	}
	i := r.rng.Intn(len(ids))
	j := r.rng.Intn(len(ids) - 1)
	if j >= i {
		j++
	}
	from, to := ids[i], ids[j]
	if n, ok := r.nodes[from]; ok {
		n.SendData(to, []byte(r.sc.Traffic.Payload))
	}
}

func (r *Runner) samplePositions() {
	for _, id := range r.net.NodeIDs() {
		n, ok := r.nodes[id]
		if !ok || n.GetSpeed() == 0 {
			continue
		}
		pos := n.GetPosition()
		r.bus.Publish(eb.Event{Type: eb.EventMovedNode, NodeID: id, Timestamp: r.sched.Now(), X: pos.X, Y: pos.Y})
	}
	r.sched.AfterFunc(positionSample, r.samplePositions)
}

// Run executes the scenario until its duration has elapsed or ctx is
// cancelled. With a realtime factor virtual time is paced against the wall
// clock, otherwise the run goes as fast as possible.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	r.Setup()
	end := r.start.Add(r.sc.Duration)

	var err error
	if r.sc.RealtimeFactor > 0 {
		err = r.runPaced(ctx, end)
	} else {
		err = r.runFast(ctx, end)
	}

	r.finish()
	return err
}

func (r *Runner) runFast(ctx context.Context, end time.Time) error {
	for now := r.sched.Now(); now.Before(end); now = r.sched.Now() {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := now.Add(time.Second)
		if next.After(end) {
			next = end
		}
		r.sched.RunUntil(next)
	}
	return nil
}

func (r *Runner) runPaced(ctx context.Context, end time.Time) error {
	ticker := r.clock.Ticker(paceTick)
	defer ticker.Stop()
	wallStart := r.clock.Now()
	for {
		elapsed := time.Duration(float64(r.clock.Since(wallStart)) * r.sc.RealtimeFactor)
		target := r.start.Add(elapsed)
		if target.After(end) {
			target = end
		}
		r.sched.RunUntil(target)
		if !target.Before(end) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) finish() {
	s := r.Summary()
	r.log.Info("[sim] simulation finished",
		"run_id", s.RunID,
		"virtual_time", s.Elapsed,
		"originated", s.Data.Originated,
		"delivered", s.Data.Delivered,
		"requests", s.Routing.RequestsOriginated,
		"replies", s.Routing.RepliesOriginated,
		"errors", s.Routing.ErrorsOriginated,
		"dropped", s.Routing.PacketsDropped+s.Data.Dropped,
	)
	r.bus.Publish(eb.Event{Type: eb.EventSimulationFinished, Timestamp: r.sched.Now()})

	if file := r.sc.Logging.MetricsFile; file != "" && r.coll != nil {
		if err := r.coll.Flush(file); err != nil {
			r.log.Error("[sim] failed to write metrics", "file", file, "err", err)
		} else {
			r.log.Info("[sim] metrics written", "file", file)
		}
	}
}

// Summary adds up node and router statistics. Simulation goroutine only.
func (r *Runner) Summary() Summary {
	s := Summary{RunID: r.runID.String(), Nodes: len(r.nodes), Elapsed: r.sched.Now().Sub(r.start)}
	for _, n := range r.nodes {
		d := n.Stats()
		s.Data.Originated += d.Originated
		s.Data.Delivered += d.Delivered
		s.Data.Forwarded += d.Forwarded
		s.Data.Dropped += d.Dropped

		rs := n.Router().Stats()
		s.Routing.RequestsOriginated += rs.RequestsOriginated
		s.Routing.RequestsRelayed += rs.RequestsRelayed
		s.Routing.RequestsDiscarded += rs.RequestsDiscarded
		s.Routing.RepliesOriginated += rs.RepliesOriginated
		s.Routing.RepliesRelayed += rs.RepliesRelayed
		s.Routing.RoutesLearned += rs.RoutesLearned
		s.Routing.ErrorsOriginated += rs.ErrorsOriginated
		s.Routing.ErrorsRelayed += rs.ErrorsRelayed
		s.Routing.PacketsBuffered += rs.PacketsBuffered
		s.Routing.PacketsDropped += rs.PacketsDropped
		s.Routing.ProtocolViolations += rs.ProtocolViolations
		s.Routing.DiscoveriesAbandoned += rs.DiscoveriesAbandoned
	}
	return s
}

// call runs f on the simulation goroutine and waits for its result.
func (r *Runner) call(ctx context.Context, f func() error) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	res := make(chan error, 1)
	r.sched.Dispatch(func() { res <- f() })
	select {
	case err := <-res:
		return err
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateNode adds a node at (x, y) and returns its id.
func (r *Runner) CreateNode(ctx context.Context, x, y float64) (uint32, error) {
	var id uint32
	err := r.call(ctx, func() error {
		id = r.addNode(mesh.Coordinates{X: x, Y: y}).GetID()
		return nil
	})
	return id, err
}

func (r *Runner) RemoveNode(ctx context.Context, id uint32) error {
	return r.call(ctx, func() error {
		n, ok := r.nodes[id]
		if !ok {
			return fmt.Errorf("node %d: %w", id, network.ErrUnknownNode)
		}
		r.net.Leave(id)
		n.Stop()
		delete(r.nodes, id)
		return nil
	})
}

func (r *Runner) SendMessage(ctx context.Context, from, to uint32, msg string) error {
	if limit := MaxPayload(r.sc.Routing.MaxRouteLength); len(msg) > limit {
		return fmt.Errorf("message of %d bytes exceeds %d", len(msg), limit)
	}
	return r.call(ctx, func() error {
		n, ok := r.nodes[from]
		if !ok {
			return fmt.Errorf("sender %d: %w", from, network.ErrUnknownNode)
		}
		n.SendData(to, []byte(msg))
		return nil
	})
}

func (r *Runner) MoveNode(ctx context.Context, id uint32, x, y float64) error {
	return r.call(ctx, func() error {
		n, ok := r.nodes[id]
		if !ok {
			return fmt.Errorf("node %d: %w", id, network.ErrUnknownNode)
		}
		n.SetPosition(mesh.Coordinates{X: x, Y: y})
		return nil
	})
}

// Stats returns the run summary, read on the simulation goroutine.
// Once the run has ended the summary is read directly, nothing else touches
// the simulation state by then.
func (r *Runner) Stats(ctx context.Context) (Summary, error) {
	select {
	case <-r.done:
		return r.Summary(), nil
	default:
	}
	var s Summary
	err := r.call(ctx, func() error {
		s = r.Summary()
		return nil
	})
	if errors.Is(err, ErrStopped) {
		return r.Summary(), nil
	}
	return s, err
}
