package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"lar-simulation/internal/mesh"
	"lar-simulation/internal/network"
	"lar-simulation/internal/node"
	"lar-simulation/internal/packet"
	"lar-simulation/internal/routing"
)

var ErrInvalidScenario = errors.New("invalid scenario")

const (
	PlacementGrid    = "grid"
	PlacementUniform = "uniform"
)

type NodeCfg struct {
	Count     int    `yaml:"count" json:"count"`
	Placement string `yaml:"placement" json:"placement"` // uniform | grid
}

type MobilityCfg struct {
	MinSpeed float64       `yaml:"min_speed" json:"min_speed"` // m/s
	MaxSpeed float64       `yaml:"max_speed" json:"max_speed"` // 0 keeps nodes static
	Pause    time.Duration `yaml:"pause" json:"pause"`
}

type RadioCfg struct {
	Range      float64       `yaml:"range" json:"range"`
	AirTime    time.Duration `yaml:"airtime" json:"airtime"`
	Collisions bool          `yaml:"collisions" json:"collisions"`
}

type RoutingCfg struct {
	MaxRouteLength int           `yaml:"max_route_length" json:"max_route_length"`
	RetryTimeout   time.Duration `yaml:"retry_timeout" json:"retry_timeout"`
	DupLifetime    time.Duration `yaml:"dup_lifetime" json:"dup_lifetime"`
	BufferCapacity int           `yaml:"buffer_capacity" json:"buffer_capacity"`
	MaxJitter      time.Duration `yaml:"max_jitter" json:"max_jitter"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
}

type TrafficCfg struct {
	MsgPerNodePerMin float64       `yaml:"msg_per_node_per_min" json:"msg_per_node_per_min"`
	Payload          string        `yaml:"payload" json:"payload"`
	StartDelay       time.Duration `yaml:"start_delay" json:"start_delay"`
}

type LogCfg struct {
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
}

type MQTTCfg struct {
	Broker      string `yaml:"broker" json:"broker"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
	ClientID    string `yaml:"client_id" json:"client_id"`
}

// Scenario describes one simulation run. Durations are Go duration strings
// in YAML ("30s") and nanoseconds in JSON.
type Scenario struct {
	Duration       time.Duration `yaml:"duration" json:"duration"`
	Seed           int64         `yaml:"seed" json:"seed"`
	Area           float64       `yaml:"area" json:"area"` // side of the square area in metres
	Nodes          NodeCfg       `yaml:"nodes" json:"nodes"`
	Mobility       MobilityCfg   `yaml:"mobility" json:"mobility"`
	Radio          RadioCfg      `yaml:"radio" json:"radio"`
	Routing        RoutingCfg    `yaml:"routing" json:"routing"`
	Traffic        TrafficCfg    `yaml:"traffic" json:"traffic"`
	RealtimeFactor float64       `yaml:"realtime_factor" json:"realtime_factor"` // 0 runs as fast as possible
	Logging        LogCfg        `yaml:"logging" json:"logging"`
	MQTT           MQTTCfg       `yaml:"mqtt" json:"mqtt"`
}

// DefaultScenario is a small static network used when no file is given and
// as the source of defaults for omitted fields.
func DefaultScenario() *Scenario {
	rc := routing.DefaultConfig()
	nc := network.DefaultConfig()
	return &Scenario{
		Duration: 5 * time.Minute,
		Seed:     1,
		Area:     1000,
		Nodes:    NodeCfg{Count: 25, Placement: PlacementGrid},
		Radio:    RadioCfg{Range: nc.Range, AirTime: nc.AirTime},
		Routing: RoutingCfg{
			MaxRouteLength: rc.MaxRouteLength,
			RetryTimeout:   rc.RetryTimeout,
			DupLifetime:    rc.DupLifetime,
			BufferCapacity: rc.BufferCapacity,
			MaxJitter:      rc.MaxJitter,
			MaxRetries:     rc.MaxRetries,
		},
		Traffic: TrafficCfg{MsgPerNodePerMin: 1, Payload: "hello", StartDelay: 5 * time.Second},
		MQTT:    MQTTCfg{TopicPrefix: "lar-sim"},
	}
}

func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := ParseScenario(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes YAML, falling back to JSON, applies defaults and
// validates the result.
func ParseScenario(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if yerr := yaml.Unmarshal(data, sc); yerr != nil {
		// fallback JSON
		sc = &Scenario{}
		if jerr := json.Unmarshal(data, sc); jerr != nil {
			return nil, fmt.Errorf("decode scenario: %w", multierr.Combine(yerr, jerr))
		}
	}
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// ApplyDefaults fills every zero field from DefaultScenario. Fields where
// zero is meaningful (seed, speeds, jitter, retries, realtime factor) are
// left alone.
func (sc *Scenario) ApplyDefaults() {
	d := DefaultScenario()
	if sc.Duration == 0 {
		sc.Duration = d.Duration
	}
	if sc.Area == 0 {
		sc.Area = d.Area
	}
	if sc.Nodes.Count == 0 {
		sc.Nodes.Count = d.Nodes.Count
	}
	if sc.Nodes.Placement == "" {
		sc.Nodes.Placement = d.Nodes.Placement
	}
	if sc.Radio.Range == 0 {
		sc.Radio.Range = d.Radio.Range
	}
	if sc.Radio.AirTime == 0 {
		sc.Radio.AirTime = d.Radio.AirTime
	}
	if sc.Routing.MaxRouteLength == 0 {
		sc.Routing.MaxRouteLength = d.Routing.MaxRouteLength
	}
	if sc.Routing.RetryTimeout == 0 {
		sc.Routing.RetryTimeout = d.Routing.RetryTimeout
	}
	if sc.Routing.DupLifetime == 0 {
		sc.Routing.DupLifetime = d.Routing.DupLifetime
	}
	if sc.Routing.BufferCapacity == 0 {
		sc.Routing.BufferCapacity = d.Routing.BufferCapacity
	}
	if sc.Traffic.Payload == "" {
		sc.Traffic.Payload = d.Traffic.Payload
	}
	if sc.MQTT.TopicPrefix == "" {
		sc.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
}

// Validate reports every problem at once.
func (sc *Scenario) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	check(sc.Duration > 0, "duration must be positive, got %s", sc.Duration)
	check(sc.Area > 0, "area must be positive, got %g", sc.Area)
	check(sc.Nodes.Count > 0, "nodes.count must be positive, got %d", sc.Nodes.Count)
	check(sc.Nodes.Placement == PlacementGrid || sc.Nodes.Placement == PlacementUniform,
		"nodes.placement must be %q or %q, got %q", PlacementGrid, PlacementUniform, sc.Nodes.Placement)
	check(sc.Mobility.MinSpeed >= 0 && sc.Mobility.MaxSpeed >= 0, "mobility speeds must not be negative")
	check(sc.Mobility.MinSpeed <= sc.Mobility.MaxSpeed || sc.Mobility.MaxSpeed == 0,
		"mobility.min_speed %g exceeds max_speed %g", sc.Mobility.MinSpeed, sc.Mobility.MaxSpeed)
	check(sc.Mobility.Pause >= 0, "mobility.pause must not be negative")
	check(sc.Radio.Range > 0, "radio.range must be positive, got %g", sc.Radio.Range)
	check(sc.Radio.AirTime >= 0, "radio.airtime must not be negative")
	check(sc.Routing.MaxRouteLength > 0 && sc.Routing.MaxRouteLength < 255,
		"routing.max_route_length must be in 1..254, got %d", sc.Routing.MaxRouteLength)
	check(sc.Routing.RetryTimeout > 0, "routing.retry_timeout must be positive")
	check(sc.Routing.DupLifetime > 0, "routing.dup_lifetime must be positive")
	check(sc.Routing.BufferCapacity > 0, "routing.buffer_capacity must be positive, got %d", sc.Routing.BufferCapacity)
	check(sc.Routing.MaxJitter >= 0, "routing.max_jitter must not be negative")
	check(sc.Routing.MaxRetries >= 0, "routing.max_retries must not be negative")
	check(sc.Traffic.MsgPerNodePerMin >= 0, "traffic.msg_per_node_per_min must not be negative")
	check(sc.Traffic.StartDelay >= 0, "traffic.start_delay must not be negative")
	limit := MaxPayload(sc.Routing.MaxRouteLength)
	check(len(sc.Traffic.Payload) <= limit,
		"traffic.payload of %d bytes does not fit a %d hop route (max %d)", len(sc.Traffic.Payload), sc.Routing.MaxRouteLength, limit)
	check(sc.RealtimeFactor >= 0, "realtime_factor must not be negative")

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, errs)
	}
	return nil
}

// MaxPayload is the largest payload a data packet can carry over a route of
// maxRouteLength hops.
func MaxPayload(maxRouteLength int) int {
	return packet.MaxPacketSize - packet.BaseHeaderSize - packet.DataHeaderSize - 4*(maxRouteLength+1)
}

func (sc *Scenario) RoutingConfig() routing.Config {
	return routing.Config{
		MaxRouteLength: sc.Routing.MaxRouteLength,
		RetryTimeout:   sc.Routing.RetryTimeout,
		DupLifetime:    sc.Routing.DupLifetime,
		BufferCapacity: sc.Routing.BufferCapacity,
		MaxJitter:      sc.Routing.MaxJitter,
		MaxRetries:     sc.Routing.MaxRetries,
	}
}

func (sc *Scenario) NetworkConfig() network.Config {
	return network.Config{Range: sc.Radio.Range, AirTime: sc.Radio.AirTime, Collisions: sc.Radio.Collisions}
}

func (sc *Scenario) NodeConfig() node.Config {
	return node.Config{
		Routing: sc.RoutingConfig(),
		Mobility: mesh.MobilityConfig{
			AreaSide: sc.Area,
			MinSpeed: sc.Mobility.MinSpeed,
			MaxSpeed: sc.Mobility.MaxSpeed,
			Pause:    sc.Mobility.Pause,
		},
	}
}
