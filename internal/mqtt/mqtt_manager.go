package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lar-simulation/internal/commands"
	eb "lar-simulation/internal/eventBus"
)

const disconnectQuiesce = 250 // ms

// MQTTManager bridges one run to a broker: events out, commands in.
type MQTTManager struct {
	client mqtt.Client
	cfg    Config
	log    *slog.Logger
}

// New creates a manager for cfg. It does not connect.
func New(cfg Config, logger *slog.Logger) *MQTTManager {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	return newWithClient(mqtt.NewClient(opts), cfg, logger)
}

func newWithClient(client mqtt.Client, cfg Config, logger *slog.Logger) *MQTTManager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Format == "" {
		cfg.Format = eb.FormatJSON
	}
	return &MQTTManager{client: client, cfg: cfg, log: logger}
}

// Run connects, subscribes to the run's command topic and forwards every
// bus event to the events topic until ctx is cancelled.
func (m *MQTTManager) Run(ctx context.Context, runID string, bus *eb.EventBus, ctrl commands.Controller) error {
	if err := wait(ctx, m.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.cfg.Broker, err)
	}
	defer m.client.Disconnect(disconnectQuiesce)
	m.log.Info("[MQTT] connected", "broker", m.cfg.Broker, "run_id", runID)

	responses := ResponsesTopic(m.cfg.TopicPrefix, runID)
	respond := func(resp CommandResponse) {
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := m.Publish(ctx, responses, data); err != nil {
			m.log.Warn("[MQTT] response publish failed", "err", err)
		}
	}
	cmdTopic := CommandsTopic(m.cfg.TopicPrefix, runID)
	handler := ProcessCommandMessage(ctx, ctrl, bus, respond, m.log)
	if err := wait(ctx, m.client.Subscribe(cmdTopic, 1, handler)); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", cmdTopic, err)
	}

	events := bus.Subscribe()
	defer bus.Unsubscribe(events)
	return m.forward(ctx, events, EventsTopic(m.cfg.TopicPrefix, runID))
}

func (m *MQTTManager) forward(ctx context.Context, events <-chan eb.Event, topic string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			data, err := eb.Encode(m.cfg.Format, ev)
			if err != nil {
				return err
			}
			if err := m.Publish(ctx, topic, data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.log.Warn("[MQTT] event publish failed", "type", ev.Type, "err", err)
			}
		}
	}
}

// Publish publishes payload with QoS 0 and waits for the client to hand it off.
func (m *MQTTManager) Publish(ctx context.Context, topic string, payload []byte) error {
	return wait(ctx, m.client.Publish(topic, 0, false, payload))
}

// wait blocks until tok completes or ctx is done.
func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
