package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lar-simulation/internal/commands"
	eb "lar-simulation/internal/eventBus"
)

const commandTimeout = 5 * time.Second

// ProcessCommandMessage handles messages arriving on the commands topic:
// it runs the command against ctrl and reports the outcome on respond.
func ProcessCommandMessage(ctx context.Context, ctrl commands.Controller, bus *eb.EventBus, respond func(CommandResponse), logger *slog.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var cmd commands.Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			logger.Warn("[MQTT] invalid command payload", "topic", msg.Topic(), "err", err)
			respond(CommandResponse{OK: false, Error: err.Error()})
			return
		}

		bus.Publish(eb.Event{
			Type:      eb.EventCommandReceived,
			NodeID:    cmd.NodeID,
			Payload:   "Command: " + cmd.Command,
			Timestamp: time.Now(),
		})

		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		result, err := commands.Execute(cctx, ctrl, cmd)
		if err != nil {
			logger.Warn("[MQTT] command failed", "command", cmd.Command, "err", err)
			respond(CommandResponse{Command: cmd.Command, OK: false, Error: err.Error()})
			return
		}
		logger.Info("[MQTT] command executed", "command", cmd.Command, "result", result)
		respond(CommandResponse{Command: cmd.Command, OK: true, Result: result})
	}
}
