package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"lar-simulation/internal/network"
	"lar-simulation/internal/sim"
)

// Controller is the part of the runner that operators can drive.
type Controller interface {
	CreateNode(ctx context.Context, x, y float64) (uint32, error)
	RemoveNode(ctx context.Context, id uint32) error
	SendMessage(ctx context.Context, from, to uint32, msg string) error
	MoveNode(ctx context.Context, id uint32, x, y float64) error
}

const (
	CmdCreate = "create"
	CmdRemove = "remove"
	CmdSend   = "send"
	CmdMove   = "move"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is the JSON form accepted on the MQTT command topic.
type Command struct {
	Command    string  `json:"command" msgpack:"command"`
	NodeID     uint32  `json:"node_id,omitempty" msgpack:"node_id,omitempty"`
	DestNodeID uint32  `json:"dest_node_id,omitempty" msgpack:"dest_node_id,omitempty"`
	Message    string  `json:"message,omitempty" msgpack:"message,omitempty"`
	X          float64 `json:"x,omitempty" msgpack:"x,omitempty"`
	Y          float64 `json:"y,omitempty" msgpack:"y,omitempty"`
}

// Execute runs cmd against ctrl and returns a short human readable result.
func Execute(ctx context.Context, ctrl Controller, cmd Command) (string, error) {
	switch cmd.Command {
	case CmdCreate:
		id, err := ctrl.CreateNode(ctx, cmd.X, cmd.Y)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Node %d created and joined the network", id), nil
	case CmdRemove:
		if err := ctrl.RemoveNode(ctx, cmd.NodeID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Node %d removed from the network", cmd.NodeID), nil
	case CmdSend:
		if err := ctrl.SendMessage(ctx, cmd.NodeID, cmd.DestNodeID, cmd.Message); err != nil {
			return "", err
		}
		return "Sending Data ...", nil
	case CmdMove:
		if err := ctrl.MoveNode(ctx, cmd.NodeID, cmd.X, cmd.Y); err != nil {
			return "", err
		}
		return fmt.Sprintf("Moved Node %d", cmd.NodeID), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

// StatusCode maps a command error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, network.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

// CreateNodePayload defines the expected JSON payload for node creation.
type CreateNodePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RemoveNodePayload defines the expected JSON payload for removing a node.
type RemoveNodePayload struct {
	NodeID uint32 `json:"node_id"`
}

type SendMessagePayload struct {
	SenderNodeID      uint32 `json:"node_id"`
	DestinationNodeID uint32 `json:"dest_node_id"`
	Message           string `json:"message"`
}

type MoveNodePayload struct {
	NodeID uint32  `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// CreateNodeHandler creates a new node and adds it to the network.
func CreateNodeHandler(ctrl Controller) http.HandlerFunc {
	return handler(func(r *http.Request) (Command, error) {
		var payload CreateNodePayload
		err := json.NewDecoder(r.Body).Decode(&payload)
		return Command{Command: CmdCreate, X: payload.X, Y: payload.Y}, err
	}, ctrl)
}

// RemoveNodeHandler removes a node from the network.
func RemoveNodeHandler(ctrl Controller) http.HandlerFunc {
	return handler(func(r *http.Request) (Command, error) {
		var payload RemoveNodePayload
		err := json.NewDecoder(r.Body).Decode(&payload)
		return Command{Command: CmdRemove, NodeID: payload.NodeID}, err
	}, ctrl)
}

// Send a message to a node
func SendMessageHandler(ctrl Controller) http.HandlerFunc {
	return handler(func(r *http.Request) (Command, error) {
		var payload SendMessagePayload
		err := json.NewDecoder(r.Body).Decode(&payload)
		return Command{
			Command:    CmdSend,
			NodeID:     payload.SenderNodeID,
			DestNodeID: payload.DestinationNodeID,
			Message:    payload.Message,
		}, err
	}, ctrl)
}

// Move a node
func MoveNodeHandler(ctrl Controller) http.HandlerFunc {
	return handler(func(r *http.Request) (Command, error) {
		var payload MoveNodePayload
		err := json.NewDecoder(r.Body).Decode(&payload)
		return Command{Command: CmdMove, NodeID: payload.NodeID, X: payload.X, Y: payload.Y}, err
	}, ctrl)
}

func handler(decode func(*http.Request) (Command, error), ctrl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cmd, err := decode(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg, err := Execute(r.Context(), ctrl, cmd)
		if err != nil {
			http.Error(w, err.Error(), StatusCode(err))
			return
		}
		w.Write([]byte(msg))
	}
}
