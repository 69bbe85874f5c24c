package mqtt

import "fmt"

// Config selects the broker and the topic namespace of one run.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Format      string // event payload encoding: json | msgpack
}

// EventsTopic is where every simulation event is published.
func EventsTopic(prefix, runID string) string {
	return fmt.Sprintf("%s/%s/events", prefix, runID)
}

// CommandsTopic accepts JSON commands for the run.
func CommandsTopic(prefix, runID string) string {
	return fmt.Sprintf("%s/%s/commands", prefix, runID)
}

// ResponsesTopic carries the outcome of each command.
func ResponsesTopic(prefix, runID string) string {
	return fmt.Sprintf("%s/%s/responses", prefix, runID)
}

// CommandResponse is published on the responses topic after a command ran.
type CommandResponse struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}
