// Package mqtt publishes controller events and receives manual commands,
// with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/irrigation-controller/internal/control"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Topic is the MQTT topic for irrigation events.
const Topic = "garden/irrigation/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garden/irrigation/system"

// TopicCommand is the MQTT topic manual commands arrive on.
const TopicCommand = "garden/irrigation/command"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an irrigation event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// BufferStatus reports messages held back while the broker is unreachable.
type BufferStatus interface {
	Buffered() int
	Dropped() int
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Irrigation EventPayload `json:"irrigation"`
}

// EventPayload contains the irrigation event details.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Sensor    string `json:"sensor,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Manual    bool   `json:"manual,omitempty"`
}

// FormatPayload creates the JSON payload for an irrigation event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Irrigation: EventPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			From:      string(event.From),
			To:        string(event.To),
			Sensor:    string(event.Sensor),
			Reason:    string(event.Reason),
			Manual:    event.Manual,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// CommandPayload is the JSON form of a command message.
// A bare command name such as "reset" is accepted too.
type CommandPayload struct {
	Command string `json:"command"`
	Source  string `json:"source,omitempty"`
}

// ParseCommand decodes a command message received at now.
func ParseCommand(data []byte, now time.Time) (logic.Command, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return logic.Command{}, fmt.Errorf("empty command")
	}

	cp := CommandPayload{Command: text}
	if strings.HasPrefix(text, "{") {
		cp = CommandPayload{}
		if err := json.Unmarshal(data, &cp); err != nil {
			return logic.Command{}, fmt.Errorf("decode command: %w", err)
		}
	}

	typ, err := control.ParseCommand(cp.Command)
	if err != nil {
		return logic.Command{}, err
	}
	source := "mqtt"
	if cp.Source != "" {
		source = "mqtt:" + cp.Source
	}
	return logic.Command{Type: typ, Source: source, Time: now}, nil
}
