// Package mqtt publishes key presses and daemon lifecycle events to MQTT,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/keypad-scanner/internal/keypad"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "keypad/scanner"

// EventsTopic returns the topic key presses are published on.
func EventsTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/events"
}

// SystemTopic returns the topic lifecycle events are published on.
func SystemTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a key press to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event keypad.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message for a key press.
type Payload struct {
	Keypad KeyPayload `json:"keypad"`
}

// KeyPayload contains the key press details.
type KeyPayload struct {
	Timestamp string `json:"timestamp"`
	Key       string `json:"key"`
	Code      int32  `json:"code"`
}

// FormatPayload creates the JSON payload for a key press.
func FormatPayload(event keypad.Event) ([]byte, error) {
	payload := Payload{
		Keypad: KeyPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Key:       string(event.Key),
			Code:      event.Key,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
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
