// Package mqtt provides MQTT publishing and subscription with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "fitness/steps/sensor"

// Topics holds the full topic names derived from a prefix.
type Topics struct {
	Events  string
	System  string
	Samples string
	Control string
}

// NewTopics derives the topic set from prefix. An empty prefix selects
// DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Samples: prefix + "/samples",
		Control: prefix + "/control",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a step event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// MessageHandler receives the payload of a subscribed message.
type MessageHandler func(topic string, payload []byte)

// Subscriber registers handlers for inbound topics.
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}

// EventType identifies a step event.
type EventType string

const (
	EventWindow EventType = "WINDOW"
	EventReset  EventType = "RESET"
)

// Event is a step pipeline event destined for the events topic.
type Event struct {
	Timestamp    time.Time
	Type         EventType
	Steps        int
	FrequencyHz  float64
	DominantBin  int
	RunningTotal float64
	Baseline     float64
}

// WindowEvent builds the event for a completed window.
func WindowEvent(r logic.WindowResult, baseline float64) Event {
	return Event{
		Timestamp:    r.Timestamp,
		Type:         EventWindow,
		Steps:        r.Spectrum.Steps,
		FrequencyHz:  r.Spectrum.FrequencyHz,
		DominantBin:  r.Spectrum.DominantBin,
		RunningTotal: r.RunningTotal,
		Baseline:     baseline,
	}
}

// ResetEvent builds the event acknowledging a reset.
func ResetEvent(r logic.ResetResult, runningTotal float64) Event {
	return Event{
		Timestamp:    r.Timestamp,
		Type:         EventReset,
		RunningTotal: runningTotal,
		Baseline:     r.Baseline,
	}
}

// Displayed is the step count shown to the user for this event: the
// truncated running total, or zero right after a reset.
func (e Event) Displayed() int {
	if e.Type == EventReset {
		return 0
	}
	return int(e.RunningTotal)
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Steps StepsPayload `json:"steps"`
}

// StepsPayload contains the step event details.
type StepsPayload struct {
	Timestamp    string  `json:"timestamp"`
	Event        string  `json:"event"`
	Displayed    int     `json:"displayed"`
	RunningTotal float64 `json:"running_total"`
	Baseline     float64 `json:"baseline"`
	Window       *Window `json:"window,omitempty"`
}

// Window carries the spectral diagnostics of a WINDOW event.
type Window struct {
	Steps       int     `json:"steps"`
	FrequencyHz float64 `json:"frequency_hz"`
	Bin         int     `json:"bin"`
}

// FormatPayload creates the JSON payload for a step event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Steps: StepsPayload{
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
			Event:        string(event.Type),
			Displayed:    event.Displayed(),
			RunningTotal: event.RunningTotal,
			Baseline:     event.Baseline,
		},
	}
	if event.Type == EventWindow {
		payload.Steps.Window = &Window{
			Steps:       event.Steps,
			FrequencyHz: event.FrequencyHz,
			Bin:         event.DominantBin,
		}
	}
	return json.Marshal(payload)
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
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
