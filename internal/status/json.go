package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Phase         string          `json:"phase"`
	Steps         StepsJSON       `json:"steps"`
	Buffered      int             `json:"buffered"`
	LastWindow    *LastWindowJSON `json:"last_window,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Counts        CountsJSON      `json:"counts"`
	Network       *NetworkJSON    `json:"network,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// StepsJSON reports the displayed count and the totals behind it.
type StepsJSON struct {
	Displayed    int     `json:"displayed"`
	RunningTotal float64 `json:"running_total"`
	Baseline     float64 `json:"baseline"`
}

// LastWindowJSON describes the most recent window analysis.
type LastWindowJSON struct {
	Timestamp   string  `json:"timestamp"`
	Steps       int     `json:"steps"`
	FrequencyHz float64 `json:"frequency_hz"`
	Bin         int     `json:"bin"`
	Power       float64 `json:"power"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	Samples     int `json:"samples"`
	Windows     int `json:"windows"`
	StepWindows int `json:"step_windows"`
	Resets      int `json:"resets"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Source       string  `json:"source"`
	SampleRateHz float64 `json:"sample_rate_hz"`
	WindowSize   int     `json:"window_size"`
	HeartbeatMs  int64   `json:"heartbeat_ms"`
	Broker       string  `json:"broker"`
	TopicPrefix  string  `json:"topic_prefix"`
	HTTPPort     string  `json:"http_port"`
	WSBroker     string  `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	inner := StatusInner{
		Phase: phase,
		Steps: StepsJSON{
			Displayed:    snap.Displayed,
			RunningTotal: snap.RunningTotal,
			Baseline:     snap.Baseline,
		},
		Buffered:      snap.Buffered,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Samples:     snap.Counts.Samples,
			Windows:     snap.Counts.Windows,
			StepWindows: snap.Counts.StepWindows,
			Resets:      snap.Counts.Resets,
		},
		Config: ConfigJSON{
			Source:       snap.Config.Source,
			SampleRateHz: snap.Config.SampleRateHz,
			WindowSize:   snap.Config.WindowSize,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			TopicPrefix:  snap.Config.TopicPrefix,
			HTTPPort:     snap.Config.HTTPPort,
			WSBroker:     snap.Config.WSBroker,
		},
	}

	if w := snap.LastWindow; w != nil {
		inner.LastWindow = &LastWindowJSON{
			Timestamp:   w.Timestamp.UTC().Format(time.RFC3339),
			Steps:       w.Spectrum.Steps,
			FrequencyHz: w.Spectrum.FrequencyHz,
			Bin:         w.Spectrum.DominantBin,
			Power:       w.Spectrum.Power,
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
