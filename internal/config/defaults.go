package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultBroker      = "tcp://192.168.1.200:1883"
	DefaultStatePath   = "/var/lib/step-sensor/state.yaml"
	DefaultHTTPAddr    = ":80"
	DefaultHeartbeat   = 15 * time.Minute
	DefaultWSBroker    = "=broker"
	DefaultSampleRate  = 50.0
	DefaultTopicPrefix = "fitness/steps/sensor"
)

// SetDefaults sets default configuration values for all components.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.type", SourceIIO)
	v.SetDefault("source.iio_device", "")
	v.SetDefault("source.csv_path", "")
	v.SetDefault("source.sample_rate_hz", DefaultSampleRate)

	v.SetDefault("mqtt.broker", DefaultBroker)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)
	v.SetDefault("mqtt.buffer_size", 1000)

	v.SetDefault("state.path", DefaultStatePath)

	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("http.ws_broker", DefaultWSBroker)

	v.SetDefault("button.chip", "gpiochip0")
	v.SetDefault("button.pin", -1)
	v.SetDefault("button.debounce", 20*time.Millisecond)
	v.SetDefault("button.long_press", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("heartbeat", DefaultHeartbeat)
	v.SetDefault("activate_on_start", true)
}
