// Package config loads daemon settings from flags, environment and YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. STEP_SENSOR_MQTT_BROKER.
const EnvPrefix = "STEP_SENSOR"

// Source types.
const (
	SourceIIO  = "iio"
	SourceCSV  = "csv"
	SourceMQTT = "mqtt"
)

// Config represents the daemon configuration.
type Config struct {
	Source          SourceConfig  `mapstructure:"source"`
	MQTT            MQTTConfig    `mapstructure:"mqtt"`
	State           StateConfig   `mapstructure:"state"`
	HTTP            HTTPConfig    `mapstructure:"http"`
	Button          ButtonConfig  `mapstructure:"button"`
	Log             LogConfig     `mapstructure:"log"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
	ActivateOnStart bool          `mapstructure:"activate_on_start"`
}

// SourceConfig selects where samples come from.
type SourceConfig struct {
	Type         string  `mapstructure:"type"`
	IIODevice    string  `mapstructure:"iio_device"`
	CSVPath      string  `mapstructure:"csv_path"`
	SampleRateHz float64 `mapstructure:"sample_rate_hz"`
}

// Interval returns the sample period.
func (s SourceConfig) Interval() time.Duration {
	if s.SampleRateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.SampleRateHz)
}

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	BufferSize  int    `mapstructure:"buffer_size"`
}

// StateConfig locates the persisted baseline.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig contains status server settings.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	WSBroker string `mapstructure:"ws_broker"`
}

// ButtonConfig contains reset button settings. Pin < 0 disables the button.
type ButtonConfig struct {
	Chip      string        `mapstructure:"chip"`
	Pin       int           `mapstructure:"pin"`
	Debounce  time.Duration `mapstructure:"debounce"`
	LongPress time.Duration `mapstructure:"long_press"`
}

// Enabled reports whether a button is configured.
func (b ButtonConfig) Enabled() bool {
	return b.Pin >= 0
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults, environment binding and the
// config file search path set up. An empty configFile searches
// step-sensor.yaml in /etc/step-sensor, $HOME/.config/step-sensor and ./configs.
func New(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("step-sensor")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/step-sensor")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "step-sensor"))
		}
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// ReadFile reads the config file if one is found. A missing file is not an
// error unless it was named explicitly.
func ReadFile(v *viper.Viper, explicit bool) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && !explicit {
		return nil
	}
	return fmt.Errorf("read config: %w", err)
}

// Load decodes and validates the configuration.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceIIO:
	case SourceCSV:
		if c.Source.CSVPath == "" {
			return errors.New("source.csv_path is required for the csv source")
		}
	case SourceMQTT:
	default:
		return fmt.Errorf("unknown source.type %q (want iio, csv or mqtt)", c.Source.Type)
	}

	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if c.Source.SampleRateHz <= 0 {
		return fmt.Errorf("source.sample_rate_hz must be positive, got %v", c.Source.SampleRateHz)
	}
	if c.Heartbeat < 0 {
		return errors.New("heartbeat cannot be negative")
	}
	if c.MQTT.BufferSize < 0 {
		return errors.New("mqtt.buffer_size cannot be negative")
	}
	if c.State.Path == "" {
		return errors.New("state.path is required")
	}
	if c.Button.Enabled() && c.Button.LongPress <= 0 {
		return errors.New("button.long_press must be positive")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q (want json or console)", c.Log.Format)
	}
	return nil
}
