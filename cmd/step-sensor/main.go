// Command step-sensor counts walking steps from a 3-axis accelerometer and
// publishes the running total to MQTT.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "step-sensor: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands after PersistentPreRunE.
type app struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	logger     *zap.Logger
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"source":       "source.type",
	"iio-device":   "source.iio_device",
	"csv":          "source.csv_path",
	"sample-rate":  "source.sample_rate_hz",
	"broker":       "mqtt.broker",
	"client-id":    "mqtt.client_id",
	"topic-prefix": "mqtt.topic_prefix",
	"state":        "state.path",
	"http":         "http.addr",
	"ws-broker":    "http.ws_broker",
	"button-pin":   "button.pin",
	"long-press":   "button.long_press",
	"heartbeat":    "heartbeat",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"activate":     "activate_on_start",
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "step-sensor",
		Short:         "Accelerometer step counter publishing to MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.logger.Sync()
			return run(a.cfg, a.logger)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default searches /etc/step-sensor, ~/.config/step-sensor, ./configs)")
	pf.String("state", config.DefaultStatePath, "baseline state file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console or json)")
	pf.Float64("sample-rate", config.DefaultSampleRate, "accelerometer sample rate in Hz")

	f := root.Flags()
	f.String("source", config.SourceIIO, "sample source (iio, csv or mqtt)")
	f.String("iio-device", "", "IIO device name (empty picks the first accelerometer)")
	f.String("csv", "", "CSV file to replay when --source=csv")
	f.String("broker", config.DefaultBroker, "MQTT broker address")
	f.String("client-id", "", "MQTT client ID (empty generates one)")
	f.String("topic-prefix", config.DefaultTopicPrefix, "MQTT topic prefix")
	f.String("http", config.DefaultHTTPAddr, "HTTP status address (empty to disable)")
	f.String("ws-broker", config.DefaultWSBroker, `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	f.Int("button-pin", -1, "BCM pin of the reset button (-1 disables)")
	f.Duration("long-press", time.Second, "hold time for a button reset")
	f.Duration("heartbeat", config.DefaultHeartbeat, "heartbeat interval (0 to disable)")
	f.Bool("activate", true, "start counting immediately")

	root.AddCommand(newReplayCmd(a), newPrintStateCmd(a))
	return root
}

// load reads configuration for cmd and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	a.v = config.New(a.configFile)
	bindFlags(cmd.Flags(), a.v)
	if err := config.ReadFile(a.v, a.configFile != ""); err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config file", zap.String("path", used))
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// bindFlags binds every changed flag to its configuration key so flags take
// precedence over the environment and config file.
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return
		}
		v.Set(key, f.Value.String())
	})
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
