package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/button"
	"github.com/sweeney/step-sensor/internal/config"
	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/mqtt"
	"github.com/sweeney/step-sensor/internal/sensor"
	"github.com/sweeney/step-sensor/internal/status"
	"github.com/sweeney/step-sensor/internal/store"
	"github.com/sweeney/step-sensor/internal/web"
)

// tickInterval paces heartbeat checks and connection status refreshes.
const tickInterval = time.Second

func run(cfg *config.Config, logger *zap.Logger) error {
	startTime := time.Now()
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Topics:     topics,
		BufferSize: cfg.MQTT.BufferSize,
		Logger:     logger.Named("mqtt"),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	source, err := openSource(cfg, publisher, topics, logger.Named("sensor"))
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}
	defer source.Close()

	control, err := mqtt.NewControlSubscriber(publisher, topics.Control, logger.Named("control"))
	if err != nil {
		return fmt.Errorf("init control: %w", err)
	}

	var presses <-chan button.Press
	if cfg.Button.Enabled() {
		btn, err := button.NewRealButton(button.Config{
			Chip:      cfg.Button.Chip,
			Pin:       cfg.Button.Pin,
			Debounce:  cfg.Button.Debounce,
			LongPress: cfg.Button.LongPress,
		}, logger.Named("button"))
		if err != nil {
			return fmt.Errorf("init button: %w", err)
		}
		defer btn.Close()
		presses = btn.Presses()
	}

	ws := resolveWSBroker(cfg.HTTP.WSBroker, cfg.MQTT.Broker, logger)
	tracker := status.NewTracker(startTime, status.Config{
		Source:       cfg.Source.Type,
		SampleRateHz: cfg.Source.SampleRateHz,
		WindowSize:   logic.WindowSize,
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		TopicPrefix:  cfg.MQTT.TopicPrefix,
		HTTPPort:     cfg.HTTP.Addr,
		WSBroker:     ws,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	baselines := store.NewFileStore(cfg.State.Path)
	pipeline := logic.NewPipelineAt(cfg.Source.SampleRateHz, baselines, tracker, startTime)

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(publisher.IsConnected())
	publishStatus(publisher, tracker, "STARTUP", "", startTime, logger)

	commands := make(chan logic.Command, 8)
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, commands, logger.Named("http"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	logger.Info("started",
		zap.String("source", cfg.Source.Type),
		zap.Float64("sample_rate_hz", cfg.Source.SampleRateHz),
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("state", baselines.Path()),
		zap.Duration("heartbeat", cfg.Heartbeat))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopConfig{
		Pipeline:        pipeline,
		Samples:         source.Samples(),
		Commands:        commands,
		Control:         control.Commands(),
		Presses:         presses,
		Publisher:       publisher,
		MQTTStatus:      publisher,
		Tracker:         tracker,
		Heartbeat:       cfg.Heartbeat,
		ActivateOnStart: cfg.ActivateOnStart,
		Now:             time.Now,
		Tick:            ticker.C,
		Sig:             sigCh,
		Logger:          logger,
	})
}

// openSource builds the configured sample source.
func openSource(cfg *config.Config, sub mqtt.Subscriber, topics mqtt.Topics, logger *zap.Logger) (sensor.Source, error) {
	interval := cfg.Source.Interval()
	switch cfg.Source.Type {
	case config.SourceIIO:
		dir, err := sensor.FindIIODevice(sensor.DefaultIIORoot, cfg.Source.IIODevice)
		if err != nil {
			return nil, err
		}
		logger.Info("using iio accelerometer", zap.String("device", dir))
		return sensor.NewIIOSource(dir, interval, logger)
	case config.SourceCSV:
		f, err := os.Open(cfg.Source.CSVPath)
		if err != nil {
			return nil, err
		}
		logger.Info("replaying csv", zap.String("path", cfg.Source.CSVPath))
		return sensor.NewCSVSource(f, interval, logger), nil
	case config.SourceMQTT:
		logger.Info("subscribing to samples", zap.String("topic", topics.Samples))
		return mqtt.NewSampleSubscriber(sub, topics.Samples, mqtt.DefaultSampleQueue, logger)
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source.Type)
}

// loopConfig holds everything runLoop reads from. Nil channels are never
// selected, so unused inputs may be left unset.
type loopConfig struct {
	Pipeline *logic.Pipeline

	Samples  <-chan logic.Sample
	Commands <-chan logic.Command
	Control  <-chan logic.Command
	Presses  <-chan button.Press

	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Tracker    *status.Tracker

	Heartbeat       time.Duration
	ActivateOnStart bool

	Now    func() time.Time
	Tick   <-chan time.Time
	Sig    <-chan os.Signal
	Logger *zap.Logger
}

// runLoop is the single owner of the pipeline. Samples, commands, button
// presses and ticks are all applied from this goroutine.
func runLoop(lc loopConfig) error {
	logger := lc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &loop{loopConfig: lc, logger: logger}

	if lc.ActivateOnStart {
		l.handle(logic.CommandActivate, "startup")
	}

	samples := lc.Samples
	presses := lc.Presses
	for {
		select {
		case s := <-lc.Sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			logger.Info("shutting down", zap.String("signal", signalName))
			l.refreshConnection()
			publishStatus(lc.Publisher, lc.Tracker, "SHUTDOWN", signalName, lc.Now(), logger)
			return nil

		case s, ok := <-samples:
			if !ok {
				logger.Info("sample source ended")
				samples = nil
				continue
			}
			l.process(s)

		case cmd := <-lc.Commands:
			l.handle(cmd, "http")

		case cmd := <-lc.Control:
			l.handle(cmd, "mqtt")

		case p, ok := <-presses:
			if !ok {
				presses = nil
				continue
			}
			if !p.Long {
				logger.Info("long press to reset steps", zap.Duration("held", p.Held))
				continue
			}
			l.handle(logic.CommandReset, "button")

		case <-lc.Tick:
			t := lc.Now()
			l.refreshConnection()

			if hb := lc.Pipeline.CheckHeartbeat(t, lc.Heartbeat); hb != nil {
				logger.Info("heartbeat",
					zap.Duration("uptime", hb.Uptime),
					zap.Int("samples", hb.Counts.Samples),
					zap.Int("windows", hb.Counts.Windows),
					zap.Int("resets", hb.Counts.Resets),
					zap.Float64("running_total", hb.RunningTotal))
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil && lc.Tracker != nil {
					lc.Tracker.SetNetwork(net)
				}
				l.update()
				publishStatus(lc.Publisher, lc.Tracker, "HEARTBEAT", "", hb.Timestamp, logger)
			}
		}
	}
}

type loop struct {
	loopConfig
	logger *zap.Logger
}

func (l *loop) process(s logic.Sample) {
	r := l.Pipeline.Process(s, l.Now())
	if r != nil {
		l.logger.Debug("window",
			zap.Int("bin", r.Spectrum.DominantBin),
			zap.Float64("frequency_hz", r.Spectrum.FrequencyHz),
			zap.Int("steps", r.Spectrum.Steps),
			zap.Float64("running_total", r.RunningTotal))
		if err := l.Publisher.Publish(mqtt.WindowEvent(*r, l.Pipeline.Baseline())); err != nil {
			// Don't stop counting on publish failure
			l.logger.Warn("publish window", zap.Error(err))
		}
	}
	l.update()
}

func (l *loop) handle(cmd logic.Command, origin string) {
	l.logger.Info("command", zap.String("command", string(cmd)), zap.String("origin", origin))

	res, err := l.Pipeline.Handle(cmd, l.Now())
	if err != nil {
		l.logger.Warn("baseline unavailable, counting from zero",
			zap.Error(err), zap.Float64("baseline", l.Pipeline.Baseline()))
	}
	if res != nil {
		if res.Err != nil {
			l.logger.Error("persist baseline", zap.Error(res.Err), zap.Float64("baseline", res.Baseline))
		}
		if err := l.Publisher.Publish(mqtt.ResetEvent(*res, l.Pipeline.RunningTotal())); err != nil {
			l.logger.Warn("publish reset", zap.Error(err))
		}
	}
	l.update()
}

// update copies pipeline state into the tracker for HTTP and system events.
func (l *loop) update() {
	if l.Tracker == nil {
		return
	}
	l.Tracker.Update(l.Pipeline)
}

func (l *loop) refreshConnection() {
	if l.Tracker != nil && l.MQTTStatus != nil {
		l.Tracker.SetMQTTConnected(l.MQTTStatus.IsConnected())
	}
}

// publishStatus sends a system event carrying a full status snapshot.
// Heartbeats are not retained.
func publishStatus(publisher mqtt.Publisher, tracker *status.Tracker, event, reason string, ts time.Time, logger *zap.Logger) {
	se := mqtt.SystemEvent{
		Timestamp: ts,
		Event:     event,
		Reason:    reason,
		Retained:  event != "HEARTBEAT",
	}
	if tracker != nil {
		se.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	if err := publisher.PublishSystem(se); err != nil {
		logger.Warn("publish system event", zap.String("event", event), zap.Error(err))
		return
	}
	logger.Debug("published system event", zap.String("event", event))
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the http.ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string, logger *zap.Logger) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		logger.Warn("ws-broker: cannot derive from broker", zap.String("broker", broker), zap.Error(err))
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
