package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when the client has no open connection.
var ErrNotConnected = errors.New("mqtt: not connected")

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string // empty generates "step-sensor-<uuid>"
	Topics   Topics
	// BufferSize is the offline queue capacity (0 = DefaultBufferSize).
	BufferSize     int
	ConnectTimeout time.Duration
	Logger         *zap.Logger
	Now            func() time.Time
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are queued and replayed on reconnect. Subscriptions are
// restored after every reconnect. Inbound messages are handed to their
// handlers one at a time in arrival order.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	buffer    *ringBuffer
	subs      map[string]MessageHandler
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is unreachable within the connect timeout the publisher is still returned;
// paho keeps retrying in the background and messages are buffered until then.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: broker address required")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ClientID == "" {
		o.ClientID = "step-sensor-" + uuid.NewString()[:8]
	}
	if o.Topics == (Topics{}) {
		o.Topics = NewTopics("")
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}

	p := &RealPublisher{
		topics: o.Topics,
		logger: o.Logger.With(zap.String("broker", o.Broker), zap.String("client_id", o.ClientID)),
		now:    o.Now,
		buffer: newRingBuffer(o.BufferSize, o.Logger),
		subs:   make(map[string]MessageHandler),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: o.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(o.Topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		p.logger.Warn("mqtt broker not reachable yet, buffering until connected",
			zap.Duration("timeout", o.ConnectTimeout))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	pending := p.buffer.drainAll()
	subs := make(map[string]MessageHandler, len(p.subs))
	for t, h := range p.subs {
		subs[t] = h
	}
	p.mu.Unlock()

	p.logger.Info("mqtt connected", zap.Bool("reconnect", reconnect), zap.Int("buffered", len(pending)))

	for topic, h := range subs {
		if err := p.subscribe(topic, h); err != nil {
			p.logger.Error("mqtt resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Warn("mqtt replay failed", zap.String("topic", m.topic), zap.Error(err))
			p.enqueue(m)
		}
	}

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err == nil {
			err = p.send(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1})
		}
		if err != nil {
			p.logger.Warn("mqtt reconnected event failed", zap.Error(err))
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", zap.Error(err))
}

// Publish sends a step event to the events topic.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{
		topic:    p.topics.System,
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

// publish sends m, or buffers it when offline. Buffering is not an error.
func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buffer.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(m); err != nil {
		p.enqueue(m)
		p.logger.Warn("mqtt publish failed, buffered", zap.String("topic", m.topic), zap.Error(err))
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(m bufferedMsg) {
	p.mu.Lock()
	p.buffer.push(m)
	p.mu.Unlock()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Subscribe registers handler for topic at QoS 0. The subscription is
// restored after every reconnect; while offline it is applied on connect.
func (p *RealPublisher) Subscribe(topic string, handler MessageHandler) error {
	p.mu.Lock()
	p.subs[topic] = handler
	connected := p.connected
	p.mu.Unlock()

	if !connected {
		return nil
	}
	return p.subscribe(topic, handler)
}

func (p *RealPublisher) subscribe(topic string, handler MessageHandler) error {
	token := p.client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close disconnects from the broker. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		p.logger.Warn("mqtt closing with undelivered messages", zap.Int("buffered", n))
	}
	p.client.Disconnect(1000)
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}
