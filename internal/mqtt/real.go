package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/keypad-scanner/internal/keypad"
)

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 256

// DefaultConnectRetryInterval is used when Options.ConnectRetryInterval is zero.
const DefaultConnectRetryInterval = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	BufferSize  int

	// ConnectRetryInterval is the wait between connection attempts.
	// Defaults to DefaultConnectRetryInterval.
	ConnectRetryInterval time.Duration
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed once the client reconnects.
type RealPublisher struct {
	client      paho.Client
	eventsTopic string
	systemTopic string

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// cannot be reached within the connect timeout the publisher is still
// returned: the client keeps retrying in the background and messages are
// buffered until it succeeds.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "keypad-scanner"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectRetryInterval <= 0 {
		opts.ConnectRetryInterval = DefaultConnectRetryInterval
	}

	p := &RealPublisher{
		eventsTopic: EventsTopic(opts.TopicPrefix),
		systemTopic: SystemTopic(opts.TopicPrefix),
		buffer:      newRingBuffer(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "connection lost",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(opts.ConnectRetryInterval).
		SetBinaryWill(p.systemTopic, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a key press to the MQTT broker.
func (p *RealPublisher) Publish(event keypad.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	if err := p.publish(bufferedMsg{topic: p.eventsTopic, payload: payload}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events must arrive
	msg := bufferedMsg{topic: p.systemTopic, payload: payload, qos: 1, retained: event.Retained}
	if err := p.publish(msg); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buffer.push(msg) && p.buffer.dropped == 1 {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", p.buffer.capacity)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout")
	}
	return token.Error()
}

// onConnect replays messages buffered while the broker was unreachable.
// paho runs it on its own goroutine after every (re)connect.
func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	msgs, dropped := p.buffer.drain()
	p.mu.Unlock()

	if len(msgs) == 0 && dropped == 0 {
		return
	}
	log.Printf("mqtt: connected, replaying %d buffered messages (%d dropped)", len(msgs), dropped)
	for _, msg := range msgs {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay to %s failed: %v", msg.topic, err)
		}
	}
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
