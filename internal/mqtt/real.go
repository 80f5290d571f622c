package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

const (
	publishTimeout     = 5 * time.Second
	defaultBufferSize  = 256
	breakerTripCount   = 3
	breakerOpenTimeout = 30 * time.Second
)

var errPublishTimeout = errors.New("publish timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int // messages kept while disconnected

	// OnCommand receives commands from TopicCommand. It is called from the
	// paho client goroutine and must not block.
	OnCommand func(logic.Command)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are buffered and replayed on reconnect. A circuit
// breaker stops a slow broker from stalling the control loop on every tick.
type RealPublisher struct {
	client    paho.Client
	breaker   *gobreaker.CircuitBreaker
	onCommand func(logic.Command)

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. It does not
// connect; call Connect.
func NewRealPublisher(o Options) *RealPublisher {
	if o.ClientID == "" {
		o.ClientID = "irrigation-controller"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}

	p := &RealPublisher{
		breaker:   newBreaker("mqtt-publish"),
		onCommand: o.OnCommand,
		buf:       newRingBuffer(o.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	return p
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTripCount
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("mqtt: breaker %s %s -> %s", name, from, to)
		},
	})
}

// Connect dials the broker with exponential backoff until it succeeds, the
// retry budget is spent, or ctx is done. Once connected the client
// reconnects on its own.
func (p *RealPublisher) Connect(ctx context.Context, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	err := backoff.Retry(func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("connection timeout")
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect failed: %v", err)
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// onConnect subscribes to commands and replays anything buffered.
func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")

	if p.onCommand != nil {
		c.Subscribe(TopicCommand, 1, func(_ paho.Client, m paho.Message) {
			cmd, err := ParseCommand(m.Payload(), time.Now())
			if err != nil {
				log.Printf("mqtt: ignoring command: %v", err)
				return
			}
			p.onCommand(cmd)
		})
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()
	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
		}
	}
}

// Publish sends an irrigation event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: events drive the irrigation log downstream.
	return p.send(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) {
			return nil, errPublishTimeout
		}
		return nil, token.Error()
	})
	if err != nil {
		p.enqueue(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	p.buf.push(msg)
	p.mu.Unlock()
}

// Buffered returns the number of messages waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Dropped returns how many buffered messages were lost to overflow.
func (p *RealPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.dropped
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
