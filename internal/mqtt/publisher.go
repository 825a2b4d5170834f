package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"trucksim/internal/telemetry"
	"trucksim/internal/transport"
)

type Options struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
	Timeout     time.Duration
}

type Publisher struct {
	client    mqtt.Client
	opts      Options
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(opts Options, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{opts: opts, logger: logger, stopCh: make(chan struct{})}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)

	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)

	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(co)
	return p
}

func newPublisher(client mqtt.Client, opts Options, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, opts: opts, logger: logger, stopCh: make(chan struct{})}
}

// Connect waits for the initial broker connection. It gives up when ctx is
// done or the publisher is closed; paho keeps retrying in the background
// until then.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// Topic is the per-truck routing key, "<prefix>/<truckId>/gps".
func (p *Publisher) Topic(truckID string) string {
	return fmt.Sprintf("%s/%s/gps", p.opts.TopicPrefix, truckID)
}

// Publish sends ev with QoS 1 and waits for the broker's PUBACK.
func (p *Publisher) Publish(_ context.Context, ev telemetry.Event) (transport.Ack, error) {
	if !p.IsConnected() {
		return transport.Ack{}, fmt.Errorf("mqtt client not connected")
	}

	topic := p.Topic(ev.TruckID)
	data, err := json.Marshal(ev)
	if err != nil {
		return transport.Ack{}, fmt.Errorf("marshal event: %w", err)
	}

	timeout := p.opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	token := p.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(timeout) {
		return transport.Ack{}, fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return transport.Ack{}, fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Debug("published to mqtt", "topic", topic, "event_id", ev.EventID)
	return transport.Ack{EventID: ev.EventID, Key: topic}, nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close stops any pending Connect and disconnects. Safe to call more than once.
func (p *Publisher) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
	return nil
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

var _ transport.Publisher = (*Publisher)(nil)
