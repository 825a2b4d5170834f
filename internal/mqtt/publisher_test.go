package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"trucksim/internal/telemetry"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                       { return t.done }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeClient implements the subset of mqtt.Client the publisher uses.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	connected    bool
	connectTok   *fakeToken
	publishTok   *fakeToken
	published    []publishCall
	disconnected int
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Connect() mqtt.Token { return c.connectTok }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected++
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return c.publishTok
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func connectedPublisher(fc *fakeClient) *Publisher {
	p := newPublisher(fc, Options{TopicPrefix: "trucks", Timeout: time.Second}, discard())
	fc.connected = true
	p.setConnected(true)
	return p
}

func TestPublish_TopicAndQoS(t *testing.T) {
	fc := &fakeClient{publishTok: &fakeToken{done: true}}
	p := connectedPublisher(fc)

	ev := telemetry.Event{EventID: "e-1", TruckID: "truck-9", Latitude: 48.8, Longitude: 2.3, Timestamp: "2026-01-01T00:00:00Z"}
	ack, err := p.Publish(context.Background(), ev)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ack.Key != "trucks/truck-9/gps" || ack.EventID != "e-1" {
		t.Errorf("ack = %+v", ack)
	}

	if len(fc.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.published))
	}
	call := fc.published[0]
	if call.topic != "trucks/truck-9/gps" || call.qos != 1 || call.retained {
		t.Errorf("publish call = %+v", call)
	}
	var got telemetry.Event
	if err := json.Unmarshal(call.payload, &got); err != nil || got != ev {
		t.Errorf("payload = %s (%v)", call.payload, err)
	}
}

func TestPublish_NotConnected(t *testing.T) {
	fc := &fakeClient{publishTok: &fakeToken{done: true}}
	p := newPublisher(fc, Options{TopicPrefix: "trucks"}, discard())

	if _, err := p.Publish(context.Background(), telemetry.Event{TruckID: "x"}); err == nil {
		t.Fatal("Publish while disconnected: error = nil")
	}
	if len(fc.published) != 0 {
		t.Fatal("message sent while disconnected")
	}
}

func TestPublish_TokenFailures(t *testing.T) {
	tests := []struct {
		name string
		tok  *fakeToken
		want string
	}{
		{name: "timeout", tok: &fakeToken{done: false}, want: "publish timeout"},
		{name: "broker error", tok: &fakeToken{done: true, err: errors.New("not authorized")}, want: "not authorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := connectedPublisher(&fakeClient{publishTok: tt.tok})
			_, err := p.Publish(context.Background(), telemetry.Event{TruckID: "x"})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestConnect_RespectsContext(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{done: false}}
	p := newPublisher(fc, Options{}, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := p.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect() = %v, want deadline exceeded", err)
	}
}

func TestConnect_ReportsBrokerError(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{done: true, err: errors.New("connection refused")}}
	p := newPublisher(fc, Options{}, discard())

	err := p.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Connect() = %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{done: true}}
	p := connectedPublisher(fc)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if p.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := p.Connect(context.Background()); err == nil {
		t.Error("Connect after Close: error = nil")
	}
}
