// Package httppub delivers telemetry to the GPS ingestion API over HTTP.
package httppub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trucksim/internal/telemetry"
	"trucksim/internal/transport"
)

// StatusError is returned when the ingestion API answers with anything but 202.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingestion rejected event: status %d: %s", e.Code, e.Body)
}

type Publisher struct {
	url    string
	client *http.Client
}

// New returns a publisher posting to url. A nil client gets one bounded by timeout.
func New(url string, timeout time.Duration, client *http.Client) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Publisher{url: url, client: client}
}

type acceptedResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"eventId"`
	Timestamp string `json:"timestamp"`
}

func (p *Publisher) Publish(ctx context.Context, ev telemetry.Event) (transport.Ack, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return transport.Ack{}, fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return transport.Ack{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return transport.Ack{}, fmt.Errorf("post %s: %w", p.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusAccepted {
		return transport.Ack{}, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	ack := transport.Ack{EventID: ev.EventID, Key: ev.TruckID}
	var accepted acceptedResponse
	// a 202 with an unreadable body still counts as delivered
	if err := json.Unmarshal(raw, &accepted); err == nil && accepted.EventID != "" {
		ack.EventID = accepted.EventID
	}
	return ack, nil
}

func (p *Publisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

var _ transport.Publisher = (*Publisher)(nil)
