// Package events publishes camera lifecycle events to Kafka so downstream
// consumers can react to cameras going up, down or failing.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/logging"
)

// Event is one lifecycle record on the wire. Keyed by camera so per-camera
// ordering survives partitioning.
type Event struct {
	Camera    string    `json:"camera"`
	Type      string    `json:"type"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Sessions  int       `json:"sessions,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes lifecycle events to one topic. Produce is asynchronous;
// a broker outage degrades to dropped events, never to a stalled pipeline.
type Publisher struct {
	client *kgo.Client
	topic  string
	log    logging.Logger
}

// NewPublisher connects a lifecycle publisher to the given brokers.
func NewPublisher(brokers []string, topic string, logger logging.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("lookout"),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("events: create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic, log: logger}, nil
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.log.WithError(err).Warn("kafka flush on close failed")
	}
	p.client.Close()
}

// HealthCheck pings the brokers.
func (p *Publisher) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("events: kafka ping failed: %w", err)
	}
	return nil
}

func (p *Publisher) publish(ev Event) {
	ev.Timestamp = time.Now().UTC()
	value, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Error("marshal lifecycle event")
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.Camera),
		Value: value,
	}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.log.WithError(err).WithField("camera", ev.Camera).Warn("lifecycle event not delivered")
		}
	})
}

// Hooks returns pipeline hooks emitting lifecycle events.
func (p *Publisher) Hooks() *stream.Hooks {
	return &stream.Hooks{
		OnStateChange: func(camera string, from, to stream.State) {
			p.publish(Event{Camera: camera, Type: "state_change", From: string(from), To: string(to)})
		},
		OnSessionStart: func(camera string, active int) {
			p.publish(Event{Camera: camera, Type: "session_start", Sessions: active})
		},
		OnSessionEnd: func(camera string, active int) {
			p.publish(Event{Camera: camera, Type: "session_end", Sessions: active})
		},
		OnReconnect: func(camera string, attempt int) {
			p.publish(Event{Camera: camera, Type: "reconnect", Attempt: attempt})
		},
	}
}
