// Package notifier defines the Publisher seam the out-of-scope
// notification layer (email/Slack/etc., per spec.md §1) implements, plus
// two reference implementations used by tests and cmd/aidosd: a
// LogPublisher adapted near-verbatim from
// control_plane/streaming/logger.go (already the minimal shape this
// interface needs), and a NATSPublisher for deployments wanting a real
// message bus between the core and an external notification/API layer.
package notifier

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/itskum47/aidos-core/internal/clock"
)

// Event is one outbound notification: a scheduler/pool/alert/healing
// event the core hands off to an external notification layer.
type Event struct {
	ID        string                 `json:"id"`
	Topic     string                 `json:"topic"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// Publisher is the seam the external notification layer implements.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload map[string]interface{}) error
	Close() error
}

// LogPublisher logs every publish, adapted from
// control_plane/streaming/logger.go's LogPublisher with a real clock/id
// source replacing its "log-id-stub" placeholder.
type LogPublisher struct {
	logger *log.Logger
	clock  clock.Clock
	source string
}

// NewLogPublisher creates a LogPublisher tagging every event with source.
func NewLogPublisher(c clock.Clock, source string) *LogPublisher {
	return &LogPublisher{logger: log.Default(), clock: c, source: source}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, payload map[string]interface{}) error {
	event := Event{
		ID:        p.clock.NewID(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: p.clock.Now(),
		Source:    p.source,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.logger.Printf("[NOTIFIER] PUBLISH %s: %s", topic, string(data))
	return nil
}

func (p *LogPublisher) Close() error {
	p.logger.Println("[NOTIFIER] closed LogPublisher")
	return nil
}

// NATSPublisher publishes events onto a NATS subject derived from topic,
// grounded on
// anhnv24810310060-source-SWARM-INTELLIGENCE-NETWORK/services/control-plane/main.go
// and libs/go/core/natsctx/natsctx.go's connection-context pattern.
type NATSPublisher struct {
	conn      *nats.Conn
	clock     clock.Clock
	source    string
	subjectFn func(topic string) string
}

// NewNATSPublisher creates a NATSPublisher over an already-connected
// conn. subjectPrefix is prepended to each topic to form the NATS
// subject (e.g. "aidos.events." + topic).
func NewNATSPublisher(conn *nats.Conn, c clock.Clock, source, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{
		conn:   conn,
		clock:  c,
		source: source,
		subjectFn: func(topic string) string {
			return subjectPrefix + topic
		},
	}
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, payload map[string]interface{}) error {
	event := Event{
		ID:        p.clock.NewID(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: p.clock.Now(),
		Source:    p.source,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subjectFn(topic), data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
