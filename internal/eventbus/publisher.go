// Package eventbus fans out accepted events:batch payloads to NATS
// JetStream for any downstream consumer outside the Agent/Collector
// contract itself. Publish-only: the Collector's response to the Agent
// never depends on this succeeding. Adapted from the reference queue
// package's NATSEventProcessor, trimmed to the publish side only (no
// consumer, no DLQ, no ack tracking — nothing in this tree consumes the
// stream).
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// DefaultStreamName is used when no ARECIBO_NATS_STREAM override is
	// configured.
	DefaultStreamName = "ARECIBO_EVENTS"
	// SubjectWildcard matches every per-tenant batch subject this
	// Publisher produces, for anything that wants to bind a consumer.
	SubjectWildcard = "arecibo.events.*.*"
	StreamMaxAge    = 7 * 24 * time.Hour
)

// Subject builds the per-tenant publish subject for one event batch,
// arecibo.events.<serviceName>.<environment>. Dots in either component are
// flattened since NATS subject tokens may not contain them.
func Subject(serviceName, environment string) string {
	return fmt.Sprintf("arecibo.events.%s.%s", sanitizeToken(serviceName), sanitizeToken(environment))
}

func sanitizeToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, ".", "_"), " ", "_")
}

// Publisher publishes accepted event batches to a JetStream stream.
type Publisher struct {
	nc         *nats.Conn
	js         jetstream.JetStream
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *log.Logger
	streamName string
}

// NewPublisher connects to url and ensures the events stream exists.
// streamName overrides DefaultStreamName when non-empty.
func NewPublisher(url, streamName string, logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[eventbus] ", log.LstdFlags)
	}
	if streamName == "" {
		streamName = DefaultStreamName
	}
	ctx, cancel := context.WithCancel(context.Background())

	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Printf("reconnected to %s", c.ConnectedUrl())
			reconnectsTotal.Inc()
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if err != nil {
				logger.Printf("disconnected: %v", err)
			}
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("eventbus: connect to %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		cancel()
		nc.Close()
		return nil, fmt.Errorf("eventbus: jetstream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, ctx: ctx, cancel: cancel, logger: logger, streamName: streamName}
	if err := p.ensureStream(); err != nil {
		cancel()
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream() error {
	_, err := p.js.CreateOrUpdateStream(p.ctx, jetstream.StreamConfig{
		Name:        p.streamName,
		Subjects:    []string{SubjectWildcard},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamMaxAge,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
		Description: "Accepted agent event batches, fanned out for downstream consumers",
	})
	if err != nil {
		return fmt.Errorf("eventbus: create stream: %w", err)
	}
	return nil
}

// PublishBatch fires the decoded events:batch payload at the stream, on
// the per-(serviceName,environment) subject. Failures are logged and
// counted, never returned — publishing here is strictly additive to the
// Collector's response to the Agent.
func (p *Publisher) PublishBatch(serviceName, environment string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Printf("marshal batch for publish: %v", err)
		publishFailuresTotal.Inc()
		return
	}
	if _, err := p.js.Publish(p.ctx, Subject(serviceName, environment), data); err != nil {
		p.logger.Printf("publish batch: %v", err)
		publishFailuresTotal.Inc()
		return
	}
}

// Close releases the underlying NATS connection.
func (p *Publisher) Close() {
	p.cancel()
	p.nc.Close()
}
