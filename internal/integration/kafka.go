// Package integration publishes committed stock movements to Kafka.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/odyssey-erp/pharmstock/internal/receiving"
	"github.com/odyssey-erp/pharmstock/internal/sales"
)

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a Kafka writer for topic. Messages are keyed so that all
// events for one sale or document land on one partition.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publisher implements the sales and receiving integration handlers.
type Publisher struct {
	writer  MessageWriter
	logger  *slog.Logger
	timeout time.Duration
}

var (
	_ sales.IntegrationHandler     = (*Publisher)(nil)
	_ receiving.IntegrationHandler = (*Publisher)(nil)
)

// NewPublisher constructs Publisher. A nil writer turns every publish into a no-op.
func NewPublisher(writer MessageWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: writer, logger: logger, timeout: 5 * time.Second}
}

// HandleSaleCommitted publishes a sale.committed event keyed by sale id.
func (p *Publisher) HandleSaleCommitted(ctx context.Context, evt sales.SaleCommittedEvent) error {
	return p.publish(ctx, evt.SaleID.String(), saleEnvelope(evt))
}

// HandleDocumentReceived publishes a purchase.received event keyed by document id.
func (p *Publisher) HandleDocumentReceived(ctx context.Context, evt receiving.DocumentReceivedEvent) error {
	return p.publish(ctx, evt.DocumentID.String(), documentEnvelope(evt))
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, key string, env Envelope) error {
	if p == nil || p.writer == nil {
		return nil
	}
	if key == "" {
		return errors.New("integration: message key required")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("integration: encode %s: %w", env.Type, err)
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(env.Type)}},
		Time:    env.OccurredAt,
	}
	carrier := headerCarrier{msg: &msg}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("integration: publish %s: %w", env.Type, err)
	}
	p.logger.Debug("event published", slog.String("type", env.Type), slog.String("key", key))
	return nil
}

// headerCarrier adapts Kafka headers to a propagation.TextMapCarrier.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
