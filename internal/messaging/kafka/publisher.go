// Package kafka publishes order events to Kafka.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// EventOrderPlaced is the type header of OrderPlaced events.
const EventOrderPlaced = "order.placed"

// Config configures the Kafka producer.
type Config struct {
	Brokers []string `usage:"Kafka brokers, empty disables event publishing"`
	Topic   string   `default:"orders.placed" usage:"Topic for order placed events"`
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher sends OrderPlaced events keyed by order id, so all events of an
// order land on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer creates an idempotent synchronous producer.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return producer, nil
}

// NewPublisher returns a Publisher writing to topic.
func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// OrderPlaced publishes o.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(o.ID),
		Value: sarama.ByteEncoder(EncodeOrderPlaced(o)),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(EventOrderPlaced)},
		},
		Timestamp: o.CreatedAt,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrapf(err, "send order %q", o.ID)
	}

	zctx.From(ctx).Debug("Order event sent",
		zap.String("topic", p.topic),
		zap.String("order_id", o.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return errors.Wrap(err, "close kafka producer")
	}
	return nil
}

// EncodeOrderPlaced renders the event payload of o.
func EncodeOrderPlaced(o *order.Order) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("type")
	e.Str(EventOrderPlaced)
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("discount")
	e.Str(o.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unit_price")
		e.Str(l.UnitPrice.StringFixed(2))
		e.FieldStart("discount")
		e.Str(l.Discount.StringFixed(2))
		e.FieldStart("total")
		e.Str(l.Total.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}
