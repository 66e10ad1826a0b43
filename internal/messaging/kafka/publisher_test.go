package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/order"
)

func testOrder() *order.Order {
	return &order.Order{
		ID:       "order-1",
		UserID:   "user-1",
		Subtotal: decimal.RequireFromString("250"),
		Discount: decimal.RequireFromString("100"),
		Total:    decimal.RequireFromString("150"),
		Lines: []order.Line{
			{
				ProductID: "p1",
				Quantity:  2,
				UnitPrice: decimal.RequireFromString("60"),
				Discount:  decimal.RequireFromString("48"),
				Total:     decimal.RequireFromString("72"),
			},
		},
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_OrderPlaced(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "orders.placed", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "order-1", string(key))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, EventOrderPlaced, string(msg.Headers[0].Value))
		return nil
	})

	p := NewPublisher(producer, "orders.placed")
	require.NoError(t, p.OrderPlaced(context.Background(), testOrder()))
	require.NoError(t, p.Close())
}

func TestPublisher_OrderPlacedError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(producer, "orders.placed")
	err := p.OrderPlaced(context.Background(), testOrder())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestEncodeOrderPlaced(t *testing.T) {
	data := EncodeOrderPlaced(testOrder())
	require.True(t, jx.Valid(data))

	fields := map[string]string{}
	var lines int
	require.NoError(t, jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key == "lines" {
			return d.Arr(func(d *jx.Decoder) error {
				lines++
				return d.Skip()
			})
		}
		v, err := d.Str()
		fields[key] = v
		return err
	}))

	assert.Equal(t, map[string]string{
		"type":       EventOrderPlaced,
		"order_id":   "order-1",
		"user_id":    "user-1",
		"subtotal":   "250.00",
		"discount":   "100.00",
		"total":      "150.00",
		"created_at": "2025-03-01T10:00:00Z",
	}, fields)
	assert.Equal(t, 1, lines)
}
