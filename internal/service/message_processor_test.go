package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go-faults/internal/faults"
	"go-faults/internal/kafka"
	"go-faults/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	orders []*OrderEvent
	err    error
}

func (s *recordingSink) Accept(ctx context.Context, order *OrderEvent) error {
	if s.err != nil {
		return s.err
	}
	s.orders = append(s.orders, order)
	return nil
}

func orderMessage(t *testing.T, order OrderEvent) *models.Message {
	t.Helper()
	value, err := json.Marshal(order)
	require.NoError(t, err)
	return &models.Message{ID: "msg-1", Key: order.OrderID, Value: value}
}

func validOrder() OrderEvent {
	return OrderEvent{
		EventType:  "order_created",
		OrderID:    "ORD-1",
		CustomerID: "CUST-1",
		Items:      []OrderItem{{ProductID: "PROD-1", Name: "Widget", Quantity: 2, Price: 10}},
		Currency:   "THB",
	}
}

func TestMessageProcessor_DecodeAndHandle(t *testing.T) {
	sink := &recordingSink{}
	p := NewMessageProcessor(sink, "")
	msg := orderMessage(t, validOrder())

	payload, err := p.Decode(msg)
	require.NoError(t, err)

	require.NoError(t, p.Handle(context.Background(), msg, payload))
	require.Len(t, sink.orders, 1)
	assert.Equal(t, "ORD-1", sink.orders[0].OrderID)
}

func TestMessageProcessor_DecodeFailure(t *testing.T) {
	p := NewMessageProcessor(nil, "")

	_, err := p.Decode(&models.Message{ID: "msg-1", Value: []byte(`{"order_id":`)})
	require.Error(t, err)

	failure := faults.DescribeFailure(err)
	assert.Equal(t, "go-faults/internal/faults.Fault", failure.Type)
	assert.Equal(t, "encoding/json.SyntaxError", failure.InnerType)
	assert.Equal(t, source, failure.Source)
	assert.NotEmpty(t, failure.StackTrace)
}

func TestMessageProcessor_ValidationFailuresArePermanent(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *OrderEvent)
		wantErr string
	}{
		{name: "missing id", mutate: func(o *OrderEvent) { o.OrderID = "" }, wantErr: "order_id is required"},
		{name: "no items", mutate: func(o *OrderEvent) { o.Items = nil }, wantErr: "has no items"},
		{name: "zero quantity", mutate: func(o *OrderEvent) { o.Items[0].Quantity = 0 }, wantErr: "has quantity 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			p := NewMessageProcessor(sink, "https://wiki.internal/orders/validation")

			order := validOrder()
			tt.mutate(&order)
			msg := orderMessage(t, order)

			payload, err := p.Decode(msg)
			require.NoError(t, err)

			err = p.Handle(context.Background(), msg, payload)
			require.Error(t, err)
			assert.True(t, kafka.IsPermanent(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, sink.orders)

			failure := faults.DescribeFailure(err)
			assert.Equal(t, "go-faults/internal/kafka.PermanentError", failure.Type)
			assert.Equal(t, "go-faults/internal/faults.Fault", failure.InnerType)
			assert.Equal(t, "https://wiki.internal/orders/validation", failure.HelpLink)
		})
	}
}

func TestMessageProcessor_SinkErrorIsRetryable(t *testing.T) {
	sinkErr := errors.New("database unavailable")
	p := NewMessageProcessor(&recordingSink{err: sinkErr}, "")
	msg := orderMessage(t, validOrder())

	payload, err := p.Decode(msg)
	require.NoError(t, err)

	err = p.Handle(context.Background(), msg, payload)
	require.Error(t, err)
	assert.False(t, kafka.IsPermanent(err))
	assert.ErrorIs(t, err, sinkErr)
}

func TestMessageProcessor_UnexpectedPayload(t *testing.T) {
	p := NewMessageProcessor(nil, "")
	err := p.Handle(context.Background(), &models.Message{ID: "msg-1"}, "raw")
	require.Error(t, err)
	assert.True(t, kafka.IsPermanent(err))
}
