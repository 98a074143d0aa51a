package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go-faults/internal/faults"
	"go-faults/internal/kafka"
	"go-faults/internal/observability"
	"go-faults/pkg/models"

	"github.com/sirupsen/logrus"
)

const source = "order-processor"

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type OrderEvent struct {
	EventType   string      `json:"event_type"`
	OrderID     string      `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	Items       []OrderItem `json:"items"`
	TotalAmount string      `json:"total_amount"`
	Currency    string      `json:"currency"`
	Status      string      `json:"status"`
}

// OrderSink receives validated orders. Errors it returns are retried by the consumer.
type OrderSink interface {
	Accept(ctx context.Context, order *OrderEvent) error
}

// LogSink logs accepted orders
type LogSink struct {
	Logger *logrus.Logger
}

func (s LogSink) Accept(ctx context.Context, order *OrderEvent) error {
	s.Logger.WithFields(logrus.Fields{
		"order_id":    order.OrderID,
		"customer_id": order.CustomerID,
		"items":       len(order.Items),
	}).Info("Order accepted")
	return nil
}

// MessageProcessor decodes order events and hands valid ones to a sink
type MessageProcessor struct {
	logger   *logrus.Logger
	sink     OrderSink
	helpLink string
}

// NewMessageProcessor creates a processor. helpLink is attached to validation failures
// and may be empty; a nil sink logs orders.
func NewMessageProcessor(sink OrderSink, helpLink string) *MessageProcessor {
	logger := observability.GetLogger()
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	return &MessageProcessor{
		logger:   logger,
		sink:     sink,
		helpLink: helpLink,
	}
}

// Decode parses the message value as an order event
func (p *MessageProcessor) Decode(msg *models.Message) (any, error) {
	var order OrderEvent
	if err := json.Unmarshal(msg.Value, &order); err != nil {
		return nil, faults.Wrap(err, source, "failed to decode order event")
	}
	return &order, nil
}

// Handle validates a decoded order and passes it to the sink.
// Invalid orders fail permanently since retrying cannot fix them.
func (p *MessageProcessor) Handle(ctx context.Context, msg *models.Message, payload any) error {
	order, ok := payload.(*OrderEvent)
	if !ok {
		return kafka.Permanent(fmt.Errorf("unexpected payload type %T", payload))
	}

	p.logger.WithFields(logrus.Fields{
		"key":        msg.Key,
		"message_id": msg.ID,
		"order_id":   order.OrderID,
	}).Info("Processing message")

	if err := p.validate(order); err != nil {
		return kafka.Permanent(err)
	}

	if err := p.sink.Accept(ctx, order); err != nil {
		return faults.Wrap(err, source, "failed to accept order "+order.OrderID)
	}

	p.logger.WithField("order_id", order.OrderID).Debug("Message processed successfully")
	return nil
}

func (p *MessageProcessor) validate(order *OrderEvent) error {
	switch {
	case order.OrderID == "":
		return faults.New(source, "order_id is required").WithHelpLink(p.helpLink)
	case len(order.Items) == 0:
		return faults.New(source, fmt.Sprintf("order %s has no items", order.OrderID)).WithHelpLink(p.helpLink)
	}
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return faults.New(source, fmt.Sprintf("order %s: item %s has quantity %d", order.OrderID, item.ProductID, item.Quantity)).
				WithHelpLink(p.helpLink)
		}
	}
	return nil
}

var _ kafka.Handler = (*MessageProcessor)(nil)
