package main

import (
	"context"
	"encoding/json"
	"flag"
	"time"

	"go-faults/internal/config"
	"go-faults/internal/faults"
	"go-faults/internal/kafka"
	"go-faults/internal/observability"
	"go-faults/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	malformed := flag.Bool("malformed", false, "also send a message that cannot be decoded")
	invalid := flag.Bool("invalid", false, "also send an order with no items")
	flag.Parse()

	cfg := config.Load()
	observability.InitLogger(cfg.Logging.Level)
	logger := observability.GetLogger()

	sender := kafka.NewSender(kafka.SenderConfig{
		Brokers:     cfg.Kafka.Brokers,
		Acks:        cfg.Producer.Acks,
		Retries:     cfg.Producer.Retries,
		MaxRetries:  5,
		BaseBackoff: time.Second,
		Logger:      logger,
	})
	defer sender.Close()

	order := map[string]interface{}{
		"event_type":  "order_created",
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		"order_id":    "ORD-2025-001234",
		"customer_id": "CUST-567890",
		"items": []interface{}{
			map[string]interface{}{
				"product_id": "PROD-111",
				"name":       "iPhone 15 Pro",
				"quantity":   1,
				"price":      42900.00,
			},
			map[string]interface{}{
				"product_id": "PROD-222",
				"name":       "AirPods Pro",
				"quantity":   1,
				"price":      8990.00,
			},
		},
		"total_amount":   "51890.00",
		"currency":       "THB",
		"payment_method": "credit_card",
		"status":         "pending",
	}

	payloads := [][]byte{mustMarshal(order)}
	if *invalid {
		order["order_id"] = "ORD-2025-001235"
		order["items"] = []interface{}{}
		payloads = append(payloads, mustMarshal(order))
	}
	if *malformed {
		payloads = append(payloads, []byte(`{"event_type":"order_created","order_id":`))
	}

	destination := faults.Address{Queue: cfg.Producer.Topic}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, payload := range payloads {
		id := uuid.NewString()
		msg := &models.Message{
			ID:    id,
			Key:   uuid.NewString(),
			Value: payload,
			Headers: map[string]string{
				models.HeaderMessageID: id,
			},
			Timestamp: time.Now(),
		}

		entry := logger.WithFields(logrus.Fields{"topic": destination.Queue, "message_id": id})
		if err := sender.Send(ctx, msg, destination); err != nil {
			entry.WithError(err).Error("Failed to send message")
			continue
		}
		entry.Info("Send message to kafka success.")
	}
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		observability.GetLogger().WithError(err).Fatal("Failed to marshal message")
	}
	return data
}
