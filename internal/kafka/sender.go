package kafka

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go-faults/internal/faults"
	"go-faults/internal/observability"
	"go-faults/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender delivers messages to Kafka topics. The queue part of the destination
// address is the topic; the machine part is ignored since the brokers are fixed.
type Sender struct {
	writer      messageWriter
	logger      *logrus.Logger
	maxRetries  int
	baseBackoff time.Duration
}

type SenderConfig struct {
	Brokers      []string
	Acks         int // -1 for all, 0 for none, 1 for leader
	Retries      int
	MaxRetries   int
	BaseBackoff  time.Duration
	WriteTimeout time.Duration
	Logger       *logrus.Logger
}

func NewSender(cfg SenderConfig) *Sender {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	// Topics are never auto-created so a missing error queue surfaces as UnknownTopicOrPartition
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		MaxAttempts:            cfg.Retries,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
		Async:                  false,
	}

	return newSender(writer, cfg)
}

// NewErrorQueueSender creates a Sender that makes exactly one write per Send. Failed
// messages are forwarded once; a failed write is reported to the caller as is.
func NewErrorQueueSender(cfg SenderConfig) *Sender {
	return NewSender(singleAttempt(cfg))
}

func singleAttempt(cfg SenderConfig) SenderConfig {
	cfg.MaxRetries = 0
	cfg.Retries = 1
	return cfg
}

func newSender(writer messageWriter, cfg SenderConfig) *Sender {
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Sender{
		writer:      writer,
		logger:      cfg.Logger,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
	}
}

// Send writes msg to the destination topic, retrying transient failures with exponential backoff.
// A missing topic is reported immediately as *faults.QueueNotFoundError.
func (s *Sender) Send(ctx context.Context, msg *models.Message, destination faults.Address) error {
	if destination.Queue == "" {
		return fmt.Errorf("kafka sender: empty destination topic")
	}

	kafkaMsg := toKafkaMessage(msg, destination.Queue)
	logger := s.logger.WithFields(logrus.Fields{
		"topic":      destination.Queue,
		"message_id": msg.ID,
	})

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(
				float64(s.baseBackoff)*math.Pow(2, float64(attempt-1)),
				float64(5*time.Second),
			))

			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Info("Retrying message send")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := s.writer.WriteMessages(ctx, kafkaMsg)
		if err == nil {
			logger.WithField("attempt", attempt+1).Debug("Message sent")
			return nil
		}

		if isUnknownTopic(err) {
			return &faults.QueueNotFoundError{Queue: destination, Err: err}
		}

		lastErr = err
		logger.WithError(err).WithField("attempt", attempt+1).Warn("Failed to send message")
	}

	if s.maxRetries == 0 {
		return fmt.Errorf("failed to send message: %w", lastErr)
	}
	return fmt.Errorf("failed to send message after %d attempts: %w", s.maxRetries+1, lastErr)
}

// Close gracefully shuts down the writer
func (s *Sender) Close() error {
	s.logger.Info("Closing kafka sender")
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close sender: %w", err)
	}
	return nil
}

func isUnknownTopic(err error) bool {
	if errors.Is(err, kafka.UnknownTopicOrPartition) {
		return true
	}
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && errors.Is(e, kafka.UnknownTopicOrPartition) {
				return true
			}
		}
	}
	return false
}

// toKafkaMessage converts the internal format, ordering headers by key
func toKafkaMessage(msg *models.Message, topic string) kafka.Message {
	keys := make([]string, 0, len(msg.Headers)+1)
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	if _, ok := msg.Headers[models.HeaderMessageID]; !ok && msg.ID != "" {
		keys = append(keys, models.HeaderMessageID)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		v, ok := msg.Headers[k]
		if !ok {
			v = msg.ID
		}
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	}
}

var _ faults.MessageSender = (*Sender)(nil)
