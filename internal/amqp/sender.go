package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-faults/internal/faults"
	"go-faults/internal/observability"
	"go-faults/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type channel interface {
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Config struct {
	URL              string
	PublishTimeout   time.Duration
	ReconnectBackoff time.Duration
	MaxReconnectWait time.Duration
	Logger           *logrus.Logger
}

// Sender publishes messages to RabbitMQ queues through the default exchange.
// The queue part of the destination is the routing key.
type Sender struct {
	cfg    Config
	logger *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	open func(ctx context.Context) (channel, error)
}

func NewSender(cfg Config) (*Sender, error) {
	s := newSender(cfg, nil)
	if err := s.connect(); err != nil {
		return nil, err
	}
	s.open = s.openChannel
	return s, nil
}

func newSender(cfg Config, open func(ctx context.Context) (channel, error)) *Sender {
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = time.Second
	}
	if cfg.MaxReconnectWait == 0 {
		cfg.MaxReconnectWait = 30 * time.Second
	}
	return &Sender{cfg: cfg, logger: cfg.Logger, open: open}
}

func (s *Sender) connect() error {
	s.logger.Info("Connecting to RabbitMQ")
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	s.conn = conn
	return nil
}

// reconnect redials with exponential backoff until it succeeds or ctx is done
func (s *Sender) reconnect(ctx context.Context) error {
	backoff := s.cfg.ReconnectBackoff
	for attempt := 1; ; attempt++ {
		err := s.connect()
		if err == nil {
			s.logger.WithField("attempt", attempt).Info("Reconnected to RabbitMQ")
			return nil
		}

		s.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": backoff,
		}).Warn("Reconnection attempt failed")

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up reconnecting to RabbitMQ: %w", err)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.cfg.MaxReconnectWait {
			backoff = s.cfg.MaxReconnectWait
		}
	}
}

// openChannel opens a channel on the current connection, reconnecting first if it was closed
func (s *Sender) openChannel(ctx context.Context) (channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.IsClosed() {
		s.logger.Warn("RabbitMQ connection closed, reconnecting")
		if err := s.reconnect(ctx); err != nil {
			return nil, err
		}
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// Send publishes msg to the destination queue and waits for the broker to confirm it.
// A queue that does not exist is reported as *faults.QueueNotFoundError.
func (s *Sender) Send(ctx context.Context, msg *models.Message, destination faults.Address) error {
	if destination.Queue == "" {
		return errors.New("amqp sender: empty destination queue")
	}

	logger := s.logger.WithFields(logrus.Fields{
		"queue":      destination.Queue,
		"message_id": msg.ID,
	})

	// A failed passive declare closes the channel, so every send gets its own
	ch, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclarePassive(destination.Queue, true, false, false, false, nil); err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
			return &faults.QueueNotFoundError{Queue: destination, Err: err}
		}
		return fmt.Errorf("failed to inspect queue %s: %w", destination.Queue, err)
	}

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("channel could not be put into confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := ch.Publish("", destination.Queue, false, false, toPublishing(msg)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	timer := time.NewTimer(s.cfg.PublishTimeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-confirms:
		if !ok {
			return errors.New("channel closed before publish was confirmed")
		}
		if !confirm.Ack {
			return errors.New("message published but not confirmed")
		}
		logger.Debug("Message published and confirmed")
		return nil
	case <-timer.C:
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying connection
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Closing amqp sender")
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func toPublishing(msg *models.Message) amqp.Publishing {
	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}

	return amqp.Publishing{
		Headers:       headers,
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.ID,
		CorrelationId: msg.Key,
		Timestamp:     time.Now(),
		Body:          msg.Value,
	}
}

var _ faults.MessageSender = (*Sender)(nil)
