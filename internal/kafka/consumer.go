package kafka

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go-faults/internal/faults"
	"go-faults/internal/observability"
	"go-faults/pkg/models"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler decodes and processes consumed messages. Decode errors are reported as
// serialization failures; Handle errors are retried and then reported as processing failures.
type Handler interface {
	Decode(msg *models.Message) (any, error)
	Handle(ctx context.Context, msg *models.Message, payload any) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the input topic with a worker pool and hands unrecoverable
// messages to a faults.FailureManager
type Consumer struct {
	reader         messageReader
	failures       faults.FailureManager
	logger         *logrus.Logger
	metrics        observability.MetricsCollector
	workers        int
	retryPolicy    RetryPolicy
	forwardTimeout time.Duration
	dedupeStore    DedupeStore
	wg             sync.WaitGroup

	failOnce sync.Once
	fatalErr error
	cancel   context.CancelFunc
}

type ConsumerConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	Workers        int
	FetchMinBytes  int
	FetchMaxBytes  int
	RetryPolicy    RetryPolicy
	ForwardTimeout time.Duration
	Metrics        observability.MetricsCollector
	DedupeStore    DedupeStore
	Logger         *logrus.Logger
}

func NewConsumer(cfg ConsumerConfig, failures faults.FailureManager) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       cfg.FetchMinBytes,
		MaxBytes:       cfg.FetchMaxBytes,
		CommitInterval: 0, // Manual commits
		StartOffset:    kafka.LastOffset,
	})

	return newConsumer(cfg, reader, failures)
}

func newConsumer(cfg ConsumerConfig, reader messageReader, failures faults.FailureManager) *Consumer {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.DedupeStore == nil {
		cfg.DedupeStore = NewInMemoryDedupeStore(1 * time.Hour)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}
	if cfg.ForwardTimeout == 0 {
		cfg.ForwardTimeout = 10 * time.Second
	}

	return &Consumer{
		reader:         reader,
		failures:       failures,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		workers:        cfg.Workers,
		retryPolicy:    cfg.RetryPolicy,
		forwardTimeout: cfg.ForwardTimeout,
		dedupeStore:    cfg.DedupeStore,
	}
}

// Start consumes messages until ctx is cancelled or failed messages can no longer be
// forwarded. In the latter case the forwarding error is returned.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel

	c.logger.WithField("workers", c.workers).Info("Starting consumer")

	msgChan := make(chan kafka.Message, c.workers*2)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgChan, handler)
	}

	c.wg.Add(1)
	go c.fetcher(ctx, msgChan)

	c.wg.Wait()
	return c.fatalErr
}

// fail records the first fatal error and stops the pipeline
func (c *Consumer) fail(err error) {
	c.failOnce.Do(func() {
		c.fatalErr = err
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// fetcher reads messages from Kafka and sends to worker pool
func (c *Consumer) fetcher(ctx context.Context, msgChan chan<- kafka.Message) {
	defer c.wg.Done()
	defer close(msgChan)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Fetcher stopping due to context cancellation")
				return
			}
			c.logger.WithError(err).Error("Failed to fetch message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.metrics.IncReceived()

		select {
		case msgChan <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// worker processes messages from the channel
func (c *Consumer) worker(ctx context.Context, id int, msgChan <-chan kafka.Message, handler Handler) {
	defer c.wg.Done()
	c.logger.WithField("worker_id", id).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			c.logger.WithField("worker_id", id).Info("Worker stopping due to context cancellation")
			return
		case msg, ok := <-msgChan:
			if !ok {
				c.logger.WithField("worker_id", id).Info("Worker stopping - channel closed")
				return
			}

			if err := c.processMessage(ctx, msg, handler, id); err != nil {
				if faults.IsConfigurationError(err) {
					c.logger.WithError(err).Error("Failed messages can no longer be forwarded, stopping consumer")
					c.fail(err)
					return
				}
				c.logger.WithError(err).Warn("Message left uncommitted")
			}
		}
	}
}

// processMessage decodes and handles one message. Messages are committed once they are
// processed, dropped as duplicates, or handed to the failure manager successfully; the
// first and last of those also record the message ID so a redelivery is skipped.
func (c *Consumer) processMessage(ctx context.Context, kafkaMsg kafka.Message, handler Handler, workerID int) error {
	msg := toInternalMessage(kafkaMsg)

	logger := c.logger.WithFields(logrus.Fields{
		"topic":      kafkaMsg.Topic,
		"partition":  kafkaMsg.Partition,
		"offset":     kafkaMsg.Offset,
		"message_id": msg.ID,
		"worker_id":  workerID,
	})

	if c.dedupeStore.Exists(msg.ID) {
		logger.Info("Duplicate message detected, skipping")
		c.commitMessage(kafkaMsg)
		return nil
	}

	payload, decodeErr := handler.Decode(msg)
	if decodeErr != nil {
		c.metrics.IncSerializationFailed()
		logger.WithError(decodeErr).Error("Message could not be decoded")

		if err := c.report(ctx, func(ctx context.Context) error {
			return c.failures.ReportSerializationFailure(ctx, msg, decodeErr)
		}); err != nil {
			return err
		}
		c.dedupeStore.Add(msg.ID)
		c.commitMessage(kafkaMsg)
		return nil
	}

	var handlerErr error
	for attempt := 0; attempt <= c.retryPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.IncRetried()
			backoff := c.retryPolicy.Backoff(attempt - 1)
			logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoff,
			}).Warn("Retrying message")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		handlerErr = c.handle(ctx, handler, msg, payload)
		if handlerErr == nil {
			c.metrics.IncProcessed()
			logger.Debug("Message processed successfully")
			c.dedupeStore.Add(msg.ID)
			c.commitMessage(kafkaMsg)
			return nil
		}

		if IsPermanent(handlerErr) {
			logger.WithError(handlerErr).Warn("Permanent error, skipping retries")
			break
		}
		logger.WithError(handlerErr).WithField("attempt", attempt+1).Warn("Handler error")
	}

	c.metrics.IncFailed()
	logger.WithError(handlerErr).Error("Message processing failed")

	if err := c.report(ctx, func(ctx context.Context) error {
		return c.failures.ReportProcessingFailure(ctx, msg, handlerErr)
	}); err != nil {
		return err
	}
	c.dedupeStore.Add(msg.ID)
	c.commitMessage(kafkaMsg)
	return nil
}

// report runs a failure report on a context that survives consumer shutdown
func (c *Consumer) report(ctx context.Context, fn func(ctx context.Context) error) error {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.forwardTimeout)
	defer cancel()
	return fn(reportCtx)
}

// handle runs the handler, converting panics into permanent errors
func (c *Consumer) handle(ctx context.Context, handler Handler, msg *models.Message, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"panic":      r,
				"message_id": msg.ID,
				"stack":      string(debug.Stack()),
			}).Error("Panic in handler")
			err = Permanent(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	return handler.Handle(ctx, msg, payload)
}

// commitMessage commits the message offset
func (c *Consumer) commitMessage(msg kafka.Message) {
	if err := c.reader.CommitMessages(context.Background(), msg); err != nil {
		c.logger.WithError(err).Error("Failed to commit message")
	}
}

// toInternalMessage converts Kafka message to internal format.
// Messages without a message-id header get a generated one.
func toInternalMessage(kafkaMsg kafka.Message) *models.Message {
	headers := make(map[string]string, len(kafkaMsg.Headers))
	for _, h := range kafkaMsg.Headers {
		headers[h.Key] = string(h.Value)
	}

	id := headers[models.HeaderMessageID]
	if id == "" {
		id = uuid.NewString()
		headers[models.HeaderMessageID] = id
	}
	if _, ok := headers[models.HeaderOriginalTopic]; !ok && kafkaMsg.Topic != "" {
		headers[models.HeaderOriginalTopic] = kafkaMsg.Topic
	}

	return &models.Message{
		ID:        id,
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   headers,
		Timestamp: kafkaMsg.Time,
	}
}

// Close gracefully shuts down the consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing consumer")
	if closer, ok := c.dedupeStore.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}
