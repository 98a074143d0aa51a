package kafka

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go-faults/internal/observability"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type dialFunc func(ctx context.Context, network, address string) (*kafka.Conn, error)

// KafkaClient watches broker connectivity and reconnects with exponential backoff
type KafkaClient struct {
	brokers     []string
	logger      *logrus.Logger
	dial        dialFunc
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewKafkaClient(brokers []string, maxRetries int, logger *logrus.Logger) *KafkaClient {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &KafkaClient{
		brokers:     brokers,
		logger:      logger,
		dial:        kafka.DialContext,
		maxRetries:  maxRetries,
		baseBackoff: 1 * time.Second,
		maxBackoff:  30 * time.Second,
	}
}

// HealthCheck succeeds when any broker answers a metadata request
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if len(c.brokers) == 0 {
		return errors.New("no brokers configured")
	}

	var errs []error
	for _, broker := range c.brokers {
		if err := c.checkBroker(ctx, broker); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func (c *KafkaClient) checkBroker(ctx context.Context, broker string) error {
	conn, err := c.dial(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", broker, err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to read metadata from broker %s: %w", broker, err)
	}
	return nil
}

// HealthCheckLoop runs health checks periodically with reconnection logic
func (c *KafkaClient) HealthCheckLoop(ctx context.Context, interval time.Duration, onReconnect func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check loop stopped")
			return
		case <-ticker.C:
			if err := c.HealthCheck(ctx); err != nil {
				c.logger.WithError(err).Warn("Health check failed, attempting reconnection")
				if err := c.reconnectWithBackoff(ctx, onReconnect); err != nil {
					c.logger.WithError(err).Error("Reconnection failed")
				}
			}
		}
	}
}

func (c *KafkaClient) backoff(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(c.baseBackoff)*math.Pow(2, float64(attempt)),
		float64(c.maxBackoff),
	))
}

// reconnectWithBackoff implements exponential backoff reconnection strategy
func (c *KafkaClient) reconnectWithBackoff(ctx context.Context, onReconnect func() error) error {
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		backoff := c.backoff(attempt)

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"backoff": backoff,
		}).Info("Attempting reconnection")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := c.HealthCheck(ctx); err != nil {
			c.logger.WithError(err).Warn("Reconnection attempt failed")
			continue
		}

		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				c.logger.WithError(err).Warn("Reconnect callback failed")
				continue
			}
		}

		c.logger.Info("Reconnection successful")
		return nil
	}

	return fmt.Errorf("failed to reconnect after %d attempts", c.maxRetries)
}

// GetBrokers returns the list of brokers
func (c *KafkaClient) GetBrokers() []string {
	return c.brokers
}
