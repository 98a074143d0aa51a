package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go-faults/internal/amqp"
	"go-faults/internal/config"
	"go-faults/internal/faults"
	"go-faults/internal/kafka"
	"go-faults/internal/observability"
	"go-faults/internal/service"

	"github.com/sirupsen/logrus"
)

type closingSender interface {
	faults.MessageSender
	Close() error
}

func main() {
	serviceName := flag.String("service", "", "consumer group ID, overrides KAFKA_CONSUMER_GROUP_ID")
	helpLink := flag.String("help-link", "", "documentation link attached to order validation failures")
	flag.Parse()

	cfg := config.Load()
	if *serviceName != "" {
		cfg.Consumer.GroupID = *serviceName
	}

	observability.InitLogger(cfg.Logging.Level)
	logger := observability.GetLogger()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	if err := run(cfg, logger, *helpLink); err != nil {
		logger.WithError(err).Error("Forwarder stopped")
		os.Exit(1)
	}
}

// run consumes until interrupted. It returns an error when the sender cannot be created
// or failed messages can no longer be forwarded.
func run(cfg *config.Config, logger *logrus.Logger, helpLink string) error {
	logger.WithFields(logrus.Fields{
		"transport":     cfg.Transport,
		"brokers":       cfg.Kafka.Brokers,
		"topic":         cfg.Consumer.Topic,
		"group_id":      cfg.Consumer.GroupID,
		"error_queue":   cfg.Faults.ErrorQueue.String(),
		"local_address": cfg.Faults.LocalAddress.String(),
	}).Info("Starting failure forwarder")

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sender.Close(); err != nil {
			logger.WithError(err).Error("Failed to close sender")
		}
	}()

	if cfg.Faults.ErrorQueue.IsZero() {
		logger.WithError(faults.ErrNoErrorQueue).Warn("Failed messages will be logged and dropped")
	}

	metrics := observability.NewInMemoryMetrics()

	forwarder := faults.NewForwarder(faults.ForwarderConfig{
		ErrorQueue: cfg.Faults.ErrorQueue,
		Sender:     sender,
		Logger:     logger,
		Metrics:    metrics,
	})
	forwarder.Init(cfg.Faults.LocalAddress)

	retryPolicy := kafka.DefaultRetryPolicy()
	retryPolicy.MaxRetries = cfg.Consumer.RetryMax

	consumerCfg := kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Consumer.Topic,
		GroupID:        cfg.Consumer.GroupID,
		Workers:        cfg.Consumer.Workers,
		FetchMinBytes:  cfg.Consumer.FetchMinBytes,
		FetchMaxBytes:  cfg.Consumer.FetchMaxBytes,
		RetryPolicy:    retryPolicy,
		ForwardTimeout: cfg.Consumer.ForwardTimeout,
		Metrics:        metrics,
		Logger:         logger,
	}
	if err := consumerCfg.Validate(); err != nil {
		return err
	}

	consumer := kafka.NewConsumer(consumerCfg, forwarder)
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close consumer")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := kafka.NewKafkaClient(cfg.Kafka.Brokers, 5, logger)
	if err := client.HealthCheck(ctx); err != nil {
		logger.WithError(err).Warn("Kafka brokers not reachable yet")
	}
	go client.HealthCheckLoop(ctx, cfg.Health.CheckInterval, nil)

	processor := service.NewMessageProcessor(nil, helpLink)

	err = consumer.Start(ctx, processor)

	logger.WithFields(logrus.Fields{
		"received":             metrics.GetReceived(),
		"processed":            metrics.GetProcessed(),
		"failed":               metrics.GetFailed(),
		"serialization_failed": metrics.GetSerializationFailed(),
		"forwarded":            metrics.GetForwarded(),
		"forward_failed":       metrics.GetForwardFailed(),
		"dropped":              metrics.GetDropped(),
	}).Info("Consumer stopped")

	return err
}

func newSender(cfg *config.Config, logger *logrus.Logger) (closingSender, error) {
	if cfg.Transport == config.TransportAMQP {
		sender, err := amqp.NewSender(amqp.Config{
			URL:            cfg.AMQP.URL,
			PublishTimeout: cfg.AMQP.PublishTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return sender, nil
	}

	senderCfg := kafka.SenderConfig{
		Brokers: cfg.Kafka.Brokers,
		Acks:    cfg.Producer.Acks,
		Logger:  logger,
	}
	if err := senderCfg.Validate(); err != nil {
		return nil, err
	}
	return kafka.NewErrorQueueSender(senderCfg), nil
}
