package faults

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go-faults/internal/observability"
	"go-faults/pkg/models"

	"github.com/sirupsen/logrus"
)

// MessageSender delivers a message to a destination address. Implementations return
// a *QueueNotFoundError when the destination does not exist.
type MessageSender interface {
	Send(ctx context.Context, msg *models.Message, destination Address) error
}

// FailureManager decides what happens to a message that cannot be processed
type FailureManager interface {
	Init(localAddress Address)
	ReportSerializationFailure(ctx context.Context, msg *models.Message, err error) error
	ReportProcessingFailure(ctx context.Context, msg *models.Message, err error) error
}

// ErrorQueueProvider is implemented by failure managers that forward to an error queue
type ErrorQueueProvider interface {
	ErrorQueue() Address
}

// ErrorQueueOf returns the error queue exposed by strategy, or the zero Address
// when strategy does not expose one.
func ErrorQueueOf(strategy any) Address {
	if p, ok := strategy.(ErrorQueueProvider); ok {
		return p.ErrorQueue()
	}
	return Address{}
}

type ForwarderConfig struct {
	// ErrorQueue is where failed messages go. The zero value disables forwarding.
	ErrorQueue Address
	Sender     MessageSender
	Logger     *logrus.Logger
	Metrics    observability.MetricsCollector
	Clock      func() time.Time
}

// Forwarder stamps failure headers onto messages and sends them to the error queue.
//
// Init must be called during startup, before reports are made from concurrent workers.
// After that the Forwarder is safe for concurrent use.
type Forwarder struct {
	errorQueue   Address
	sender       MessageSender
	logger       *logrus.Logger
	metrics      observability.MetricsCollector
	clock        func() time.Time
	localAddress atomic.Pointer[Address]
}

func NewForwarder(cfg ForwarderConfig) *Forwarder {
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Forwarder{
		errorQueue: cfg.ErrorQueue,
		sender:     cfg.Sender,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
	}
}

// Init sets the address reported in the FailedQ header. Calling it again overwrites it.
func (f *Forwarder) Init(localAddress Address) {
	f.localAddress.Store(&localAddress)
}

// ErrorQueue returns the configured error queue, zero if forwarding is disabled
func (f *Forwarder) ErrorQueue() Address {
	return f.errorQueue
}

// FailedQ returns the address written to the FailedQ header
func (f *Forwarder) FailedQ() Address {
	if addr := f.localAddress.Load(); addr != nil && !addr.IsZero() {
		return *addr
	}
	return LocalAddress()
}

// ReportSerializationFailure forwards a message whose payload could not be decoded
func (f *Forwarder) ReportSerializationFailure(ctx context.Context, msg *models.Message, err error) error {
	return f.forward(ctx, msg, err, ReasonSerializationFailed)
}

// ReportProcessingFailure forwards a message whose handler failed every attempt
func (f *Forwarder) ReportProcessingFailure(ctx context.Context, msg *models.Message, err error) error {
	return f.forward(ctx, msg, err, ReasonProcessingFailed)
}

func (f *Forwarder) forward(ctx context.Context, msg *models.Message, failure error, reason string) error {
	var messageID string
	if msg != nil {
		messageID = msg.ID
	}

	logger := f.logger.WithFields(logrus.Fields{
		"message_id": messageID,
		"reason":     reason,
	})

	if f.errorQueue.IsZero() {
		f.metrics.IncDropped()
		logger.WithError(failure).Error(fmt.Sprintf("Message processing always fails for message with ID %s.", messageID))
		return nil
	}
	if f.sender == nil {
		f.metrics.IncForwardFailed()
		errorMessage := fmt.Sprintf("Could not forward failed message to error queue '%s' as no sender is configured.", f.errorQueue.String())
		observability.LogFatal(logger.WithField("error_queue", f.errorQueue.String()), errorMessage)
		return &ConfigurationError{Message: errorMessage, Err: ErrNoSender}
	}

	annotated := Annotate(msg, DescribeFailure(failure), reason, f.FailedQ(), f.clock())

	err := f.sender.Send(ctx, annotated, f.errorQueue)
	if err == nil {
		f.metrics.IncForwarded()
		logger.WithField("error_queue", f.errorQueue.String()).Debug("Failed message forwarded to error queue")
		return nil
	}

	f.metrics.IncForwardFailed()

	var errorMessage string
	var notFound *QueueNotFoundError
	if errors.As(err, &notFound) {
		errorMessage = fmt.Sprintf("Could not forward failed message to error queue '%s' as it could not be found.", notFound.Queue.String())
		observability.LogFatal(logger.WithField("error_queue", notFound.Queue.String()), errorMessage)
	} else {
		errorMessage = "Could not forward failed message to error queue."
		observability.LogFatal(logger.WithError(err), errorMessage)
	}

	return &ConfigurationError{Message: errorMessage, Err: err}
}

var (
	_ FailureManager     = (*Forwarder)(nil)
	_ ErrorQueueProvider = (*Forwarder)(nil)
)
