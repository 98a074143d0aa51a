package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueNotFound matches any QueueNotFoundError via errors.Is
	ErrQueueNotFound = errors.New("faults: queue not found")
	// ErrNoErrorQueue describes a forwarder built without an error queue
	ErrNoErrorQueue = errors.New("faults: no error queue configured")
	// ErrNoSender is wrapped when an error queue is configured without a sender
	ErrNoSender = errors.New("faults: no sender configured")
)

// QueueNotFoundError is returned by a MessageSender when the destination does not exist
type QueueNotFoundError struct {
	Queue Address
	Err   error
}

func (e *QueueNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("queue %q not found", e.Queue.String())
	}
	return fmt.Sprintf("queue %q not found: %v", e.Queue.String(), e.Err)
}

func (e *QueueNotFoundError) Unwrap() error {
	return e.Err
}

func (e *QueueNotFoundError) Is(target error) bool {
	return target == ErrQueueNotFound
}

// ConfigurationError indicates that failed messages can no longer be forwarded
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if err is, or wraps, a ConfigurationError
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}

// IsQueueNotFound checks if err is, or wraps, a QueueNotFoundError
func IsQueueNotFound(err error) bool {
	return errors.Is(err, ErrQueueNotFound)
}
