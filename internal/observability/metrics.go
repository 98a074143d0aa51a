package observability

import (
	"sync/atomic"
)

// MetricsCollector provides hooks for metrics collection
// Can be implemented to integrate with Prometheus, StatsD, etc.
type MetricsCollector interface {
	IncReceived()
	IncProcessed()
	IncFailed()
	IncRetried()
	IncSerializationFailed()
	IncForwarded()
	IncForwardFailed()
	IncDropped()
}

// InMemoryMetrics is a simple in-memory implementation for testing/demo
type InMemoryMetrics struct {
	Received            atomic.Int64
	Processed           atomic.Int64
	Failed              atomic.Int64
	Retried             atomic.Int64
	SerializationFailed atomic.Int64
	Forwarded           atomic.Int64
	ForwardFailed       atomic.Int64
	Dropped             atomic.Int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

func (m *InMemoryMetrics) IncReceived() {
	m.Received.Add(1)
}

func (m *InMemoryMetrics) IncProcessed() {
	m.Processed.Add(1)
}

func (m *InMemoryMetrics) IncFailed() {
	m.Failed.Add(1)
}

func (m *InMemoryMetrics) IncRetried() {
	m.Retried.Add(1)
}

func (m *InMemoryMetrics) IncSerializationFailed() {
	m.SerializationFailed.Add(1)
}

// IncForwarded counts failed messages delivered to the error queue
func (m *InMemoryMetrics) IncForwarded() {
	m.Forwarded.Add(1)
}

// IncForwardFailed counts failed messages the error queue rejected
func (m *InMemoryMetrics) IncForwardFailed() {
	m.ForwardFailed.Add(1)
}

// IncDropped counts failed messages discarded because no error queue is configured
func (m *InMemoryMetrics) IncDropped() {
	m.Dropped.Add(1)
}

func (m *InMemoryMetrics) GetReceived() int64 {
	return m.Received.Load()
}

func (m *InMemoryMetrics) GetProcessed() int64 {
	return m.Processed.Load()
}

func (m *InMemoryMetrics) GetFailed() int64 {
	return m.Failed.Load()
}

func (m *InMemoryMetrics) GetRetried() int64 {
	return m.Retried.Load()
}

func (m *InMemoryMetrics) GetSerializationFailed() int64 {
	return m.SerializationFailed.Load()
}

func (m *InMemoryMetrics) GetForwarded() int64 {
	return m.Forwarded.Load()
}

func (m *InMemoryMetrics) GetForwardFailed() int64 {
	return m.ForwardFailed.Load()
}

func (m *InMemoryMetrics) GetDropped() int64 {
	return m.Dropped.Load()
}
