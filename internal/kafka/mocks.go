package kafka

import (
	"context"
	"fmt"
	"sync"

	"go-faults/internal/faults"
	"go-faults/pkg/models"

	kafka "github.com/segmentio/kafka-go"
)

// MockWriter is a mock implementation of messageWriter for testing
type MockWriter struct {
	mu             sync.RWMutex
	Written        []kafka.Message
	WriteFunc      func(ctx context.Context, msgs ...kafka.Message) error
	FailCount      int
	failureCounter int
	closed         bool
}

func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, msgs...)
	}

	// Simulate failures for testing retry logic
	if m.FailCount > 0 {
		m.failureCounter++
		if m.failureCounter <= m.FailCount {
			return fmt.Errorf("simulated write failure %d", m.failureCounter)
		}
	}

	m.Written = append(m.Written, msgs...)
	return nil
}

func (m *MockWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockWriter) GetWritten() []kafka.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	written := make([]kafka.Message, len(m.Written))
	copy(written, m.Written)
	return written
}

// MockReader is a mock implementation of messageReader for testing.
// Queued messages are returned in order; afterwards FetchMessage blocks until ctx is done.
type MockReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func NewMockReader(msgs ...kafka.Message) *MockReader {
	return &MockReader{queue: msgs}
}

func (m *MockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *MockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockReader) GetCommitted() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	committed := make([]kafka.Message, len(m.committed))
	copy(committed, m.committed)
	return committed
}

// FailureReport records one call made to MockFailureManager
type FailureReport struct {
	Reason  string
	Message *models.Message
	Err     error
}

// MockFailureManager is a mock implementation of faults.FailureManager for testing
type MockFailureManager struct {
	mu           sync.Mutex
	ReportFunc   func(reason string, msg *models.Message, err error) error
	reports      []FailureReport
	localAddress faults.Address
}

func NewMockFailureManager() *MockFailureManager {
	return &MockFailureManager{}
}

func (m *MockFailureManager) Init(localAddress faults.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localAddress = localAddress
}

func (m *MockFailureManager) ReportSerializationFailure(ctx context.Context, msg *models.Message, err error) error {
	return m.record(faults.ReasonSerializationFailed, msg, err)
}

func (m *MockFailureManager) ReportProcessingFailure(ctx context.Context, msg *models.Message, err error) error {
	return m.record(faults.ReasonProcessingFailed, msg, err)
}

func (m *MockFailureManager) record(reason string, msg *models.Message, err error) error {
	m.mu.Lock()
	m.reports = append(m.reports, FailureReport{Reason: reason, Message: msg, Err: err})
	reportFunc := m.ReportFunc
	m.mu.Unlock()

	if reportFunc != nil {
		return reportFunc(reason, msg, err)
	}
	return nil
}

func (m *MockFailureManager) GetReports() []FailureReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	reports := make([]FailureReport, len(m.reports))
	copy(reports, m.reports)
	return reports
}

// MockHandler is a mock implementation of Handler for testing
type MockHandler struct {
	mu         sync.Mutex
	DecodeFunc func(msg *models.Message) (any, error)
	HandleFunc func(ctx context.Context, msg *models.Message, payload any) error
	calls      int
}

func (m *MockHandler) Decode(msg *models.Message) (any, error) {
	if m.DecodeFunc != nil {
		return m.DecodeFunc(msg)
	}
	return string(msg.Value), nil
}

func (m *MockHandler) Handle(ctx context.Context, msg *models.Message, payload any) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.HandleFunc != nil {
		return m.HandleFunc(ctx, msg, payload)
	}
	return nil
}

func (m *MockHandler) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockDedupeStore is a mock implementation of DedupeStore for testing
type MockDedupeStore struct {
	mu          sync.RWMutex
	ExistsFunc  func(messageID string) bool
	AddFunc     func(messageID string) error
	existingIDs map[string]bool
}

func NewMockDedupeStore() *MockDedupeStore {
	return &MockDedupeStore{
		existingIDs: make(map[string]bool),
	}
}

func (m *MockDedupeStore) Exists(messageID string) bool {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(messageID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.existingIDs[messageID]
}

func (m *MockDedupeStore) Add(messageID string) error {
	if m.AddFunc != nil {
		return m.AddFunc(messageID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingIDs[messageID] = true
	return nil
}

func (m *MockDedupeStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingIDs = make(map[string]bool)
}
