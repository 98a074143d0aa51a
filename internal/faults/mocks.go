package faults

import (
	"context"
	"sync"

	"go-faults/pkg/models"
)

// MockSender is a mock implementation of MessageSender for testing
type MockSender struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, msg *models.Message, destination Address) error
	sent     []SentMessage
}

type SentMessage struct {
	Message     *models.Message
	Destination Address
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(ctx context.Context, msg *models.Message, destination Address) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{Message: msg, Destination: destination})
	sendFunc := m.SendFunc
	m.mu.Unlock()

	if sendFunc != nil {
		return sendFunc(ctx, msg, destination)
	}
	return nil
}

// GetSent returns every Send call, including the ones that failed
func (m *MockSender) GetSent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	sent := make([]SentMessage, len(m.sent))
	copy(sent, m.sent)
	return sent
}

func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
