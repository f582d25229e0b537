package nats

import (
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/mock"
)

// MockConn is a mock implementation of Conn for testing.
type MockConn struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[string]nats.MsgHandler
}

func NewMockConn() *MockConn {
	return &MockConn{handlers: make(map[string]nats.MsgHandler)}
}

func (m *MockConn) Publish(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func (m *MockConn) Subscribe(subject string, handler nats.MsgHandler) (Unsubscriber, error) {
	args := m.Called(subject)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.handlers[subject] = handler
	m.mu.Unlock()
	return args.Get(0).(Unsubscriber), nil
}

func (m *MockConn) Close() {
	m.Called()
}

// Deliver invokes the handler registered for subject.
func (m *MockConn) Deliver(subject string, data []byte) {
	m.mu.Lock()
	h := m.handlers[subject]
	m.mu.Unlock()
	if h != nil {
		h(&nats.Msg{Subject: subject, Data: data})
	}
}

// MockSubscription is a mock Unsubscriber.
type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) Unsubscribe() error {
	args := m.Called()
	return args.Error(0)
}
