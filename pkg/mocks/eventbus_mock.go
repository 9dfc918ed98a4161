// Package mocks provides testify mocks of the engine's collaborators.
package mocks

import (
	"context"
	"sync"

	"github.com/renocrm/workflow-engine/pkg/eventbus"
	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock

	mu        sync.Mutex
	published []eventbus.Event
}

// NewPermissiveEventBus returns a MockEventBus that accepts every publish.
func NewPermissiveEventBus() *MockEventBus {
	bus := &MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return bus
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	m.mu.Lock()
	m.published = append(m.published, event)
	m.mu.Unlock()

	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// Published returns the events of eventType in publish order.
func (m *MockEventBus) Published(eventType events.EventType) []eventbus.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []eventbus.Event

	for _, event := range m.published {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

// Types returns the type of every published event in publish order.
func (m *MockEventBus) Types() []events.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]events.EventType, 0, len(m.published))
	for _, event := range m.published {
		types = append(types, event.GetType())
	}

	return types
}
