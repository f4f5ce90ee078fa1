package services

import (
	"github.com/stretchr/testify/mock"
)

// MockBroadcaster is a testify mock for Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

// BroadcastUpdate implements Broadcaster
func (m *MockBroadcaster) BroadcastUpdate(updateType, subtype, action string, data interface{}) {
	m.Called(updateType, subtype, action, data)
}

// ClientCount implements ClientCounter
func (m *MockBroadcaster) ClientCount() int {
	args := m.Called()
	return args.Int(0)
}
