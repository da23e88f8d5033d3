package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/carelink/medfleet/core/command"
)

// MockPublisher is a simple in-memory publisher used in tests.
type MockPublisher struct {
	Launches   map[string]command.LaunchOrder
	Aborts     map[string]command.AbortOrder
	FailIDs    map[string]bool
	AckResults map[string]bool
	mu         sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Launches:   make(map[string]command.LaunchOrder),
		Aborts:     make(map[string]command.AbortOrder),
		FailIDs:    make(map[string]bool),
		AckResults: make(map[string]bool),
	}
}

// SendLaunch records the order or returns an error if configured to fail.
func (m *MockPublisher) SendLaunch(vehicleID string, order command.LaunchOrder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[vehicleID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Launches[vehicleID] = order
	commandID := fmt.Sprintf("cmd-%s", vehicleID)
	m.AckResults[commandID] = true
	return commandID, nil
}

// SendAbort records the abort order.
func (m *MockPublisher) SendAbort(vehicleID string, order command.AbortOrder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[vehicleID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Aborts[vehicleID] = order
	commandID := fmt.Sprintf("abort-%s", vehicleID)
	m.AckResults[commandID] = true
	return commandID, nil
}

// WaitForAck simulates an immediate acknowledgment based on the stored result.
func (m *MockPublisher) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.AckResults[commandID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("unknown command")
	}
	return ok, nil
}
