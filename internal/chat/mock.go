package chat

import (
	"context"
	"fmt"
	"sync"
)

// MockClient implements Client for testing. It records posted messages and
// hands out sequential timestamps.
type MockClient struct {
	mu      sync.Mutex
	sent    []Message
	counter int

	// PostErr, when set, fails every PostMessage call.
	PostErr error
	// FailThreads fails PostMessage for replies into these thread ids.
	FailThreads map[string]bool
	// Users is the directory SearchUsers filters.
	Users     []User
	SearchErr error
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{FailThreads: make(map[string]bool)}
}

// PostMessage records msg and returns a fresh timestamp.
func (m *MockClient) PostMessage(ctx context.Context, msg Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PostErr != nil {
		return "", m.PostErr
	}
	if msg.ThreadTS != "" && m.FailThreads[msg.ThreadTS] {
		return "", fmt.Errorf("mock chat: thread %s unavailable", msg.ThreadTS)
	}
	m.counter++
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("1700000000.%06d", m.counter), nil
}

// SearchUsers returns the configured users whose name contains query.
func (m *MockClient) SearchUsers(ctx context.Context, query string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return FilterUsers(m.Users, query), nil
}

// --- Test helpers ---

// AllSent returns a copy of all posted messages.
func (m *MockClient) AllSent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns the number of posted messages.
func (m *MockClient) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// LastSent returns the most recently posted message.
func (m *MockClient) LastSent() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}
