package chat

import (
	"context"
	"sync"
)

// TopicStore holds the interview topic of each login session.
type TopicStore interface {
	GetTopic(ctx context.Context, sessionID string) (string, error)
	// SetTopicNX stores topic only if the session has none and reports
	// whether it did.
	SetTopicNX(ctx context.Context, sessionID, topic string) (bool, error)
	ClearTopic(ctx context.Context, sessionID string) error
}

// MemoryTopicStore is a process local TopicStore for single instance setups.
type MemoryTopicStore struct {
	mu     sync.Mutex
	topics map[string]string
}

func NewMemoryTopicStore() *MemoryTopicStore {
	return &MemoryTopicStore{topics: make(map[string]string)}
}

func (m *MemoryTopicStore) GetTopic(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics[sessionID], nil
}

func (m *MemoryTopicStore) SetTopicNX(_ context.Context, sessionID, topic string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[sessionID]; ok {
		return false, nil
	}
	m.topics[sessionID] = topic
	return true, nil
}

func (m *MemoryTopicStore) ClearTopic(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.topics, sessionID)
	return nil
}
