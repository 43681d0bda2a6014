package store

import (
	"context"
	"sync"
)

// Memory keeps records in process memory
type Memory struct {
	mu      sync.RWMutex
	records map[string]ChannelRecord
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{records: make(map[string]ChannelRecord)}
}

func memoryKey(platform, chatID string) string {
	return platform + "\x00" + chatID
}

func (m *Memory) Resolve(ctx context.Context, platform, chatID, userID string) (ChannelRecord, error) {
	key := memoryKey(platform, chatID)

	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if ok {
		return rec, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok {
		return rec, nil
	}
	rec = newRecord(platform, chatID, userID)
	m.records[key] = rec
	return rec, nil
}

func (m *Memory) Reset(ctx context.Context, platform, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, memoryKey(platform, chatID))
	return nil
}

func (m *Memory) Close() error {
	return nil
}
