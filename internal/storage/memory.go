package storage

import (
	"sync"
	"time"
)

// MemoryTier is the session-scoped tier: values live for the lifetime of
// the embedding process, mirroring tab-session storage.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryTier creates an empty session tier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{entries: make(map[string][]byte)}
}

// Name implements Tier.
func (t *MemoryTier) Name() string { return "session" }

// Set stores a copy of data under key. The expiry is carried inside the
// envelope, so the tier itself never fails or expires entries.
func (t *MemoryTier) Set(key string, data []byte, _ *time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	t.entries[key] = buf
	return nil
}

// Get implements Tier.
func (t *MemoryTier) Get(key string) ([]byte, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, ok := t.entries[key]
	if !ok {
		return nil, false, nil
	}
	return data, true, nil
}

// Remove implements Tier.
func (t *MemoryTier) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
	return nil
}
