package notify

import (
	"context"
	"sync"
)

// Log is the per-recipient bounded notification log plus its seen-key set.
// Insert reports false when the dedupe key was already seen; the entry is
// neither stored nor delivered in that case.
type Log interface {
	Insert(ctx context.Context, r Recipient, n Notification, capacity int) (bool, error)
	List(ctx context.Context, r Recipient) ([]Notification, error)
	MarkRead(ctx context.Context, r Recipient, id string) error
	MarkAllRead(ctx context.Context, r Recipient) error
	Clear(ctx context.Context, r Recipient) error
}

type memoryEntry struct {
	items []Notification
	seen  map[string]struct{}
}

// MemoryLog keeps recipient logs in process memory. State does not survive a
// restart; the Redis log covers deployments that need rehydration.
type MemoryLog struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[string]*memoryEntry)}
}

func (l *MemoryLog) entry(r Recipient) *memoryEntry {
	e, ok := l.entries[r.Key()]
	if !ok {
		e = &memoryEntry{seen: make(map[string]struct{})}
		l.entries[r.Key()] = e
	}
	return e
}

func (l *MemoryLog) Insert(ctx context.Context, r Recipient, n Notification, capacity int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(r)
	if n.DedupeKey != "" {
		if _, dup := e.seen[n.DedupeKey]; dup {
			return false, nil
		}
		e.seen[n.DedupeKey] = struct{}{}
	}

	e.items = append([]Notification{n}, e.items...)
	if capacity > 0 && len(e.items) > capacity {
		e.items = e.items[:capacity]
	}
	return true, nil
}

func (l *MemoryLog) List(ctx context.Context, r Recipient) ([]Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[r.Key()]
	if !ok {
		return nil, nil
	}
	out := make([]Notification, len(e.items))
	copy(out, e.items)
	return out, nil
}

func (l *MemoryLog) MarkRead(ctx context.Context, r Recipient, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[r.Key()]
	if !ok {
		return nil
	}
	for i := range e.items {
		if e.items[i].ID == id {
			e.items[i].Read = true
			return nil
		}
	}
	return nil
}

func (l *MemoryLog) MarkAllRead(ctx context.Context, r Recipient) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[r.Key()]
	if !ok {
		return nil
	}
	for i := range e.items {
		e.items[i].Read = true
	}
	return nil
}

func (l *MemoryLog) Clear(ctx context.Context, r Recipient) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, r.Key())
	return nil
}
