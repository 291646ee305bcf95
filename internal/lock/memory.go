package lock

import (
	"context"
	"sync"
)

// MemoryLocker is an in-process lock registry. It is only correct when every
// caller of the reminder scheduler lives in the same process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an empty registry.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// TryLock acquires id or returns ErrLocked.
func (l *MemoryLocker) TryLock(_ context.Context, id string) (Unlocker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[id]; ok {
		return nil, ErrLocked
	}
	l.held[id] = struct{}{}

	return &memoryUnlocker{l: l, id: id}, nil
}

type memoryUnlocker struct {
	l    *MemoryLocker
	id   string
	once sync.Once
}

func (u *memoryUnlocker) Unlock(context.Context) error {
	u.once.Do(func() {
		u.l.mu.Lock()
		delete(u.l.held, u.id)
		u.l.mu.Unlock()
	})

	return nil
}
