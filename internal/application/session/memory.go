package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps sessions in process memory with an optional TTL.
// It suits tests and single-instance deployments.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryOption configures a MemoryBackend
type MemoryOption func(*MemoryBackend)

// WithClock overrides the clock used for expiry
func WithClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		b.now = now
	}
}

// NewMemoryBackend creates an in-memory backend; ttl <= 0 disables expiry
func NewMemoryBackend(ttl time.Duration, opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the stored bytes for key
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.lookup(key)
	return data, ok, nil
}

// Set stores data under key and restarts its TTL
func (b *MemoryBackend) Set(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.store(key, data)
	return nil
}

// Delete removes key
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, key)
	return nil
}

// Update runs fn under the backend lock
func (b *MemoryBackend) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current, _ := b.lookup(key)
	next, err := fn(current)
	if err != nil {
		return err
	}
	b.store(key, next)
	return nil
}

// Len returns the number of live sessions
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for key := range b.entries {
		if _, ok := b.lookup(key); ok {
			count++
		}
	}
	return count
}

func (b *MemoryBackend) lookup(key string) ([]byte, bool) {
	entry, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt) {
		delete(b.entries, key)
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}

func (b *MemoryBackend) store(key string, data []byte) {
	entry := memoryEntry{data: append([]byte(nil), data...)}
	if b.ttl > 0 {
		entry.expiresAt = b.now().Add(b.ttl)
	}
	b.entries[key] = entry
}

var _ AtomicBackend = (*MemoryBackend)(nil)
