// Package eventstore remembers which webhook notifications were already
// processed so that a redelivered notification is not applied twice.
package eventstore

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a processed notification is remembered.
const DefaultTTL = 24 * time.Hour

// ClaimTTL is how long a claim lasts when its owner neither releases it nor
// marks it processed, for example after a crash.
const ClaimTTL = 5 * time.Minute

// State is the outcome of a claim.
type State int

const (
	// StateClaimed means the caller owns the key and must process it.
	StateClaimed State = iota
	// StateProcessed means the notification was already applied.
	StateProcessed
	// StateInProgress means another delivery owns the key.
	StateInProgress
)

// Store is an idempotency store keyed by notification. Claim is atomic, so
// concurrent deliveries of the same notification get a single owner.
type Store interface {
	Claim(ctx context.Context, key string) (State, error)
	Release(ctx context.Context, key string) error
	MarkProcessed(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Key builds the store key of a notification.
func Key(paymentID, status string) string {
	return paymentID + ":" + status
}

type entry struct {
	at   time.Time
	done bool
}

// MemoryStore is an in-memory Store. Entries expire after the TTL and are
// purged by a background goroutine until Close is called.
type MemoryStore struct {
	events map[string]entry
	mutex  sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	done   chan struct{}
	once   sync.Once
}

// NewMemoryStore creates a new in-memory store. A zero ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	store := &MemoryStore{
		events: make(map[string]entry),
		ttl:    ttl,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go store.cleanup(time.Hour)
	return store
}

// expired must be called with the mutex held.
func (m *MemoryStore) expired(e entry, now time.Time) bool {
	if e.done {
		return now.Sub(e.at) > m.ttl
	}
	return now.Sub(e.at) > ClaimTTL
}

// Claim takes the key unless it is processed or claimed by someone else.
func (m *MemoryStore) Claim(_ context.Context, key string) (State, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()
	if e, ok := m.events[key]; ok && !m.expired(e, now) {
		if e.done {
			return StateProcessed, nil
		}
		return StateInProgress, nil
	}
	m.events[key] = entry{at: now}
	return StateClaimed, nil
}

// Release drops a claim that was not processed.
func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if e, ok := m.events[key]; ok && !e.done {
		delete(m.events, key)
	}
	return nil
}

// Exists checks if the key was processed and has not expired yet.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	e, ok := m.events[key]
	if !ok || !e.done {
		return false, nil
	}
	return !m.expired(e, m.now()), nil
}

// MarkProcessed records the key as processed.
func (m *MemoryStore) MarkProcessed(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events[key] = entry{at: m.now(), done: true}
	return nil
}

// Size returns the number of stored keys, expired or not.
func (m *MemoryStore) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.events)
}

// Close stops the cleanup goroutine.
func (m *MemoryStore) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *MemoryStore) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.purge()
		}
	}
}

func (m *MemoryStore) purge() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()
	for key, e := range m.events {
		if m.expired(e, now) {
			delete(m.events, key)
		}
	}
}
