// Package cache memoizes consensus signals per (pair, timeframe, time bucket)
// so repeated requests inside one bar's window skip the provider fan-out.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/lumitrade/aiquorum/internal/signal"
)

// Key identifies one cached signal. Bucket is the bar-aligned time bucket
// from Timeframe.Bucket.
type Key struct {
	Pair      string
	Timeframe signal.Timeframe
	Bucket    int64
}

// String renders the key for log lines and the Redis keyspace.
func (k Key) String() string {
	return fmt.Sprintf("signal:%s:%s:%d", k.Pair, k.Timeframe, k.Bucket)
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Store is the signal cache contract. Implementations must be safe for
// concurrent use; the lock is never held across network calls.
type Store interface {
	Get(key Key) (*signal.ConsensusSignal, bool)
	Set(key Key, sig *signal.ConsensusSignal)
	Purge()
	Stats() Stats
}

// Memory is the default in-process store: a mutex-guarded map with LRU
// eviction and lazy TTL expiry on access.
type Memory struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[Key]*list.Element
	order      *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

type memoryEntry struct {
	key       Key
	sig       *signal.ConsensusSignal
	expiresAt time.Time
}

// NewMemory builds an in-memory store holding at most maxEntries signals for
// ttl each.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[Key]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached signal if present and unexpired. Expired entries are
// removed on the way out.
func (m *Memory) Get(key Key) (*signal.ConsensusSignal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.removeLocked(elem)
		m.misses++
		return nil, false
	}
	m.order.MoveToFront(elem)
	m.hits++
	return entry.sig, true
}

// Set stores the signal, evicting the least recently used entry when full.
// Last writer wins for a given key.
func (m *Memory) Set(key Key, sig *signal.ConsensusSignal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(m.ttl)
	if elem, ok := m.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.sig = sig
		entry.expiresAt = expiresAt
		m.order.MoveToFront(elem)
		return
	}

	elem := m.order.PushFront(&memoryEntry{key: key, sig: sig, expiresAt: expiresAt})
	m.entries[key] = elem

	for m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest)
		m.evictions++
	}
}

// Purge drops every entry. Called on configuration reload.
func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[Key]*list.Element)
	m.order.Init()
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Entries:   m.order.Len(),
	}
}

func (m *Memory) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	m.order.Remove(elem)
	delete(m.entries, entry.key)
}
