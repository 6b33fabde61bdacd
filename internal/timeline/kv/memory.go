package kv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// changeBuffer is the per-member change channel capacity.
const changeBuffer = 256

// Hub is shared in-memory storage. Every Memory opened from the same hub
// sees the same keys.
type Hub struct {
	mu      sync.RWMutex
	data    map[string]string
	members map[*Memory]struct{}
	seq     int64
}

// NewHub creates empty shared storage.
func NewHub() *Hub {
	return &Hub{
		data:    make(map[string]string),
		members: make(map[*Memory]struct{}),
	}
}

// Open returns a new writer attached to the hub.
func (h *Hub) Open() *Memory {
	m := &Memory{
		hub:     h,
		id:      uuid.NewString(),
		changes: make(chan Change, changeBuffer),
	}
	h.mu.Lock()
	h.members[m] = struct{}{}
	h.mu.Unlock()
	return m
}

// Memory is one writer's handle on a Hub. It implements Backend and
// ChangeSource.
type Memory struct {
	hub     *Hub
	id      string
	changes chan Change
	dropped atomic.Int64
	closed  atomic.Bool
}

// NewMemory returns a standalone in-memory backend.
func NewMemory() *Memory {
	return NewHub().Open()
}

// WriterID returns the identity stamped on this handle's changes.
func (m *Memory) WriterID() string {
	return m.id
}

// Get implements Backend.Get.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := m.check(ctx); err != nil {
		return "", false, err
	}
	m.hub.mu.RLock()
	defer m.hub.mu.RUnlock()
	v, ok := m.hub.data[key]
	return v, ok, nil
}

// Set implements Backend.Set.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	m.hub.mu.Lock()
	m.hub.data[key] = value
	m.hub.seq++
	change := Change{Seq: m.hub.seq, Key: key, Value: value, Writer: m.id, At: time.Now()}
	m.hub.broadcast(m, change)
	m.hub.mu.Unlock()
	return nil
}

// Delete implements Backend.Delete.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	m.hub.mu.Lock()
	if _, ok := m.hub.data[key]; ok {
		delete(m.hub.data, key)
		m.hub.seq++
		change := Change{Seq: m.hub.seq, Key: key, Deleted: true, Writer: m.id, At: time.Now()}
		m.hub.broadcast(m, change)
	}
	m.hub.mu.Unlock()
	return nil
}

// ListKeys implements Backend.ListKeys.
func (m *Memory) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	m.hub.mu.RLock()
	keys := make([]string, 0, len(m.hub.data))
	for k := range m.hub.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.hub.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// Changes implements ChangeSource.
func (m *Memory) Changes() <-chan Change {
	return m.changes
}

// Dropped returns how many changes were discarded because this handle's
// channel was full.
func (m *Memory) Dropped() int64 {
	return m.dropped.Load()
}

// Close detaches the handle from the hub and closes its change channel.
func (m *Memory) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.hub.mu.Lock()
	delete(m.hub.members, m)
	close(m.changes)
	m.hub.mu.Unlock()
	return nil
}

func (m *Memory) check(ctx context.Context) error {
	if m.closed.Load() {
		return fmt.Errorf("memory backend %s is closed", m.id)
	}
	return ctx.Err()
}

// broadcast must be called with h.mu held.
func (h *Hub) broadcast(from *Memory, change Change) {
	for member := range h.members {
		if member == from {
			continue
		}
		select {
		case member.changes <- change:
		default:
			member.dropped.Add(1)
		}
	}
}
