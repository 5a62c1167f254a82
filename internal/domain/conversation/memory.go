// Package conversation holds short-term session memory.
package conversation

import (
	"context"
	"sync"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
)

// DefaultWindow is the number of turns kept when no size is configured.
const DefaultWindow = 5

// RingMemory is a fixed-capacity FIFO of turns. Appending to a full buffer
// overwrites the oldest turn.
type RingMemory struct {
	mu    sync.RWMutex
	turns []entities.Turn
	head  int // index of the oldest turn
	size  int
}

// NewRingMemory creates a buffer of the given capacity (DefaultWindow if < 1).
func NewRingMemory(capacity int) *RingMemory {
	if capacity < 1 {
		capacity = DefaultWindow
	}
	return &RingMemory{turns: make([]entities.Turn, capacity)}
}

func (m *RingMemory) Append(_ context.Context, turn entities.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size < len(m.turns) {
		m.turns[(m.head+m.size)%len(m.turns)] = turn
		m.size++
		return nil
	}
	m.turns[m.head] = turn
	m.head = (m.head + 1) % len(m.turns)
	return nil
}

// Recent returns up to n of the newest turns, oldest first. n < 1 means all.
func (m *RingMemory) Recent(_ context.Context, n int) ([]entities.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n < 1 || n > m.size {
		n = m.size
	}
	out := make([]entities.Turn, 0, n)
	for i := m.size - n; i < m.size; i++ {
		out = append(out, m.turns[(m.head+i)%len(m.turns)])
	}
	return out, nil
}

func (m *RingMemory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.turns)
	m.head, m.size = 0, 0
	return nil
}

func (m *RingMemory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size, nil
}

func (m *RingMemory) Capacity() int { return len(m.turns) }
