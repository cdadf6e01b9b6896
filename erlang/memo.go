package erlang

import "sync"

type memoKey struct {
	agents int
	load   float64
}

// memo is a bounded FIFO cache of wait probabilities owned by one Model.
type memo struct {
	mu      sync.Mutex
	limit   int
	entries map[memoKey]float64
	order   []memoKey
	next    int
}

func newMemo(limit int) *memo {
	if limit <= 0 {
		return nil
	}
	return &memo{
		limit:   limit,
		entries: make(map[memoKey]float64, limit),
		order:   make([]memoKey, 0, limit),
	}
}

func (m *memo) get(agents int, load float64) (float64, bool) {
	if m == nil {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[memoKey{agents, load}]
	return v, ok
}

func (m *memo) put(agents int, load float64, v float64) {
	if m == nil {
		return
	}
	k := memoKey{agents, load}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; ok {
		m.entries[k] = v
		return
	}
	if len(m.order) < m.limit {
		m.order = append(m.order, k)
	} else {
		// ring buffer: overwrite the oldest key
		delete(m.entries, m.order[m.next])
		m.order[m.next] = k
		m.next = (m.next + 1) % m.limit
	}
	m.entries[k] = v
}

func (m *memo) len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
