package oauth

import "time"

// boundedMap is an insertion-ordered map with a fixed capacity. Inserting
// past capacity evicts the oldest entry instead of growing. Not safe for
// concurrent use; the owning Provider serializes access.
type boundedMap[V any] struct {
	cap     int
	order   []string
	entries map[string]V
}

func newBoundedMap[V any](capacity int) *boundedMap[V] {
	return &boundedMap[V]{
		cap:     capacity,
		entries: make(map[string]V, capacity),
	}
}

func (m *boundedMap[V]) get(key string) (V, bool) {
	v, ok := m.entries[key]
	return v, ok
}

func (m *boundedMap[V]) len() int {
	return len(m.entries)
}

// set inserts or updates key. A brand-new key beyond capacity evicts the
// oldest entry first.
func (m *boundedMap[V]) set(key string, value V) {
	if _, ok := m.entries[key]; ok {
		m.entries[key] = value
		return
	}
	if len(m.entries) >= m.cap {
		m.evictOldest()
	}
	m.entries[key] = value
	m.order = append(m.order, key)
}

func (m *boundedMap[V]) delete(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *boundedMap[V]) evictOldest() {
	if len(m.order) == 0 {
		return
	}
	oldest := m.order[0]
	m.order = m.order[1:]
	delete(m.entries, oldest)
}

// evictExpired removes every entry whose expiry, as reported by expiresAt,
// is at or before now. Zero expiries never expire.
func (m *boundedMap[V]) evictExpired(now time.Time, expiresAt func(V) time.Time) {
	kept := m.order[:0]
	for _, k := range m.order {
		v := m.entries[k]
		exp := expiresAt(v)
		if !exp.IsZero() && !now.Before(exp) {
			delete(m.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	m.order = kept
}
