package clips

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore keeps the most recent clips in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	clips []Clip // oldest first
	limit int
}

// NewMemoryStore keeps at most limit clips. A non-positive limit keeps all.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit}
}

func (m *MemoryStore) Save(_ context.Context, c Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clips = append(m.clips, c)
	if m.limit > 0 && len(m.clips) > m.limit {
		m.clips = append(m.clips[:0:0], m.clips[len(m.clips)-m.limit:]...)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Clip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clips {
		if c.ID == id {
			return c, nil
		}
	}
	return Clip{}, errors.Wrapf(ErrNotFound, "id %q", id)
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Clip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.clips)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Clip, 0, n)
	for i := len(m.clips) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.clips[i])
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clips), nil
}

func (m *MemoryStore) Close() error { return nil }
