package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned for an unknown, expired or evicted session id.
var ErrSessionNotFound = errors.New("pipeline: session not found")

// Registry keeps the live sessions of the server by id. It holds at most
// Limit sessions: idle ones are swept, and when none is idle the least
// recently seen session makes room for a new one.
type Registry struct {
	config        RegistryConfig
	historyLength int
	now           func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	onDrop   func(ids []string)
}

// NewRegistry creates an empty registry whose sessions keep historyLength
// balls.
func NewRegistry(cfg RegistryConfig, historyLength int) *Registry {
	return &Registry{
		config:        cfg,
		historyLength: historyLength,
		now:           time.Now,
		sessions:      make(map[string]*Session),
	}
}

// OnDrop sets the function told about sessions the registry drops by itself,
// swept for idleness or evicted to make room. It is not called for Delete.
func (r *Registry) OnDrop(fn func(ids []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDrop = fn
}

// Create registers a new session. When the registry is full, idle sessions
// are swept first, then the least recently seen session is evicted.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	var dropped []string
	if r.config.Limit > 0 && len(r.sessions) >= r.config.Limit {
		dropped = r.sweepLocked()
		for len(r.sessions) >= r.config.Limit {
			dropped = append(dropped, r.evictOldestLocked())
		}
	}
	s := NewSession(r.historyLength)
	r.sessions[s.ID] = s
	onDrop := r.onDrop
	r.mu.Unlock()

	notify(onDrop, dropped)
	return s
}

func (r *Registry) evictOldestLocked() string {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.LastSeen().Before(oldest.LastSeen()) {
			oldest = s
		}
	}
	delete(r.sessions, oldest.ID)
	return oldest.ID
}

func notify(onDrop func([]string), ids []string) {
	if onDrop != nil && len(ids) > 0 {
		onDrop(ids)
	}
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "id %q", id)
	}
	return s, nil
}

// GetOrCreate returns the session with the given id, or a new one when id is
// empty. An unknown non-empty id is an error rather than a new session, so a
// client cannot silently lose its history.
func (r *Registry) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return r.Create(), nil
	}
	return r.Get(id)
}

// Delete removes the session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return errors.Wrapf(ErrSessionNotFound, "id %q", id)
	}
	delete(r.sessions, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the idle timeout and returns
// their ids.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	dropped := r.sweepLocked()
	onDrop := r.onDrop
	r.mu.Unlock()

	notify(onDrop, dropped)
	return dropped
}

func (r *Registry) sweepLocked() []string {
	if r.config.IdleTimeout <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.config.IdleTimeout)
	var dropped []string
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
