package clips

import (
	"context"
	"sync"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/google/uuid"
)

// Recorder turns per-frame event results into clips. It remembers the frame
// times of every stream inside the clip window and waits Cooldown after a
// clip before recording another for the same stream.
type Recorder struct {
	store    Store
	window   time.Duration
	cooldown time.Duration

	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	frames   []time.Time // inside the window, oldest first
	lastClip time.Time
}

// NewRecorder records into store using the window and cooldown of cfg.
func NewRecorder(store Store, cfg Config) *Recorder {
	return &Recorder{
		store:    store,
		window:   cfg.Window,
		cooldown: cfg.Cooldown,
		streams:  make(map[string]*stream),
	}
}

func (r *Recorder) Store() Store { return r.store }

// Observe notes one frame of session taken at t with event result ev. When
// ev is an event and the session is not cooling down, a clip ending at t is
// saved and returned.
func (r *Recorder) Observe(ctx context.Context, session string, t time.Time, ev event.Result) (*Clip, error) {
	clip := r.observe(session, t, ev)
	if clip == nil {
		return nil, nil
	}
	if err := r.store.Save(ctx, *clip); err != nil {
		return nil, err
	}
	return clip, nil
}

func (r *Recorder) observe(session string, t time.Time, ev event.Result) *Clip {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[session]
	if !ok {
		s = &stream{}
		r.streams[session] = s
	}
	start := t.Add(-r.window)
	s.frames = append(s.frames, t)
	drop := 0
	for drop < len(s.frames) && s.frames[drop].Before(start) {
		drop++
	}
	s.frames = s.frames[drop:]

	if !ev.HasEvent {
		return nil
	}
	if !s.lastClip.IsZero() && t.Sub(s.lastClip) < r.cooldown {
		return nil
	}
	s.lastClip = t

	return &Clip{
		ID:         uuid.NewString(),
		Session:    session,
		EventType:  ev.Type,
		StartTime:  start,
		EndTime:    t,
		FrameCount: len(s.frames),
		Ball:       ev.Ball,
		Goal:       ev.Goal,
		Distance:   ev.Distance,
	}
}

// Len is the number of streams the recorder is following.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Forget drops what the recorder knows about session.
func (r *Recorder) Forget(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, session)
}
