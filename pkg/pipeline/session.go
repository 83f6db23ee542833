package pipeline

import (
	"sync"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/trajectory"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// Session is one detection stream: a websocket connection, a client passing
// the same session id to /api/Detect, or one tagged video. It owns the ball
// history of the stream and serializes its frames.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	history  *trajectory.History
	lastSeen time.Time
	frames   int
}

// NewSession starts a session with an empty history of the given length.
func NewSession(historyLength int) *Session {
	now := time.Now()
	return &Session{
		ID:       uuid.NewString(),
		Created:  now,
		history:  trajectory.NewHistory(historyLength),
		lastSeen: now,
	}
}

// Process runs one frame of this stream through p, stamped when the session
// lock is taken so history times follow append order.
func (s *Session) Process(p *Pipeline, frame gocv.Mat, proposals []detection.Proposal) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processLocked(p, frame, proposals, p.now())
}

// ProcessAt runs one frame with an explicit frame time.
func (s *Session) ProcessAt(p *Pipeline, frame gocv.Mat, proposals []detection.Proposal, at time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processLocked(p, frame, proposals, at)
}

func (s *Session) processLocked(p *Pipeline, frame gocv.Mat, proposals []detection.Proposal, at time.Time) (Result, error) {
	s.lastSeen = time.Now()
	res, err := p.ProcessAt(frame, proposals, s.history, at)
	if err != nil {
		return Result{}, err
	}
	s.frames++
	return res, nil
}

// Frames is the number of frames processed successfully.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// History returns a copy of the current ball history.
func (s *Session) History() []trajectory.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Entries()
}

// Reset forgets the ball history, e.g. after a camera cut.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Reset()
}
