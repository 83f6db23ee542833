// Package pipeline runs one frame through the ball filter, the goal
// generators, fusion, trajectory estimation and event classification.
//
// A Pipeline holds no per-stream state. The ball history of a stream lives
// in its Session, and a Registry hands out one Session per stream.
package pipeline

import (
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/goal"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/trajectory"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/vision"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned for a frame without pixels.
var ErrEmptyFrame = errors.New("pipeline: empty frame")

// Result is everything known about one processed frame.
type Result struct {
	Goals      []detection.GoalCandidate `json:"goals"`
	Balls      []detection.Detection     `json:"balls"`
	Raw        []detection.Detection     `json:"raw_detections"`
	Event      event.Result              `json:"event"`
	Trajectory *trajectory.Trajectory    `json:"trajectory"`
	History    []trajectory.Entry        `json:"history"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// Pipeline is safe for concurrent use by several sessions.
type Pipeline struct {
	config     Config
	generators []goal.Generator
	color      *vision.ColorBallDetector
	now        func() time.Time
}

// New validates cfg and builds the generators it enables.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		config:     cfg,
		generators: cfg.Goal.Generators(),
		now:        time.Now,
	}
	if cfg.ColorFallback {
		color, err := vision.NewColorBallDetector(cfg.Color)
		if err != nil {
			return nil, err
		}
		p.color = color
	}
	return p, nil
}

func (p *Pipeline) Config() Config { return p.config }

// Process runs the frame stamped with the current time. proposals are the
// raw boxes of the object detector for this frame, in frame coordinates. The
// best ball, if any, is appended to history, which must not be shared between
// streams. A nil history gives a result without trajectory.
func (p *Pipeline) Process(frame gocv.Mat, proposals []detection.Proposal, history *trajectory.History) (Result, error) {
	return p.ProcessAt(frame, proposals, history, p.now())
}

// ProcessAt is Process with an explicit frame time, used for recorded video
// where frame times come from the frame rate.
func (p *Pipeline) ProcessAt(frame gocv.Mat, proposals []detection.Proposal, history *trajectory.History, now time.Time) (Result, error) {
	if frame.Empty() {
		return Result{}, ErrEmptyFrame
	}
	raw, err := detection.FromProposals(proposals)
	if err != nil {
		return Result{}, err
	}

	if p.color != nil && len(p.config.Ball.Candidates(raw)) == 0 {
		raw = append(raw, p.color.Detect(frame)...)
	}
	balls := p.config.Ball.Filter(raw)

	candidates := goal.Generate(frame, p.generators)
	if post, ok := p.goalFromPosts(raw); ok {
		candidates = append(candidates, post)
	}
	goals := p.config.Fusion.Fuse(candidates)

	res := Result{
		Goals:     goals,
		Balls:     balls,
		Raw:       raw,
		Event:     p.config.Event.Classify(balls, goals),
		Timestamp: now,
	}

	if history == nil {
		return res, nil
	}
	if best, ok := detection.Best(balls); ok {
		history.Append(best, now)
	}
	res.History = history.Entries()
	res.Trajectory = p.trajectory(res.History)
	return res, nil
}

func (p *Pipeline) goalFromPosts(raw []detection.Detection) (detection.GoalCandidate, bool) {
	if p.config.PostClassID < 0 {
		return detection.GoalCandidate{}, false
	}
	var posts []detection.Detection
	for _, d := range raw {
		if d.ClassID == p.config.PostClassID && d.Method == detection.MethodModel {
			posts = append(posts, d)
		}
	}
	return goal.FromPosts(posts)
}

// trajectory estimates motion over entries and, when the filter converges,
// attaches the predicted next position.
func (p *Pipeline) trajectory(entries []trajectory.Entry) *trajectory.Trajectory {
	t := trajectory.Estimate(entries)
	if t == nil {
		return nil
	}
	if next, err := p.config.Predictor.Predict(entries); err == nil {
		t.Predicted = &next
	}
	return t
}
