package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/trajectory"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const postClass = 99

func plainFrame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 128, 40, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func ballAt(x, y, conf float64) detection.Proposal {
	return detection.Proposal{Box: geom.NewBox(x-15, y-15, x+15, y+15), Confidence: conf, ClassID: utils.BallClass}
}

func posts() []detection.Proposal {
	return []detection.Proposal{
		{Box: geom.NewBox(190, 140, 200, 250), Confidence: 0.9, ClassID: postClass},
		{Box: geom.NewBox(400, 140, 410, 250), Confidence: 0.8, ClassID: postClass},
	}
}

// clock returns a time source advancing one second per call.
func clock() func() time.Time {
	t := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newPipeline(t *testing.T, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PostClassID = postClass
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	p.now = clock()
	return p
}

func TestProcessEmptyFrame(t *testing.T) {
	p := newPipeline(t, nil)
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := p.Process(empty, nil, trajectory.NewHistory(0))
	assert.True(t, errors.Is(err, ErrEmptyFrame))
}

func TestProcessRejectsInvalidProposal(t *testing.T) {
	p := newPipeline(t, nil)
	bad := detection.Proposal{Box: geom.NewBox(50, 50, 40, 60), Confidence: 0.9, ClassID: utils.BallClass}

	_, err := p.Process(plainFrame(t), []detection.Proposal{bad}, nil)
	assert.True(t, errors.Is(err, detection.ErrInvalidBox))
}

func TestProcessQuietFrame(t *testing.T) {
	p := newPipeline(t, nil)
	history := trajectory.NewHistory(0)
	frame := plainFrame(t)

	res, err := p.Process(frame, nil, history)
	require.NoError(t, err)
	assert.Empty(t, res.Goals)
	assert.Empty(t, res.Balls)
	assert.Equal(t, event.None, res.Event.Type)
	assert.False(t, res.Event.HasEvent)
	assert.Nil(t, res.Trajectory)
	assert.Equal(t, 0, history.Len())
}

func TestProcessGoalScored(t *testing.T) {
	p := newPipeline(t, nil)
	history := trajectory.NewHistory(0)
	proposals := append(posts(), ballAt(300, 200, 0.96))

	res, err := p.Process(plainFrame(t), proposals, history)
	require.NoError(t, err)

	require.Len(t, res.Goals, 1)
	assert.Equal(t, geom.NewBox(190, 129, 410, 250), res.Goals[0].Box)
	require.Len(t, res.Balls, 1)
	assert.Len(t, res.Raw, 3)

	assert.True(t, res.Event.HasEvent)
	assert.Equal(t, event.GoalScored, res.Event.Type)
	assert.Equal(t, 0.0, res.Event.Distance)
	assert.Equal(t, 1, history.Len())
	assert.Equal(t, utils.GoalScoredText, res.Overlay().EventText)
}

func TestProcessConfidenceGate(t *testing.T) {
	p := newPipeline(t, nil)
	proposals := append(posts(), ballAt(300, 200, 0.6))

	res, err := p.Process(plainFrame(t), proposals, trajectory.NewHistory(0))
	require.NoError(t, err)
	require.Len(t, res.Goals, 1)
	assert.Equal(t, event.None, res.Event.Type)
	assert.Empty(t, res.Overlay().EventText)
}

func TestProcessPostsDisabled(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.PostClassID = -1 })
	proposals := append(posts(), ballAt(300, 200, 0.96))

	res, err := p.Process(plainFrame(t), proposals, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Goals)
	assert.Equal(t, event.None, res.Event.Type)
}

func TestProcessTrajectory(t *testing.T) {
	p := newPipeline(t, nil)
	history := trajectory.NewHistory(0)
	frame := plainFrame(t)

	var res Result
	for i := 0; i < 3; i++ {
		var err error
		res, err = p.Process(frame, []detection.Proposal{ballAt(100+10*float64(i), 200, 0.8)}, history)
		require.NoError(t, err)
	}

	require.NotNil(t, res.Trajectory)
	assert.Len(t, res.History, 3)
	assert.InDelta(t, 10, res.Trajectory.Speed, 1e-9)
	require.NotNil(t, res.Trajectory.Predicted)
	assert.Greater(t, res.Trajectory.Predicted.X, 100.0)

	o := res.Overlay()
	assert.Len(t, o.Trajectory, 3)
	assert.Len(t, o.Balls, 1)
}

func TestProcessNilHistory(t *testing.T) {
	p := newPipeline(t, nil)
	res, err := p.Process(plainFrame(t), []detection.Proposal{ballAt(100, 200, 0.8)}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Balls, 1)
	assert.Nil(t, res.History)
	assert.Nil(t, res.Trajectory)
}

func TestProcessColorFallback(t *testing.T) {
	frame := plainFrame(t)
	gocv.Circle(&frame, image.Pt(320, 240), 20, color.RGBA{255, 255, 255, 0}, -1)

	p := newPipeline(t, nil)
	res, err := p.Process(frame, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Balls)
	assert.Equal(t, detection.MethodColor, res.Balls[0].Method)
	assert.Equal(t, "white_ball", res.Balls[0].Label)

	p = newPipeline(t, func(c *Config) { c.ColorFallback = false })
	res, err = p.Process(frame, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Balls)
}

func TestLoadConfig(t *testing.T) {
	yaml := []byte(`
pipeline:
  history_length: 20
  ball:
    max_balls: 2
  goal:
    corner:
      cap: 10
  color:
    colors: [orange]
`)
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yaml)))

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.HistoryLength)
	assert.Equal(t, 2, cfg.Ball.MaxBalls)
	assert.Equal(t, 10, cfg.Goal.Corner.Cap)
	// a list from the file replaces the default one
	assert.Equal(t, []string{"orange"}, cfg.Color.Colors)
	// untouched keys keep their defaults
	assert.Equal(t, 0.3, cfg.Ball.MinConfidence)
	assert.Equal(t, 100, cfg.Goal.Corner.MaxCorners)
	assert.Equal(t, 0.95, cfg.Event.MinBallConfidence)
	assert.Equal(t, -1, cfg.PostClassID)

	cfg, err = LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short history", func(c *Config) { c.HistoryLength = 2 }},
		{"no balls", func(c *Config) { c.Ball.MaxBalls = 0 }},
		{"inverted area", func(c *Config) { c.Ball.MinArea = 20000 }},
		{"no goals", func(c *Config) { c.Fusion.MaxGoals = 0 }},
		{"overlap above one", func(c *Config) { c.Fusion.MaxOverlap = 1.5 }},
		{"uncapped corners", func(c *Config) { c.Goal.Corner.Cap = 0 }},
		{"inverted canny", func(c *Config) { c.Goal.Edge.CannyLow = 200 }},
		{"negative canny", func(c *Config) { c.Goal.Edge.CannyLow = -1 }},
		{"zero rho", func(c *Config) { c.Goal.Edge.Rho = 0 }},
		{"zero theta", func(c *Config) { c.Goal.Edge.ThetaDegrees = 0 }},
		{"no hough votes", func(c *Config) { c.Goal.Edge.HoughVotes = 0 }},
		{"even blur", func(c *Config) { c.Goal.Contour.BlurSize = 4 }},
		{"even block", func(c *Config) { c.Goal.Contour.BlockSize = 14 }},
		{"block of one", func(c *Config) { c.Goal.Contour.BlockSize = 1 }},
		{"unknown color", func(c *Config) { c.Color.Colors = []string{"teal"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
	assert.NoError(t, DefaultConfig().Validate())

	// disabled generators are not checked
	cfg := DefaultConfig()
	cfg.Goal.Edge.Enabled = false
	cfg.Goal.Edge.Rho = 0
	cfg.Goal.Contour.Enabled = false
	cfg.Goal.Contour.BlockSize = 2
	assert.NoError(t, cfg.Validate())
}

func TestSessionSerializesFrames(t *testing.T) {
	p := newPipeline(t, nil)
	p.now = time.Now
	s := NewSession(0)
	frame := plainFrame(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := s.Process(p, frame, []detection.Proposal{ballAt(100+float64(i), 200, 0.8)})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 40, s.Frames())
	assert.Len(t, s.History(), utils.BallHistoryLength)

	s.Reset()
	assert.Empty(t, s.History())
}
