package pipeline

import (
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/ball"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/fusion"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/goal"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/trajectory"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/vision"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config gathers every threshold of the per-frame pipeline. It is read from
// the "pipeline" key of the config file.
type Config struct {
	Ball      ball.Config                `mapstructure:"ball"`
	Goal      goal.Config                `mapstructure:"goal"`
	Fusion    fusion.Config              `mapstructure:"fusion"`
	Event     event.Config               `mapstructure:"event"`
	Predictor trajectory.PredictorConfig `mapstructure:"predictor"`
	Color     vision.ColorConfig         `mapstructure:"color"`

	// ColorFallback runs the color detector when the proposals hold no ball.
	ColorFallback bool `mapstructure:"color_fallback"`
	HistoryLength int  `mapstructure:"history_length"`
	// PostClassID is the class id of goal posts for models trained on them.
	// Negative disables goals from posts.
	PostClassID int `mapstructure:"post_class_id"`
}

func DefaultConfig() Config {
	return Config{
		Ball:          ball.DefaultConfig(),
		Goal:          goal.DefaultConfig(),
		Fusion:        fusion.DefaultConfig(),
		Event:         event.DefaultConfig(),
		Predictor:     trajectory.DefaultPredictorConfig(),
		Color:         vision.DefaultColorConfig(),
		ColorFallback: true,
		HistoryLength: utils.BallHistoryLength,
		PostClassID:   -1,
	}
}

// LoadConfig overlays the "pipeline" subtree of v onto the defaults. Lists
// given in the file replace the default list instead of being merged into it.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if v != nil && v.IsSet("pipeline") {
		if v.IsSet("pipeline.color.colors") {
			cfg.Color.Colors = nil
		}
		if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
			return Config{}, errors.Wrap(err, "pipeline: decoding config")
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no frame could satisfy.
func (c Config) Validate() error {
	switch {
	case c.HistoryLength < trajectory.MinPoints:
		return errors.Errorf("pipeline: history_length must be at least %d, got %d", trajectory.MinPoints, c.HistoryLength)
	case c.Ball.MaxBalls <= 0:
		return errors.Errorf("pipeline: ball.max_balls must be positive, got %d", c.Ball.MaxBalls)
	case c.Ball.MinAspectRatio > c.Ball.MaxAspectRatio || c.Ball.MinArea > c.Ball.MaxArea || c.Ball.MinSide >= c.Ball.MaxSide:
		return errors.New("pipeline: ball bounds are inverted")
	case c.Fusion.MaxGoals <= 0:
		return errors.Errorf("pipeline: fusion.max_goals must be positive, got %d", c.Fusion.MaxGoals)
	case c.Fusion.MaxOverlap < 0 || c.Fusion.MaxOverlap > 1:
		return errors.Errorf("pipeline: fusion.max_overlap must be in [0, 1], got %v", c.Fusion.MaxOverlap)
	case c.Goal.Bounds.MaxWidthFrac <= 0 || c.Goal.Bounds.MaxHeightFrac <= 0:
		return errors.New("pipeline: goal size fractions must be positive")
	case c.Goal.Corner.Enabled && c.Goal.Corner.Cap <= 0:
		return errors.New("pipeline: goal.corner.cap must be positive when the corner generator is enabled")
	case c.Goal.Edge.Enabled && (c.Goal.Edge.CannyLow < 0 || c.Goal.Edge.CannyLow >= c.Goal.Edge.CannyHigh):
		return errors.Errorf("pipeline: goal.edge canny thresholds need 0 <= low < high, got %v and %v", c.Goal.Edge.CannyLow, c.Goal.Edge.CannyHigh)
	case c.Goal.Edge.Enabled && (c.Goal.Edge.Rho <= 0 || c.Goal.Edge.ThetaDegrees <= 0):
		return errors.New("pipeline: goal.edge rho and theta_degrees must be positive")
	case c.Goal.Edge.Enabled && c.Goal.Edge.HoughVotes <= 0:
		return errors.Errorf("pipeline: goal.edge.hough_votes must be positive, got %d", c.Goal.Edge.HoughVotes)
	case c.Goal.Contour.Enabled && (c.Goal.Contour.BlurSize <= 0 || c.Goal.Contour.BlurSize%2 == 0):
		return errors.Errorf("pipeline: goal.contour.blur_size must be odd and positive, got %d", c.Goal.Contour.BlurSize)
	case c.Goal.Contour.Enabled && (c.Goal.Contour.BlockSize <= 1 || c.Goal.Contour.BlockSize%2 == 0):
		return errors.Errorf("pipeline: goal.contour.block_size must be odd and greater than 1, got %d", c.Goal.Contour.BlockSize)
	case c.Event.MinBallConfidence < 0 || c.Event.MinBallConfidence > 1:
		return errors.Errorf("pipeline: event.min_ball_confidence must be in [0, 1], got %v", c.Event.MinBallConfidence)
	}
	if c.ColorFallback {
		if err := c.Color.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RegistryConfig bounds the live sessions of the server.
type RegistryConfig struct {
	Limit       int           `mapstructure:"limit"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Limit:       100,
		IdleTimeout: 10 * time.Minute,
	}
}
