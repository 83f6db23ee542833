// Package ball picks the plausible balls out of the model's raw detections.
package ball

import (
	"sort"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
)

// Config bounds what counts as a ball.
type Config struct {
	MinConfidence  float64 `mapstructure:"min_confidence"`  // proposals at or below are ignored
	MinAspectRatio float64 `mapstructure:"min_aspect_ratio"` // width / height, inclusive
	MaxAspectRatio float64 `mapstructure:"max_aspect_ratio"` // inclusive
	MinArea        float64 `mapstructure:"min_area"`         // px², inclusive
	MaxArea        float64 `mapstructure:"max_area"`         // px², inclusive
	MinSide        float64 `mapstructure:"min_side"`         // width and height must be strictly greater
	MaxSide        float64 `mapstructure:"max_side"`         // width and height must be strictly smaller
	MaxBalls       int     `mapstructure:"max_balls"`        // output cap
}

// DefaultConfig returns the thresholds tuned for small balls in phone video.
func DefaultConfig() Config {
	return Config{
		MinConfidence:  0.3,
		MinAspectRatio: 0.5,
		MaxAspectRatio: 2.5,
		MinArea:        300,
		MaxArea:        10000,
		MinSide:        15,
		MaxSide:        300,
		MaxBalls:       3,
	}
}

// Plausible reports whether the detection box passes every geometric check.
func (c Config) Plausible(d detection.Detection) bool {
	w, h := d.Box.Width(), d.Box.Height()
	if w <= c.MinSide || h <= c.MinSide || w >= c.MaxSide || h >= c.MaxSide {
		return false
	}
	ar := d.Box.AspectRatio()
	if ar < c.MinAspectRatio || ar > c.MaxAspectRatio {
		return false
	}
	area := d.Box.Area()
	return area >= c.MinArea && area <= c.MaxArea
}

// Candidates returns the ball-class detections above the confidence floor, in
// input order.
func (c Config) Candidates(raw []detection.Detection) []detection.Detection {
	var out []detection.Detection
	for _, d := range raw {
		if d.IsBall() && d.Confidence > c.MinConfidence {
			out = append(out, d)
		}
	}
	return out
}

// Filter returns at most MaxBalls ball detections sorted by confidence,
// highest first. When no candidate is plausible the unvalidated candidates
// are returned instead, so callers must not assume every returned box passed
// Plausible.
func (c Config) Filter(raw []detection.Detection) []detection.Detection {
	return c.rank(c.Candidates(raw))
}

func (c Config) rank(candidates []detection.Detection) []detection.Detection {
	if len(candidates) == 0 {
		return nil
	}

	valid := make([]detection.Detection, 0, len(candidates))
	for _, d := range candidates {
		if c.Plausible(d) {
			valid = append(valid, d)
		}
	}
	if len(valid) == 0 {
		valid = append(valid, candidates...)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Confidence > valid[j].Confidence
	})
	if c.MaxBalls > 0 && len(valid) > c.MaxBalls {
		valid = valid[:c.MaxBalls]
	}
	return valid
}
