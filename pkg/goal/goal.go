// Package goal finds goal-frame candidates in a frame. Three independent
// generators (line segments, contours, corner points) each scan the frame and
// propose boxes; fusion of their output happens in package fusion.
//
// Generators never modify the frame and keep no state between calls, so they
// are run concurrently over the same Mat.
package goal

import (
	"sync"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"gocv.io/x/gocv"
)

// Generator proposes goal candidates for one frame.
type Generator interface {
	Method() detection.Method
	Generate(frame gocv.Mat) []detection.GoalCandidate
}

// SizeBounds limits the size of a candidate box relative to the frame. All
// bounds are exclusive.
type SizeBounds struct {
	MinWidth      float64 `mapstructure:"min_width"`
	MinHeight     float64 `mapstructure:"min_height"`
	MaxWidthFrac  float64 `mapstructure:"max_width_frac"`
	MaxHeightFrac float64 `mapstructure:"max_height_frac"`
}

// Accept reports whether b fits a frame of the given size.
func (s SizeBounds) Accept(b geom.Box, frameW, frameH int) bool {
	w, h := b.Width(), b.Height()
	return w > s.MinWidth && w < s.MaxWidthFrac*float64(frameW) &&
		h > s.MinHeight && h < s.MaxHeightFrac*float64(frameH)
}

// Config groups the settings of every generator.
type Config struct {
	Bounds  SizeBounds    `mapstructure:"bounds"`
	Edge    EdgeConfig    `mapstructure:"edge"`
	Contour ContourConfig `mapstructure:"contour"`
	Corner  CornerConfig  `mapstructure:"corner"`
}

// DefaultConfig enables every generator.
func DefaultConfig() Config {
	return Config{
		Bounds: SizeBounds{
			MinWidth:      50,
			MinHeight:     30,
			MaxWidthFrac:  0.8,
			MaxHeightFrac: 0.8,
		},
		Edge:    DefaultEdgeConfig(),
		Contour: DefaultContourConfig(),
		Corner:  DefaultCornerConfig(),
	}
}

// Generators returns the enabled generators in their fixed order: edge,
// contour, corner. The order decides ties during fusion.
func (c Config) Generators() []Generator {
	var gens []Generator
	if c.Edge.Enabled {
		gens = append(gens, &EdgeGenerator{Config: c.Edge, Bounds: c.Bounds})
	}
	if c.Contour.Enabled {
		gens = append(gens, &ContourGenerator{Config: c.Contour})
	}
	if c.Corner.Enabled {
		gens = append(gens, &CornerGenerator{Config: c.Corner, Bounds: c.Bounds})
	}
	return gens
}

// Generate runs every generator on frame concurrently and concatenates their
// candidates in generator order.
func Generate(frame gocv.Mat, gens []Generator) []detection.GoalCandidate {
	if frame.Empty() || len(gens) == 0 {
		return nil
	}

	results := make([][]detection.GoalCandidate, len(gens))
	var wg sync.WaitGroup
	for i, g := range gens {
		wg.Add(1)
		go func(i int, g Generator) {
			defer wg.Done()
			results[i] = g.Generate(frame)
		}(i, g)
	}
	wg.Wait()

	var all []detection.GoalCandidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// grayscale returns a single channel copy of frame. The caller closes it.
func grayscale(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}
	return gray
}
