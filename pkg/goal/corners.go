package goal

import (
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"gocv.io/x/gocv"
)

// CornerConfig holds the good-features-to-track settings of the corner
// generator.
type CornerConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	MaxCorners   int     `mapstructure:"max_corners"`
	QualityLevel float64 `mapstructure:"quality_level"`
	MinDistance  float64 `mapstructure:"min_distance"`
	// Cap is the number of strongest corners combined into quadruples.
	// C(Cap, 4) subsets are examined per frame.
	Cap        int     `mapstructure:"cap"`
	Confidence float64 `mapstructure:"confidence"`
}

// DefaultCornerConfig enables the corner generator.
func DefaultCornerConfig() CornerConfig {
	return CornerConfig{
		Enabled:      true,
		MaxCorners:   100,
		QualityLevel: 0.01,
		MinDistance:  10,
		Cap:          20,
		Confidence:   0.6,
	}
}

// CornerGenerator boxes every quadruple of salient corners that has a goal
// sized bounding box.
type CornerGenerator struct {
	Config CornerConfig
	Bounds SizeBounds
}

func (g *CornerGenerator) Method() detection.Method { return detection.MethodCorner }

// Generate boxes the quadruples of the Cap strongest corners that fit the goal bounds.
func (g *CornerGenerator) Generate(frame gocv.Mat) []detection.GoalCandidate {
	if frame.Empty() {
		return nil
	}
	return g.FromCorners(g.corners(frame), frame.Cols(), frame.Rows())
}

// corners returns the detected corners, strongest first.
func (g *CornerGenerator) corners(frame gocv.Mat) []geom.Point {
	gray := grayscale(frame)
	defer gray.Close()

	found := gocv.NewMat()
	defer found.Close()
	gocv.GoodFeaturesToTrack(gray, &found, g.Config.MaxCorners, g.Config.QualityLevel, g.Config.MinDistance)

	pts := make([]geom.Point, 0, found.Rows())
	for i := 0; i < found.Rows(); i++ {
		v := found.GetVecfAt(i, 0)
		if len(v) < 2 {
			continue
		}
		// integer pixel positions, like the rest of the generators
		pts = append(pts, geom.Pt(float64(int(v[0])), float64(int(v[1]))))
	}
	return pts
}

// FromCorners enumerates every 4-subset of the first Cap points. The polygon
// of a candidate is its four points in detection order.
func (g *CornerGenerator) FromCorners(points []geom.Point, frameW, frameH int) []detection.GoalCandidate {
	if g.Config.Cap > 0 && len(points) > g.Config.Cap {
		points = points[:g.Config.Cap]
	}
	n := len(points)
	if n < 4 {
		return nil
	}

	var out []detection.GoalCandidate
	quad := make([]geom.Point, 4)
	for i := 0; i < n-3; i++ {
		for j := i + 1; j < n-2; j++ {
			for k := j + 1; k < n-1; k++ {
				for l := k + 1; l < n; l++ {
					quad[0], quad[1], quad[2], quad[3] = points[i], points[j], points[k], points[l]
					box, _ := geom.BoundsOf(quad)
					if !g.Bounds.Accept(box, frameW, frameH) {
						continue
					}
					poly := append([]geom.Point(nil), quad...)
					out = append(out, detection.NewGoal(box, g.Config.Confidence, detection.MethodCorner, poly))
				}
			}
		}
	}
	return out
}
