package goal

import (
	"image"
	"math"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"gocv.io/x/gocv"
)

// ContourConfig holds the thresholding and shape limits of the contour
// generator.
type ContourConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	BlurSize       int     `mapstructure:"blur_size"`
	BlockSize      int     `mapstructure:"block_size"`
	C              float32 `mapstructure:"c"`
	MinArea        float64 `mapstructure:"min_area"`
	MaxArea        float64 `mapstructure:"max_area"`
	EpsilonFrac    float64 `mapstructure:"epsilon_frac"` // Douglas-Peucker epsilon as a fraction of the perimeter
	MinVertices    int     `mapstructure:"min_vertices"`
	MinAspectRatio float64 `mapstructure:"min_aspect_ratio"`
	MaxAspectRatio float64 `mapstructure:"max_aspect_ratio"`
	MaxConfidence  float64 `mapstructure:"max_confidence"`
	AreaScale      float64 `mapstructure:"area_scale"` // confidence = min(MaxConfidence, area/AreaScale)
}

// DefaultContourConfig enables the contour generator with its adaptive threshold settings.
func DefaultContourConfig() ContourConfig {
	return ContourConfig{
		Enabled:        true,
		BlurSize:       5,
		BlockSize:      15,
		C:              2,
		MinArea:        1000,
		MaxArea:        50000,
		EpsilonFrac:    0.02,
		MinVertices:    4,
		MinAspectRatio: 0.8,
		MaxAspectRatio: 3.0,
		MaxConfidence:  0.8,
		AreaScale:      15000,
	}
}

// Shape is a contour reduced to what the generator looks at.
type Shape struct {
	Area    float64
	Box     geom.Box // bounding box of the raw contour
	Polygon []geom.Point
}

// ContourGenerator looks for a roughly rectangular outer contour in the
// adaptively thresholded frame.
type ContourGenerator struct {
	Config ContourConfig
}

func (g *ContourGenerator) Method() detection.Method { return detection.MethodContour }

// Generate emits at most one candidate, the first contour that qualifies.
func (g *ContourGenerator) Generate(frame gocv.Mat) []detection.GoalCandidate {
	if frame.Empty() {
		return nil
	}

	gray := grayscale(frame)
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(g.Config.BlurSize, g.Config.BlurSize), 0, 0, gocv.BorderDefault)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.AdaptiveThreshold(blurred, &thresh, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, g.Config.BlockSize, g.Config.C)

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		shape, ok := g.shape(contours.At(i))
		if !ok {
			continue
		}
		if cand, ok := g.FromShape(shape); ok {
			return []detection.GoalCandidate{cand}
		}
	}
	return nil
}

// shape measures a contour, skipping the polygon simplification for contours
// already outside the area range.
func (g *ContourGenerator) shape(contour gocv.PointVector) (Shape, bool) {
	area := gocv.ContourArea(contour)
	if area <= g.Config.MinArea || area >= g.Config.MaxArea {
		return Shape{}, false
	}

	eps := g.Config.EpsilonFrac * gocv.ArcLength(contour, true)
	approx := gocv.ApproxPolyDP(contour, eps, true)
	defer approx.Close()

	pts := approx.ToPoints()
	poly := make([]geom.Point, len(pts))
	for i, p := range pts {
		poly[i] = geom.Pt(float64(p.X), float64(p.Y))
	}
	return Shape{
		Area:    area,
		Box:     geom.FromRect(gocv.BoundingRect(contour)),
		Polygon: poly,
	}, true
}

// FromShape applies the area, vertex and aspect checks to a measured contour.
func (g *ContourGenerator) FromShape(s Shape) (detection.GoalCandidate, bool) {
	if s.Area <= g.Config.MinArea || s.Area >= g.Config.MaxArea {
		return detection.GoalCandidate{}, false
	}
	if len(s.Polygon) < g.Config.MinVertices {
		return detection.GoalCandidate{}, false
	}
	ar := s.Box.AspectRatio()
	if ar <= g.Config.MinAspectRatio || ar >= g.Config.MaxAspectRatio {
		return detection.GoalCandidate{}, false
	}
	conf := math.Min(g.Config.MaxConfidence, s.Area/g.Config.AreaScale)
	return detection.NewGoal(s.Box, conf, detection.MethodContour, s.Polygon), true
}
