package goal

import (
	"math"
	"sort"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"gocv.io/x/gocv"
)

// EdgeConfig holds the Canny and probabilistic Hough settings of the line
// based generator.
type EdgeConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	CannyLow      float32 `mapstructure:"canny_low"`
	CannyHigh     float32 `mapstructure:"canny_high"`
	Rho           float32 `mapstructure:"rho"`
	ThetaDegrees  float32 `mapstructure:"theta_degrees"`
	HoughVotes    int     `mapstructure:"hough_votes"`
	MinLineLength float32 `mapstructure:"min_line_length"`
	MaxLineGap    float32 `mapstructure:"max_line_gap"`
	MinSegment    float64 `mapstructure:"min_segment"` // px, segments this short or shorter are dropped
	AngleSlack    float64 `mapstructure:"angle_slack"` // degrees from an axis still counted as on it
	Confidence    float64 `mapstructure:"confidence"`
	MaxSegments   int     `mapstructure:"max_segments"` // per orientation, longest kept
}

// DefaultEdgeConfig enables the edge generator with its Canny and Hough settings.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		Enabled:       true,
		CannyLow:      50,
		CannyHigh:     150,
		Rho:           1,
		ThetaDegrees:  1,
		HoughVotes:    80,
		MinLineLength: 50,
		MaxLineGap:    20,
		MinSegment:    30,
		AngleSlack:    15,
		Confidence:    0.7,
		MaxSegments:   50,
	}
}

// Orientation of a line segment.
type Orientation int

const (
	Oblique Orientation = iota
	Horizontal
	Vertical
)

// Segment is a line segment between two points.
type Segment struct {
	A geom.Point
	B geom.Point
}

func (s Segment) Length() float64 {
	return geom.Distance(s.A, s.B)
}

// Angle is the direction of the segment in degrees, in (-180, 180].
func (s Segment) Angle() float64 {
	return math.Atan2(s.B.Y-s.A.Y, s.B.X-s.A.X) * 180 / math.Pi
}

// Classify returns Horizontal when |angle| < slack or > 180-slack and
// Vertical when |angle| is strictly within slack of 90 degrees.
func (s Segment) Classify(slack float64) Orientation {
	a := math.Abs(s.Angle())
	switch {
	case a < slack || a > 180-slack:
		return Horizontal
	case a > 90-slack && a < 90+slack:
		return Vertical
	default:
		return Oblique
	}
}

// EdgeGenerator pairs vertical and horizontal line segments into boxes.
type EdgeGenerator struct {
	Config EdgeConfig
	Bounds SizeBounds
}

func (g *EdgeGenerator) Method() detection.Method { return detection.MethodEdge }

// Generate detects line segments in the frame and pairs them with FromSegments.
func (g *EdgeGenerator) Generate(frame gocv.Mat) []detection.GoalCandidate {
	if frame.Empty() {
		return nil
	}
	segments := g.segments(frame)
	return g.FromSegments(segments, frame.Cols(), frame.Rows())
}

func (g *EdgeGenerator) segments(frame gocv.Mat) []Segment {
	gray := grayscale(frame)
	defer gray.Close()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, g.Config.CannyLow, g.Config.CannyHigh)

	lines := gocv.NewMat()
	defer lines.Close()
	theta := float32(float64(g.Config.ThetaDegrees) * math.Pi / 180)
	gocv.HoughLinesPWithParams(edges, &lines, g.Config.Rho, theta, g.Config.HoughVotes, g.Config.MinLineLength, g.Config.MaxLineGap)

	segments := make([]Segment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		if len(v) < 4 {
			continue
		}
		segments = append(segments, Segment{
			A: geom.Pt(float64(v[0]), float64(v[1])),
			B: geom.Pt(float64(v[2]), float64(v[3])),
		})
	}
	return segments
}

// FromSegments builds a candidate from every vertical/horizontal pair whose
// joint bounding box fits the size bounds. Corners are TL, TR, BR, BL.
func (g *EdgeGenerator) FromSegments(segments []Segment, frameW, frameH int) []detection.GoalCandidate {
	var vertical, horizontal []Segment
	for _, s := range segments {
		if s.Length() <= g.Config.MinSegment {
			continue
		}
		switch s.Classify(g.Config.AngleSlack) {
		case Vertical:
			vertical = append(vertical, s)
		case Horizontal:
			horizontal = append(horizontal, s)
		}
	}
	vertical = longest(vertical, g.Config.MaxSegments)
	horizontal = longest(horizontal, g.Config.MaxSegments)

	var out []detection.GoalCandidate
	for _, v := range vertical {
		for _, h := range horizontal {
			box, _ := geom.BoundsOf([]geom.Point{v.A, v.B, h.A, h.B})
			if !g.Bounds.Accept(box, frameW, frameH) {
				continue
			}
			out = append(out, detection.NewGoal(box, g.Config.Confidence, detection.MethodEdge, box.Corners()))
		}
	}
	return out
}

// longest keeps at most n segments, preferring long ones and keeping the
// original order among those kept. n <= 0 keeps everything.
func longest(segments []Segment, n int) []Segment {
	if n <= 0 || len(segments) <= n {
		return segments
	}
	idx := make([]int, len(segments))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return segments[idx[a]].Length() > segments[idx[b]].Length()
	})
	idx = idx[:n]
	sort.Ints(idx)

	out := make([]Segment, n)
	for i, j := range idx {
		out[i] = segments[j]
	}
	return out
}
