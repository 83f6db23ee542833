// Package geom holds the box and point helpers shared by the detection
// pipeline. Everything here is a pure function over float64 pixel
// coordinates.
package geom

import (
	"image"
	"math"
)

// Point is a pixel position.
type Point struct {
	X float64
	Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Image rounds p to the nearest pixel.
func (p Point) Image() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// Box is an axis-aligned box with (X1, Y1) top-left and (X2, Y2)
// bottom-right. A valid box has X1 < X2 and Y1 < Y2.
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// NewBox builds a box from its corners.
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// FromRect converts an integer image rectangle.
func FromRect(r image.Rectangle) Box {
	return Box{X1: float64(r.Min.X), Y1: float64(r.Min.Y), X2: float64(r.Max.X), Y2: float64(r.Max.Y)}
}

// Rect rounds the box to an integer rectangle for drawing.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(math.Round(b.X1)), int(math.Round(b.Y1)), int(math.Round(b.X2)), int(math.Round(b.Y2)))
}

// Width, Height and Area are zero or negative for invalid boxes.
func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }
func (b Box) Area() float64   { return b.Width() * b.Height() }

// Valid reports whether the box has positive width and height and finite
// coordinates.
func (b Box) Valid() bool {
	for _, v := range [...]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// AspectRatio is width / height, 0 for a box without height.
func (b Box) AspectRatio() float64 {
	h := b.Height()
	if h <= 0 {
		return 0
	}
	return b.Width() / h
}

// Contains reports whether p lies in the box. All four edges are inclusive.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X1 && p.X <= b.X2 && p.Y >= b.Y1 && p.Y <= b.Y2
}

// Corners returns the box corners clockwise from the top-left: TL, TR, BR, BL.
func (b Box) Corners() []Point {
	return []Point{
		{X: b.X1, Y: b.Y1},
		{X: b.X2, Y: b.Y1},
		{X: b.X2, Y: b.Y2},
		{X: b.X1, Y: b.Y2},
	}
}

// Intersection returns the overlapping region of a and b and false if they
// do not overlap.
func Intersection(a, b Box) (Box, bool) {
	in := Box{
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
		X2: math.Min(a.X2, b.X2),
		Y2: math.Min(a.Y2, b.Y2),
	}
	if in.X2 <= in.X1 || in.Y2 <= in.Y1 {
		return Box{}, false
	}
	return in, true
}

// Overlap is the intersection-over-union of a and b. It is 0 for disjoint
// boxes and whenever the union area is not positive.
func Overlap(a, b Box) float64 {
	in, ok := Intersection(a, b)
	if !ok {
		return 0
	}
	inter := in.Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	iou := inter / union
	if iou > 1 {
		return 1
	}
	return iou
}

// ClosestPointOnBox clamps p into the box. The distance from the result to p
// is 0 when p is inside and the distance to the nearest edge otherwise.
func ClosestPointOnBox(b Box, p Point) Point {
	return Point{
		X: clamp(p.X, b.X1, b.X2),
		Y: clamp(p.Y, b.Y1, b.Y2),
	}
}

// DistanceToBox is the euclidean distance from p to the nearest point of b.
func DistanceToBox(b Box, p Point) float64 {
	return Distance(p, ClosestPointOnBox(b, p))
}

// Distance is the euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// BoundsOf returns the bounding box of the given points. It returns false
// for an empty slice.
func BoundsOf(points []Point) (Box, bool) {
	if len(points) == 0 {
		return Box{}, false
	}
	b := Box{X1: points[0].X, Y1: points[0].Y, X2: points[0].X, Y2: points[0].Y}
	for _, p := range points[1:] {
		b.X1 = math.Min(b.X1, p.X)
		b.Y1 = math.Min(b.Y1, p.Y)
		b.X2 = math.Max(b.X2, p.X)
		b.Y2 = math.Max(b.Y2, p.Y)
	}
	return b, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundTo rounds v to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
